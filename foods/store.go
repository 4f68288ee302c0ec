package foods

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/allergysnatcher/auth"
	"github.com/allergysnatcher/auth/repository"
)

// Store persists foods and lookups over bun.
type Store struct {
	db    *bun.DB
	clock auth.Clock
}

// NewStore creates the store.
func NewStore(db *bun.DB) *Store {
	return &Store{db: db, clock: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the time source used for timestamps.
func (s *Store) WithClock(c auth.Clock) *Store {
	if c != nil {
		s.clock = c
	}
	return s
}

// ListFilter narrows a listing to what the viewer may see.
type ListFilter struct {
	// ViewerID adds the viewer's own foods to the public ones.
	ViewerID *uuid.UUID
	// IncludePending adds every pending food, for admins reviewing submissions.
	IncludePending bool
}

// List returns public foods plus whatever filter grants, ordered by name.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Food, error) {
	items := make([]*Food, 0)
	q := s.db.NewSelect().
		Model(&items).
		Relation("Ingredients", orderIngredients).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			q = q.Where("?TableAlias.visibility = ?", VisibilityPublic)
			if filter.ViewerID != nil {
				q = q.WhereOr("?TableAlias.contributor_id = ?", *filter.ViewerID)
			}
			if filter.IncludePending {
				q = q.WhereOr("?TableAlias.visibility = ?", VisibilityPending)
			}
			return q
		}).
		OrderExpr("?TableAlias.name ASC, ?TableAlias.id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, repository.MapError(err, "list foods")
	}
	return items, nil
}

// Get loads a food with its ingredients and restriction ids.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Food, error) {
	food := new(Food)
	err := s.db.NewSelect().
		Model(food).
		Relation("Ingredients", orderIngredients).
		Where("?TableAlias.id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, repository.MapError(err, "get food")
	}

	links := make([]*dietRestriction, 0)
	if err := s.db.NewSelect().Model(&links).Where("food_id = ?", id).Scan(ctx); err != nil {
		return nil, repository.MapError(err, "get food restrictions")
	}
	for _, l := range links {
		food.RestrictionIDs = append(food.RestrictionIDs, l.RestrictionID)
	}
	return food, nil
}

// Create inserts food with its ingredients and restriction links.
func (s *Store) Create(ctx context.Context, food *Food) (*Food, error) {
	now := s.clock()
	if food.ID == uuid.Nil {
		food.ID = uuid.New()
	}
	if food.Visibility == "" {
		food.Visibility = VisibilityPrivate
	}
	food.CreatedAt = now
	food.UpdatedAt = now

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(food).Exec(ctx); err != nil {
			return err
		}
		return writeChildren(ctx, tx, food)
	})
	if err != nil {
		return nil, repository.MapError(err, "create food")
	}
	return food, nil
}

// Update replaces the editable fields, ingredients and restriction links of food.
func (s *Store) Update(ctx context.Context, food *Food) (*Food, error) {
	food.UpdatedAt = s.clock()

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model(food).
			ExcludeColumn("id", "contributor_id", "visibility", "created_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return auth.ErrNotFound
		}

		if _, err := tx.NewDelete().Model((*Ingredient)(nil)).Where("food_id = ?", food.ID).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*dietRestriction)(nil)).Where("food_id = ?", food.ID).Exec(ctx); err != nil {
			return err
		}
		return writeChildren(ctx, tx, food)
	})
	if err != nil {
		return nil, repository.MapError(err, "update food")
	}
	return food, nil
}

// SetVisibility moves a food from one visibility to another. It fails with
// ErrInvalidVisibility when the food is no longer in from.
func (s *Store) SetVisibility(ctx context.Context, id uuid.UUID, from, to Visibility) error {
	res, err := s.db.NewUpdate().
		Model((*Food)(nil)).
		Set("visibility = ?", to).
		Set("updated_at = ?", s.clock()).
		Where("id = ?", id).
		Where("visibility = ?", from).
		Exec(ctx)
	if err != nil {
		return repository.MapError(err, "set food visibility")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return repository.MapError(err, "set food visibility")
	}
	if n == 0 {
		return ErrInvalidVisibility
	}
	return nil
}

// Delete removes a food; ingredients and links cascade.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.NewDelete().
		Model((*Food)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return repository.MapError(err, "delete food")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// ListLookup returns every row of a lookup table ordered by name.
func (s *Store) ListLookup(ctx context.Context, kind LookupKind) ([]*Lookup, error) {
	items := make([]*Lookup, 0)
	err := s.db.NewSelect().
		Model(&items).
		ModelTableExpr("? AS lk", bun.Ident(string(kind))).
		OrderExpr("lk.name ASC").
		Scan(ctx)
	if err != nil {
		return nil, repository.MapError(err, "list "+string(kind))
	}
	return items, nil
}

// CreateLookup adds a named row to a lookup table.
func (s *Store) CreateLookup(ctx context.Context, kind LookupKind, name string) (*Lookup, error) {
	item := &Lookup{ID: uuid.New(), Name: strings.TrimSpace(name)}
	_, err := s.db.NewInsert().
		Model(item).
		ModelTableExpr("?", bun.Ident(string(kind))).
		Exec(ctx)
	if err != nil {
		return nil, repository.MapError(err, "create "+string(kind))
	}
	return item, nil
}

func writeChildren(ctx context.Context, tx bun.Tx, food *Food) error {
	for i, in := range food.Ingredients {
		in.FoodID = food.ID
		in.Position = i
	}
	if len(food.Ingredients) > 0 {
		if _, err := tx.NewInsert().Model(&food.Ingredients).Exec(ctx); err != nil {
			return err
		}
	}

	if len(food.RestrictionIDs) > 0 {
		links := make([]*dietRestriction, 0, len(food.RestrictionIDs))
		for _, id := range food.RestrictionIDs {
			links = append(links, &dietRestriction{FoodID: food.ID, RestrictionID: id})
		}
		if _, err := tx.NewInsert().Model(&links).Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func orderIngredients(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Order("position ASC")
}
