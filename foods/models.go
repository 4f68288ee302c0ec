// Package foods holds the food catalogue: contributed nutrition records,
// their lookup tables and the ownership policy that guards them.
package foods

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Visibility is the publication state of a food.
type Visibility string

const (
	// VisibilityPrivate foods are only seen by their contributor and admins.
	VisibilityPrivate Visibility = "private"
	// VisibilityPending foods await an admin decision.
	VisibilityPending Visibility = "pending"
	// VisibilityPublic foods are readable by anyone.
	VisibilityPublic Visibility = "public"
)

// Food is a nutrition record.
type Food struct {
	bun.BaseModel `bun:"table:foods,alias:f"`
	ID            uuid.UUID  `bun:"id,pk"`
	Name          string     `bun:"name,notnull"`
	Brand         string     `bun:"brand,notnull"`
	Calories      float64    `bun:"cal,notnull"`
	Protein       float64    `bun:"protein,notnull"`
	Carbs         float64    `bun:"carbs,notnull"`
	TotalFats     float64    `bun:"total_fats,notnull"`
	Sugars        float64    `bun:"sugars,notnull"`
	Sodium        float64    `bun:"sodium,notnull"`
	ServingAmount float64    `bun:"serving_amt,notnull"`
	ServingUnit   string     `bun:"serving_unit,notnull"`
	CategoryID    *uuid.UUID `bun:"category_id"`
	CuisineID     *uuid.UUID `bun:"cuisine_id"`
	ContributorID *uuid.UUID `bun:"contributor_id"`
	Visibility    Visibility `bun:"visibility,notnull"`
	CreatedAt     time.Time  `bun:"created_at,notnull"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull"`

	Ingredients    []*Ingredient `bun:"rel:has-many,join:id=food_id"`
	RestrictionIDs []uuid.UUID   `bun:"-"`
}

// OwnedBy reports whether userID contributed the food.
func (f *Food) OwnedBy(userID uuid.UUID) bool {
	return f != nil && f.ContributorID != nil && *f.ContributorID == userID
}

// IngredientNames returns the ingredient list in order.
func (f *Food) IngredientNames() []string {
	out := make([]string, 0, len(f.Ingredients))
	for _, in := range f.Ingredients {
		out = append(out, in.Name)
	}
	return out
}

// Ingredient is one line of a food's ingredient list.
type Ingredient struct {
	bun.BaseModel `bun:"table:ingredients,alias:ing"`
	FoodID        uuid.UUID `bun:"food_id,pk"`
	Position      int       `bun:"position,pk"`
	Name          string    `bun:"name,notnull"`
}

// dietRestriction links a food to a dietary restriction it satisfies.
type dietRestriction struct {
	bun.BaseModel `bun:"table:diet_restrict_assoc,alias:dra"`
	FoodID        uuid.UUID `bun:"food_id,pk"`
	RestrictionID uuid.UUID `bun:"restriction_id,pk"`
}

// LookupKind names one of the lookup tables.
type LookupKind string

const (
	LookupCategories   LookupKind = "categories"
	LookupCuisines     LookupKind = "cuisines"
	LookupRestrictions LookupKind = "dietary_restrictions"
)

// Lookup is a row of a categories, cuisines or dietary_restrictions table.
type Lookup struct {
	bun.BaseModel `bun:"alias:lk"`
	ID            uuid.UUID `bun:"id,pk" json:"id"`
	Name          string    `bun:"name,notnull" json:"name"`
}
