package foods

import (
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/allergysnatcher/auth"
)

// Controller serves the food catalogue endpoints.
type Controller struct {
	store  *Store
	guard  *auth.Guard
	logger auth.Logger
	prefix string
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithControllerLogger sets the logger.
func WithControllerLogger(l auth.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = auth.ResolveLogger("foods.http", nil, l)
	}
}

// WithPathPrefix changes the mount point (default "/api").
func WithPathPrefix(p string) ControllerOption {
	return func(c *Controller) {
		if p != "" {
			c.prefix = strings.TrimRight(p, "/")
		}
	}
}

// NewController creates the controller.
func NewController(store *Store, guard *auth.Guard, opts ...ControllerOption) *Controller {
	c := &Controller{
		store:  store,
		guard:  guard,
		logger: auth.ResolveLogger("foods.http", nil, nil),
		prefix: "/api",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// RegisterRoutes mounts the food and lookup routes on app.
func (c *Controller) RegisterRoutes(app fiber.Router) {
	api := app.Group(c.prefix)

	optional := c.guard.OptionalSession()
	session := c.guard.RequireSession()

	api.Get("/foods", optional, c.List)
	api.Get("/foods/:id", optional, c.Get)
	api.Post("/foods", session, c.Create)
	api.Put("/foods/:id", session, c.Update)
	api.Delete("/foods/:id", session, c.Delete)
	api.Post("/foods/:id/submit", session, c.transition(ActionSubmit))
	api.Post("/foods/:id/publish", session, c.transition(ActionPublish))
	api.Post("/foods/:id/revert", session, c.transition(ActionRevert))

	admin := []fiber.Handler{session, c.guard.RequireRole(auth.RoleAdmin)}
	for path, kind := range map[string]LookupKind{
		"/categories":        LookupCategories,
		"/cuisines":          LookupCuisines,
		"/diet-restrictions": LookupRestrictions,
	} {
		api.Get(path, c.listLookup(kind))
		api.Post(path, append(admin, c.createLookup(kind))...)
	}
}

// FoodView is the JSON shape of a food.
type FoodView struct {
	ID             uuid.UUID   `json:"id"`
	Name           string      `json:"name"`
	Brand          string      `json:"brand"`
	Calories       float64     `json:"cal"`
	Protein        float64     `json:"protein"`
	Carbs          float64     `json:"carbs"`
	TotalFats      float64     `json:"total_fats"`
	Sugars         float64     `json:"sugars"`
	Sodium         float64     `json:"sodium"`
	ServingAmount  float64     `json:"serving_amt"`
	ServingUnit    string      `json:"serving_unit"`
	CategoryID     *uuid.UUID  `json:"category_id"`
	CuisineID      *uuid.UUID  `json:"cuisine_id"`
	ContributorID  *uuid.UUID  `json:"contributor_id"`
	Visibility     Visibility  `json:"visibility"`
	Ingredients    []string    `json:"ingredients"`
	RestrictionIDs []uuid.UUID `json:"restriction_ids,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// View returns the JSON shape of f.
func (f *Food) View() *FoodView {
	return &FoodView{
		ID:             f.ID,
		Name:           f.Name,
		Brand:          f.Brand,
		Calories:       f.Calories,
		Protein:        f.Protein,
		Carbs:          f.Carbs,
		TotalFats:      f.TotalFats,
		Sugars:         f.Sugars,
		Sodium:         f.Sodium,
		ServingAmount:  f.ServingAmount,
		ServingUnit:    f.ServingUnit,
		CategoryID:     f.CategoryID,
		CuisineID:      f.CuisineID,
		ContributorID:  f.ContributorID,
		Visibility:     f.Visibility,
		Ingredients:    f.IngredientNames(),
		RestrictionIDs: f.RestrictionIDs,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
	}
}

// FoodRequest is the create and update payload.
type FoodRequest struct {
	Name           string   `json:"name"`
	Brand          string   `json:"brand"`
	Calories       float64  `json:"cal"`
	Protein        float64  `json:"protein"`
	Carbs          float64  `json:"carbs"`
	TotalFats      float64  `json:"total_fats"`
	Sugars         float64  `json:"sugars"`
	Sodium         float64  `json:"sodium"`
	ServingAmount  float64  `json:"serving_amt"`
	ServingUnit    string   `json:"serving_unit"`
	CategoryID     string   `json:"category_id"`
	CuisineID      string   `json:"cuisine_id"`
	Ingredients    []string `json:"ingredients"`
	RestrictionIDs []string `json:"restriction_ids"`
}

// Validate checks the payload shape.
func (r FoodRequest) Validate() error {
	nonNegative := validation.Min(0.0)
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Brand, validation.Length(0, 200)),
		validation.Field(&r.Calories, nonNegative),
		validation.Field(&r.Protein, nonNegative),
		validation.Field(&r.Carbs, nonNegative),
		validation.Field(&r.TotalFats, nonNegative),
		validation.Field(&r.Sugars, nonNegative),
		validation.Field(&r.Sodium, nonNegative),
		validation.Field(&r.ServingAmount, nonNegative),
		validation.Field(&r.ServingUnit, validation.Length(0, 32)),
		validation.Field(&r.CategoryID, is.UUID),
		validation.Field(&r.CuisineID, is.UUID),
	)
	if err != nil {
		return err
	}

	errs := validation.Errors{}
	for _, name := range r.Ingredients {
		if n := len(strings.TrimSpace(name)); n == 0 || n > 200 {
			errs["ingredients"] = errors.New("each ingredient must be 1 to 200 characters", errors.CategoryValidation)
			break
		}
	}
	for _, raw := range r.RestrictionIDs {
		if _, err := uuid.Parse(raw); err != nil {
			errs["restriction_ids"] = errors.New("must contain valid UUIDs", errors.CategoryValidation)
			break
		}
	}
	return errs.Filter()
}

// apply copies the payload onto f. Validate must have passed.
func (r FoodRequest) apply(f *Food) {
	f.Name = strings.TrimSpace(r.Name)
	f.Brand = strings.TrimSpace(r.Brand)
	f.Calories = r.Calories
	f.Protein = r.Protein
	f.Carbs = r.Carbs
	f.TotalFats = r.TotalFats
	f.Sugars = r.Sugars
	f.Sodium = r.Sodium
	f.ServingAmount = r.ServingAmount
	f.ServingUnit = strings.TrimSpace(r.ServingUnit)
	f.CategoryID = optionalUUID(r.CategoryID)
	f.CuisineID = optionalUUID(r.CuisineID)

	f.Ingredients = make([]*Ingredient, 0, len(r.Ingredients))
	for _, name := range r.Ingredients {
		f.Ingredients = append(f.Ingredients, &Ingredient{Name: strings.TrimSpace(name)})
	}

	f.RestrictionIDs = make([]uuid.UUID, 0, len(r.RestrictionIDs))
	seen := map[uuid.UUID]bool{}
	for _, raw := range r.RestrictionIDs {
		id := uuid.MustParse(raw)
		if !seen[id] {
			seen[id] = true
			f.RestrictionIDs = append(f.RestrictionIDs, id)
		}
	}
}

// List returns public foods, plus the caller's own and, for admins, pending ones.
func (c *Controller) List(ctx *fiber.Ctx) error {
	filter := ListFilter{}
	if user, ok := auth.CurrentUser(ctx); ok {
		filter.ViewerID = &user.ID
		filter.IncludePending = user.IsAdmin()
	}

	items, err := c.store.List(ctx.UserContext(), filter)
	if err != nil {
		return err
	}

	out := make([]*FoodView, 0, len(items))
	for _, f := range items {
		out = append(out, f.View())
	}
	return ctx.JSON(out)
}

// Get returns one food the caller may read. Foods the caller may not read
// are reported as missing.
func (c *Controller) Get(ctx *fiber.Ctx) error {
	food, err := c.load(ctx)
	if err != nil {
		return err
	}

	actor, _ := auth.CurrentUser(ctx)
	if err := Authorize(actor, food, ActionRead, false); err != nil {
		if auth.IsForbidden(err) || auth.IsUnauthenticated(err) {
			return auth.ErrNotFound
		}
		return err
	}
	return ctx.JSON(food.View())
}

// Create stores a new private food contributed by the caller.
func (c *Controller) Create(ctx *fiber.Ctx) error {
	actor, ok := auth.CurrentUser(ctx)
	if !ok {
		return auth.ErrUnauthenticated
	}

	payload, err := parseFood(ctx)
	if err != nil {
		return err
	}

	food := &Food{ContributorID: &actor.ID, Visibility: VisibilityPrivate}
	payload.apply(food)

	created, err := c.store.Create(ctx.UserContext(), food)
	if err != nil {
		return err
	}

	c.logger.Info("food created", "food_id", created.ID, "user_id", actor.ID)
	return ctx.Status(http.StatusCreated).JSON(created.View())
}

// Update replaces a food's fields.
func (c *Controller) Update(ctx *fiber.Ctx) error {
	actor, _ := auth.CurrentUser(ctx)

	food, err := c.load(ctx)
	if err != nil {
		return err
	}
	if err := Authorize(actor, food, ActionWrite, auth.Confirmed(ctx)); err != nil {
		return err
	}

	payload, err := parseFood(ctx)
	if err != nil {
		return err
	}
	payload.apply(food)

	updated, err := c.store.Update(ctx.UserContext(), food)
	if err != nil {
		return err
	}
	return ctx.JSON(updated.View())
}

// Delete removes a food.
func (c *Controller) Delete(ctx *fiber.Ctx) error {
	actor, _ := auth.CurrentUser(ctx)

	food, err := c.load(ctx)
	if err != nil {
		return err
	}
	if err := Authorize(actor, food, ActionDelete, auth.Confirmed(ctx)); err != nil {
		return err
	}

	if err := c.store.Delete(ctx.UserContext(), food.ID); err != nil {
		return err
	}

	c.logger.Info("food deleted", "food_id", food.ID, "user_id", actor.ID)
	return ctx.SendStatus(http.StatusNoContent)
}

func (c *Controller) transition(action Action) fiber.Handler {
	to, _ := Target(action)

	return func(ctx *fiber.Ctx) error {
		actor, _ := auth.CurrentUser(ctx)

		food, err := c.load(ctx)
		if err != nil {
			return err
		}
		if err := Authorize(actor, food, action, auth.Confirmed(ctx)); err != nil {
			return err
		}

		if err := c.store.SetVisibility(ctx.UserContext(), food.ID, food.Visibility, to); err != nil {
			return err
		}

		c.logger.Info("food visibility changed",
			"food_id", food.ID,
			"user_id", actor.ID,
			"from", food.Visibility,
			"to", to,
		)

		food, err = c.store.Get(ctx.UserContext(), food.ID)
		if err != nil {
			return err
		}
		return ctx.JSON(food.View())
	}
}

// LookupRequest is the payload for adding a lookup row.
type LookupRequest struct {
	Name string `json:"name" form:"name"`
}

// Validate checks the payload shape.
func (r LookupRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 100)),
	)
}

func (c *Controller) listLookup(kind LookupKind) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		items, err := c.store.ListLookup(ctx.UserContext(), kind)
		if err != nil {
			return err
		}
		return ctx.JSON(items)
	}
}

func (c *Controller) createLookup(kind LookupKind) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		payload := new(LookupRequest)
		if err := ctx.BodyParser(payload); err != nil {
			return auth.ValidationError(err)
		}
		payload.Name = strings.TrimSpace(payload.Name)
		if err := payload.Validate(); err != nil {
			return auth.ValidationError(err)
		}

		item, err := c.store.CreateLookup(ctx.UserContext(), kind, payload.Name)
		if err != nil {
			return err
		}
		return ctx.Status(http.StatusCreated).JSON(item)
	}
}

func (c *Controller) load(ctx *fiber.Ctx) (*Food, error) {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return nil, auth.ErrNotFound
	}
	return c.store.Get(ctx.UserContext(), id)
}

func parseFood(ctx *fiber.Ctx) (*FoodRequest, error) {
	payload := new(FoodRequest)
	if err := ctx.BodyParser(payload); err != nil {
		return nil, auth.ValidationError(err)
	}
	if err := payload.Validate(); err != nil {
		return nil, auth.ValidationError(err)
	}
	return payload, nil
}

func optionalUUID(raw string) *uuid.UUID {
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}
