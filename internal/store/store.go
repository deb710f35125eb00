package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/souschef/recipe-assistant/internal/couch"
	"github.com/souschef/recipe-assistant/internal/domain"
)

// ErrUnknownView is returned when an aggregation query names a view that
// is not part of the design documents this store maintains.
var ErrUnknownView = errors.New("unknown aggregation view")

// Docs is the document store contract required by the interaction store.
// It is satisfied by *couch.Client; tests substitute an in-memory fake.
type Docs interface {
	// EnsureDB creates the database if absent.
	EnsureDB(ctx context.Context) error

	// FindOne runs a selector query and scans the first match into dest,
	// reporting whether a match was found.
	FindOne(ctx context.Context, selector map[string]any, dest any) (bool, error)

	// Insert stores a new document and returns its assigned id and revision.
	Insert(ctx context.Context, doc any) (id, rev string, err error)

	// Put writes a document under a known id and returns the new revision.
	Put(ctx context.Context, id string, doc any) (rev string, err error)

	// Get fetches the latest revision of a document by id.
	Get(ctx context.Context, id string, dest any) error

	// View queries a reduced design-document view grouped by key.
	View(ctx context.Context, design, viewName string) ([]couch.ViewRow, error)
}

// identifiable is implemented by all domain documents via domain.Meta.
type identifiable interface {
	SetIdentity(id, rev string)
}

// Store is the interaction store. It owns all writes to the recipe
// database; callers hold no locks, so the documented read-modify-write
// windows in findOrCreate and recordRequest are "mostly safe", not
// serializable (see the method comments).
type Store struct {
	docs Docs
	log  zerolog.Logger

	// now is swapped out by tests to pin event timestamps.
	now func() time.Time
}

// New constructs a Store over the given document store client.
func New(docs Docs) *Store {
	return &Store{
		docs: docs,
		log:  log.With().Str("component", "store").Logger(),
		now:  time.Now,
	}
}

// EnsureDatabase performs idempotent setup: create the database if absent,
// then create the two aggregation design documents and the replica filter
// if absent. Both views and the database are load-bearing for every
// downstream query, so a failure here is fatal to startup — the caller
// should surface the error and abort.
func (s *Store) EnsureDatabase(ctx context.Context) error {
	if err := s.docs.EnsureDB(ctx); err != nil {
		return fmt.Errorf("ensure database: %w", err)
	}
	for _, d := range []designDoc{popularityDesign(), dayOfWeekDesign(), replicaDesign()} {
		if err := s.ensureDesign(ctx, d); err != nil {
			return fmt.Errorf("ensure %s: %w", d.ID, err)
		}
	}
	return nil
}

// ensureDesign creates one design document unless it already exists.
func (s *Store) ensureDesign(ctx context.Context, d designDoc) error {
	var raw json.RawMessage
	found, err := s.docs.FindOne(ctx, map[string]any{"_id": d.ID}, &raw)
	if err != nil {
		return err
	}
	if found {
		return nil
	}
	s.log.Info().Str("design", d.ID).Msg("creating design document")
	_, err = s.docs.Put(ctx, d.ID, d)
	return err
}

// EnsureUser returns the user document for the given external identity
// (chat handle), creating it on first interaction.
func (s *Store) EnsureUser(ctx context.Context, name string) (*domain.User, error) {
	u := &domain.User{Meta: domain.Meta{Type: domain.TypeUser}, Name: name}
	if err := s.findOrCreate(ctx, domain.TypeUser, "name", name, u); err != nil {
		return nil, err
	}
	return u, nil
}

// FindUser looks up a user document by external identity without creating
// it, reporting whether it exists.
func (s *Store) FindUser(ctx context.Context, name string) (*domain.User, bool, error) {
	var u domain.User
	found, err := s.docs.FindOne(ctx, selectorFor(domain.TypeUser, "name", name), &u)
	return &u, found, err
}

// FindIngredient looks up the canonical ingredient document for the given
// user-entered ingredient text, reporting whether it exists.
func (s *Store) FindIngredient(ctx context.Context, text string) (*domain.Ingredient, bool, error) {
	var ing domain.Ingredient
	found, err := s.docs.FindOne(ctx, selectorFor(domain.TypeIngredient, "name", CanonicalIngredients(text)), &ing)
	return &ing, found, err
}

// FindCuisine looks up the canonical cuisine document, reporting whether
// it exists.
func (s *Store) FindCuisine(ctx context.Context, text string) (*domain.Cuisine, bool, error) {
	var c domain.Cuisine
	found, err := s.docs.FindOne(ctx, selectorFor(domain.TypeCuisine, "name", CanonicalCuisine(text)), &c)
	return &c, found, err
}

// FindRecipe looks up the recipe document for the given external recipe id,
// reporting whether it exists.
func (s *Store) FindRecipe(ctx context.Context, recipeID string) (*domain.Recipe, bool, error) {
	var r domain.Recipe
	found, err := s.docs.FindOne(ctx, selectorFor(domain.TypeRecipe, "name", CanonicalRecipeID(recipeID)), &r)
	return &r, found, err
}

// AddIngredient resolves (or creates) the canonical ingredient document for
// the given text, records the request against the user, and returns the
// ingredient. matching carries the recipe payload that matched the request;
// it is stored opaque on first creation only.
func (s *Store) AddIngredient(ctx context.Context, text string, matching json.RawMessage, user *domain.User) (*domain.Ingredient, error) {
	ing := &domain.Ingredient{
		Meta:    domain.Meta{Type: domain.TypeIngredient},
		Name:    CanonicalIngredients(text),
		Recipes: matching,
	}
	if err := s.findOrCreate(ctx, domain.TypeIngredient, "name", ing.Name, ing); err != nil {
		return nil, err
	}
	if err := s.RecordIngredientRequest(ctx, ing, user); err != nil {
		return nil, err
	}
	return ing, nil
}

// AddCuisine resolves (or creates) the canonical cuisine document, records
// the request against the user, and returns the cuisine.
func (s *Store) AddCuisine(ctx context.Context, text string, matching json.RawMessage, user *domain.User) (*domain.Cuisine, error) {
	c := &domain.Cuisine{
		Meta:    domain.Meta{Type: domain.TypeCuisine},
		Name:    CanonicalCuisine(text),
		Recipes: matching,
	}
	if err := s.findOrCreate(ctx, domain.TypeCuisine, "name", c.Name, c); err != nil {
		return nil, err
	}
	if err := s.RecordCuisineRequest(ctx, c, user); err != nil {
		return nil, err
	}
	return c, nil
}

// AddRecipe resolves (or creates) the recipe document for the given
// external id, records the request against the user, and returns the
// recipe. The title is stored trimmed; instructions are stored verbatim.
func (s *Store) AddRecipe(ctx context.Context, recipeID, title, instructions string, user *domain.User) (*domain.Recipe, error) {
	r := &domain.Recipe{
		Meta:         domain.Meta{Type: domain.TypeRecipe},
		Name:         CanonicalRecipeID(recipeID),
		Title:        strings.TrimSpace(title),
		Instructions: instructions,
	}
	if err := s.findOrCreate(ctx, domain.TypeRecipe, "name", r.Name, r); err != nil {
		return nil, err
	}
	if err := s.RecordRecipeRequest(ctx, r, user); err != nil {
		return nil, err
	}
	return r, nil
}

// RecordIngredientRequest increments the user's usage counter for the
// ingredient and appends an immutable request-event document. See
// recordRequest for the concurrency contract.
func (s *Store) RecordIngredientRequest(ctx context.Context, ing *domain.Ingredient, user *domain.User) error {
	return s.recordRequest(ctx, user,
		func(u *domain.User) {
			for i := range u.Ingredients {
				if u.Ingredients[i].Name == ing.Name {
					u.Ingredients[i].Count++
					return
				}
			}
			u.Ingredients = append(u.Ingredients, domain.UsageCount{Name: ing.Name, Count: 1})
		},
		&domain.IngredientRequest{
			Meta:           domain.Meta{Type: domain.TypeIngredientRequest},
			UserID:         user.ID,
			UserName:       user.Name,
			IngredientID:   ing.ID,
			IngredientName: ing.Name,
			Date:           s.now().UnixMilli(),
		},
	)
}

// RecordCuisineRequest increments the user's usage counter for the cuisine
// and appends an immutable request-event document.
func (s *Store) RecordCuisineRequest(ctx context.Context, c *domain.Cuisine, user *domain.User) error {
	return s.recordRequest(ctx, user,
		func(u *domain.User) {
			for i := range u.Cuisines {
				if u.Cuisines[i].Name == c.Name {
					u.Cuisines[i].Count++
					return
				}
			}
			u.Cuisines = append(u.Cuisines, domain.UsageCount{Name: c.Name, Count: 1})
		},
		&domain.CuisineRequest{
			Meta:        domain.Meta{Type: domain.TypeCuisineRequest},
			UserID:      user.ID,
			UserName:    user.Name,
			CuisineID:   c.ID,
			CuisineName: c.Name,
			Date:        s.now().UnixMilli(),
		},
	)
}

// RecordRecipeRequest increments the user's usage counter for the recipe
// (keyed by canonical id, carrying a denormalized title) and appends an
// immutable request-event document.
func (s *Store) RecordRecipeRequest(ctx context.Context, r *domain.Recipe, user *domain.User) error {
	return s.recordRequest(ctx, user,
		func(u *domain.User) {
			for i := range u.Recipes {
				if u.Recipes[i].ID == r.Name {
					u.Recipes[i].Count++
					return
				}
			}
			u.Recipes = append(u.Recipes, domain.RecipeUsage{ID: r.Name, Title: r.Title, Count: 1})
		},
		&domain.RecipeRequest{
			Meta:        domain.Meta{Type: domain.TypeRecipeRequest},
			UserID:      user.ID,
			UserName:    user.Name,
			RecipeID:    r.ID,
			RecipeTitle: r.Title,
			Date:        s.now().UnixMilli(),
		},
	)
}

// FavoritesForUser re-fetches the latest user document and returns its
// recipe usage entries sorted descending by count, truncated to limit.
// An empty usage list yields an empty slice, never an error. Ties on count
// keep their stored relative order.
func (s *Store) FavoritesForUser(ctx context.Context, user *domain.User, limit int) ([]domain.RecipeUsage, error) {
	var latest domain.User
	if err := s.docs.Get(ctx, user.ID, &latest); err != nil {
		return nil, err
	}
	recipes := make([]domain.RecipeUsage, len(latest.Recipes))
	copy(recipes, latest.Recipes)
	sort.SliceStable(recipes, func(i, j int) bool {
		return recipes[i].Count > recipes[j].Count
	})
	if limit < len(recipes) {
		recipes = recipes[:limit]
	}
	return recipes, nil
}

// PopularCounts returns total request counts per target name for one
// entity view (ViewIngredients, ViewCuisines, or ViewRecipes), read from
// the by_popularity aggregation view.
func (s *Store) PopularCounts(ctx context.Context, viewName string) ([]couch.ViewRow, error) {
	if !knownView(viewName) {
		return nil, ErrUnknownView
	}
	return s.docs.View(ctx, DesignPopularity, viewName)
}

// WeekdayCounts returns the 7-bucket request histogram keyed by weekday
// name for one entity view, read from the by_day_of_week aggregation view.
func (s *Store) WeekdayCounts(ctx context.Context, viewName string) ([]couch.ViewRow, error) {
	if !knownView(viewName) {
		return nil, ErrUnknownView
	}
	return s.docs.View(ctx, DesignDayOfWeek, viewName)
}

// recordRequest re-fetches the latest user document (not the possibly
// stale one held by the caller), applies bump to its counters, writes the
// whole document back, then appends the immutable request event.
//
// The re-fetch is essential: without it, two in-flight requests for the
// same user would both write from a stale base and one increment would be
// lost outright. It does not eliminate the race — the get→put pair is
// still a window, so concurrent requests from one user can still lose an
// increment. That is a documented limitation, not a guarantee.
func (s *Store) recordRequest(ctx context.Context, user *domain.User, bump func(*domain.User), event any) error {
	var latest domain.User
	if err := s.docs.Get(ctx, user.ID, &latest); err != nil {
		return err
	}
	bump(&latest)
	rev, err := s.docs.Put(ctx, latest.ID, &latest)
	if err != nil {
		return err
	}
	latest.Rev = rev
	if _, _, err := s.docs.Insert(ctx, event); err != nil {
		return err
	}
	return nil
}

// findOrCreate queries for an existing document of docType whose prop
// equals value; when found, fresh is overwritten with the stored document,
// otherwise fresh is inserted and stamped with its assigned id/revision.
//
// The find-then-insert sequence is not atomic. Concurrent callers racing
// on the same canonical value can both observe "not found" and both
// insert, leaving duplicate canonical documents behind. Callers must
// tolerate eventual duplicates rather than assume the store enforces
// global uniqueness.
func (s *Store) findOrCreate(ctx context.Context, docType, prop, value string, fresh identifiable) error {
	found, err := s.docs.FindOne(ctx, selectorFor(docType, prop, value), fresh)
	if err != nil {
		return err
	}
	if found {
		s.log.Debug().Str("type", docType).Str(prop, value).Msg("returning existing document")
		return nil
	}
	s.log.Debug().Str("type", docType).Str(prop, value).Msg("creating document")
	id, rev, err := s.docs.Insert(ctx, fresh)
	if err != nil {
		return err
	}
	fresh.SetIdentity(id, rev)
	return nil
}

// selectorFor builds the standard entity selector: a range filter on _id
// (which keeps design documents out of the result) combined with equality
// filters on type and the unique property.
func selectorFor(docType, prop, value string) map[string]any {
	return map[string]any{
		"_id":  map[string]any{"$gt": 0},
		"type": docType,
		prop:   value,
	}
}

func knownView(name string) bool {
	switch name {
	case ViewIngredients, ViewCuisines, ViewRecipes:
		return true
	}
	return false
}
