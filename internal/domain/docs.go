// Package domain defines the document models stored in the recipe database.
// Every document carries a "type" discriminant alongside the store-assigned
// identifier and revision token; all writes go through the interaction store
// (internal/store), never through this package.
package domain

import "encoding/json"

// Document type discriminants. The request types double as the emit sources
// for the aggregation views, so renaming one requires re-creating the views.
const (
	TypeUser       = "user"
	TypeIngredient = "ingredient"
	TypeCuisine    = "cuisine"
	TypeRecipe     = "recipe"

	TypeIngredientRequest = "userIngredientRequest"
	TypeCuisineRequest    = "userCuisineRequest"
	TypeRecipeRequest     = "userRecipeRequest"
)

// Meta holds the store-level identity shared by every document: the unique
// identifier, the revision token used for optimistic update ordering, and
// the type discriminant. It is embedded by all document structs.
type Meta struct {
	ID   string `json:"_id,omitempty"`
	Rev  string `json:"_rev,omitempty"`
	Type string `json:"type"`
}

// SetIdentity records the identifier and revision assigned by the store
// after an insert.
func (m *Meta) SetIdentity(id, rev string) {
	m.ID = id
	m.Rev = rev
}

// UsageCount is one embedded usage tally inside a User document: how many
// times this user has requested the named ingredient or cuisine.
type UsageCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// RecipeUsage is the recipe variant of UsageCount. Recipes are keyed by
// their canonical id and carry a denormalized title so favorites can be
// rendered without a join.
type RecipeUsage struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Count int    `json:"count"`
}

// User represents one chat user, unique by Name (the external chat handle).
// The three usage slices accumulate per-target request tallies; they are
// updated with a read-modify-write cycle that is documented as racy under
// concurrent requests for the same user (see store.Store).
type User struct {
	Meta
	Name        string        `json:"name"`
	Ingredients []UsageCount  `json:"ingredients,omitempty"`
	Cuisines    []UsageCount  `json:"cuisines,omitempty"`
	Recipes     []RecipeUsage `json:"recipes,omitempty"`
}

// Ingredient is one canonical ingredient list, unique by Name (the sorted,
// comma-joined, lower-cased form of the terms the user entered). Recipes
// holds the recipe payload that matched this ingredient list when it was
// first requested; it is stored opaque and never interpreted server-side.
type Ingredient struct {
	Meta
	Name    string          `json:"name"`
	Recipes json.RawMessage `json:"recipes,omitempty"`
}

// Cuisine is one canonical cuisine, unique by Name (trimmed, lower-cased).
type Cuisine struct {
	Meta
	Name    string          `json:"name"`
	Recipes json.RawMessage `json:"recipes,omitempty"`
}

// Recipe is one cached recipe, unique by Name (the canonical external
// recipe id). Instructions is the full detail text shown to users.
type Recipe struct {
	Meta
	Name         string `json:"name"`
	Title        string `json:"title"`
	Instructions string `json:"instructions"`
}

// IngredientRequest is an immutable log entry recording one user's request
// for one ingredient. Written once, never updated; the aggregation views
// sum over these documents.
type IngredientRequest struct {
	Meta
	UserID         string `json:"user_id"`
	UserName       string `json:"user_name"`
	IngredientID   string `json:"ingredient_id"`
	IngredientName string `json:"ingredient_name"`
	Date           int64  `json:"date"` // epoch milliseconds
}

// CuisineRequest is the cuisine variant of IngredientRequest.
type CuisineRequest struct {
	Meta
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
	CuisineID   string `json:"cuisine_id"`
	CuisineName string `json:"cuisine_name"`
	Date        int64  `json:"date"`
}

// RecipeRequest is the recipe variant. It denormalizes the recipe title
// (not the id) because the popularity view groups recipes by title.
type RecipeRequest struct {
	Meta
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
	RecipeID    string `json:"recipe_id"`
	RecipeTitle string `json:"recipe_title"`
	Date        int64  `json:"date"`
}
