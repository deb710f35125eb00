// Package store is the interaction store: the domain layer over the
// document store client. It enforces "one canonical document per distinct
// logical value", maintains per-user usage counters, appends the immutable
// request-event log, and ensures the server-side aggregation views exist.
package store

import (
	"sort"
	"strings"
)

// CanonicalIngredients normalizes a user-entered ingredient list to its
// canonical form: split on commas, trim and lower-case each term, sort
// lexicographically, rejoin with commas. Order of entry does not matter —
// "Tomato, Onion" and "onion,tomato" both canonicalize to "onion,tomato",
// so they resolve to the same ingredient document.
func CanonicalIngredients(text string) string {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(text)), ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// CanonicalCuisine normalizes a cuisine name: trim and lower-case.
func CanonicalCuisine(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// CanonicalRecipeID normalizes an external recipe id: trim and lower-case.
func CanonicalRecipeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
