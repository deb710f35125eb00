package store

import "fmt"

// Design-document definitions for the two aggregation views and the replica
// filter. The views are materialized server-side and recomputed
// incrementally by the store; this package only ensures the definitions
// exist, it never recomputes them.

// view is one map/reduce pair inside a design document.
type view struct {
	Map    string `json:"map"`
	Reduce string `json:"reduce,omitempty"`
}

// designDoc is a CouchDB design document carrying views and/or filters.
type designDoc struct {
	ID       string            `json:"_id"`
	Language string            `json:"language,omitempty"`
	Views    map[string]view   `json:"views,omitempty"`
	Filters  map[string]string `json:"filters,omitempty"`
}

const (
	// DesignPopularity sums request events per target name: total request
	// counts per ingredient list, cuisine, and recipe title.
	DesignPopularity = "by_popularity"

	// DesignDayOfWeek sums request events per weekday name derived from the
	// event timestamp: a 7-bucket histogram per entity type.
	DesignDayOfWeek = "by_day_of_week"

	// DesignReplica holds the filter that scopes what client-side replicas
	// pull down (recipe documents only).
	DesignReplica = "replica"

	// ReplicaFilter is the fully qualified filter name passed to the
	// changes feed by replica pulls.
	ReplicaFilter = DesignReplica + "/recipes"
)

// View names shared by both aggregation design documents.
const (
	ViewIngredients = "ingredients"
	ViewCuisines    = "cuisines"
	ViewRecipes     = "recipes"
)

func popularityDesign() designDoc {
	return designDoc{
		ID:       "_design/" + DesignPopularity,
		Language: "javascript",
		Views: map[string]view{
			ViewIngredients: {
				Map: `function (doc) {
  if (doc.type && doc.type=='userIngredientRequest') {
    emit(doc.ingredient_name, 1);
  }
}`,
				Reduce: "_sum",
			},
			ViewCuisines: {
				Map: `function (doc) {
  if (doc.type && doc.type=='userCuisineRequest') {
    emit(doc.cuisine_name, 1);
  }
}`,
				Reduce: "_sum",
			},
			ViewRecipes: {
				Map: `function (doc) {
  if (doc.type && doc.type=='userRecipeRequest') {
    emit(doc.recipe_title, 1);
  }
}`,
				Reduce: "_sum",
			},
		},
	}
}

func dayOfWeekDesign() designDoc {
	// The weekday name is derived inside the map function so the histogram
	// is maintained incrementally by the store, not computed at read time.
	const weekdayMap = `function (doc) {
  if (doc.type && doc.type=='%s') {
    var weekdays = ['Sunday','Monday','Tuesday','Wednesday','Thursday','Friday','Saturday'];
    emit(weekdays[new Date(doc.date).getDay()], 1);
  }
}`
	mapFor := func(docType string) string {
		return fmt.Sprintf(weekdayMap, docType)
	}
	return designDoc{
		ID:       "_design/" + DesignDayOfWeek,
		Language: "javascript",
		Views: map[string]view{
			ViewIngredients: {Map: mapFor("userIngredientRequest"), Reduce: "_sum"},
			ViewCuisines:    {Map: mapFor("userCuisineRequest"), Reduce: "_sum"},
			ViewRecipes:     {Map: mapFor("userRecipeRequest"), Reduce: "_sum"},
		},
	}
}

func replicaDesign() designDoc {
	return designDoc{
		ID:       "_design/" + DesignReplica,
		Language: "javascript",
		Filters: map[string]string{
			"recipes": `function (doc, req) {
  return doc.type === 'recipe';
}`,
		},
	}
}
