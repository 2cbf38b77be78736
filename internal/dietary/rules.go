// Package dietary maps dietary restrictions to the ingredients and allergens
// they exclude, and evaluates listings against them.
package dietary

import (
	"sort"
	"strings"
)

// Restriction names understood by the rule table.
const (
	Vegetarian  = "vegetarian"
	Vegan       = "vegan"
	Pescatarian = "pescatarian"
	GlutenFree  = "gluten-free"
	DairyFree   = "dairy-free"
	NutFree     = "nut-free"
	Keto        = "keto"
	Paleo       = "paleo"
)

// Rules is the exclusion set for one restriction. Keywords are lower case.
type Rules struct {
	Ingredients []string
	Allergens   []string
}

var meats = []string{"beef", "pork", "chicken", "turkey", "lamb", "meat"}

// table is built once and never written afterwards.
var table = map[string]Rules{
	Vegetarian: {
		Ingredients: join(meats, "fish", "seafood", "shrimp", "salmon", "tuna"),
	},
	Vegan: {
		Ingredients: join(meats, "fish", "seafood", "shrimp",
			"cheese", "butter", "cream", "milk", "yogurt", "honey", "egg"),
		Allergens: []string{"dairy", "eggs", "milk"},
	},
	Pescatarian: {
		Ingredients: join(meats),
	},
	GlutenFree: {
		Ingredients: []string{"wheat", "flour", "bread", "pasta", "barley", "rye", "noodles"},
		Allergens:   []string{"wheat", "gluten"},
	},
	DairyFree: {
		Ingredients: []string{"cheese", "butter", "cream", "milk", "yogurt", "whey", "casein"},
		Allergens:   []string{"dairy", "milk"},
	},
	NutFree: {
		Ingredients: []string{"peanut", "almond", "walnut", "cashew", "pecan", "hazelnut", "pistachio"},
		Allergens:   []string{"peanuts", "tree nuts", "nuts"},
	},
	Keto: {
		Ingredients: []string{"bread", "pasta", "rice", "potato", "sugar", "flour", "noodles", "corn"},
	},
	Paleo: {
		Ingredients: []string{"bread", "pasta", "rice", "bean", "lentil", "dairy", "sugar", "flour"},
	},
}

func join(base []string, more ...string) []string {
	out := make([]string, 0, len(base)+len(more))
	out = append(out, base...)
	return append(out, more...)
}

// RulesFor returns the exclusions for a restriction name. Lookup ignores case
// and surrounding whitespace. An unknown name excludes nothing.
func RulesFor(name string) Rules {
	r, ok := table[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Rules{Ingredients: []string{}, Allergens: []string{}}
	}
	return Rules{
		Ingredients: append([]string{}, r.Ingredients...),
		Allergens:   append([]string{}, r.Allergens...),
	}
}

// IsKnown reports whether name has an entry in the rule table.
func IsKnown(name string) bool {
	_, ok := table[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Known returns the recognised restriction names in sorted order.
func Known() []string {
	names := make([]string, 0, len(table))
	for n := range table {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
