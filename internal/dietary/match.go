package dietary

import (
	"strings"

	"github.com/nitesh/meal_service/pkg/models"
)

// Evaluator decides whether a listing is acceptable under a restriction.
// The discovery pipeline only depends on this interface, so the keyword
// matcher below can be swapped for one that reads structured ingredients.
type Evaluator interface {
	Matches(l *models.Listing, restriction string) bool
	ExcludesIngredients(l *models.Listing, keywords []string) bool
}

// KeywordEvaluator matches rule keywords as case-insensitive substrings of the
// free-text ingredients and of each declared allergen. This is coarse: "nut"
// also hits "nutmeg". It is a best effort filter, not a safety guarantee.
type KeywordEvaluator struct{}

var _ Evaluator = KeywordEvaluator{}

// Matches reports whether l satisfies restriction.
func (KeywordEvaluator) Matches(l *models.Listing, restriction string) bool {
	if l == nil {
		return false
	}
	rules := RulesFor(restriction)

	for _, excluded := range rules.Allergens {
		for _, a := range l.AllergenInfo.Contains {
			if strings.Contains(strings.ToLower(a), excluded) {
				return false
			}
		}
	}

	return !containsAnyFold(l.Ingredients, rules.Ingredients)
}

// ExcludesIngredients reports whether none of keywords occurs in the
// listing's ingredients text.
func (KeywordEvaluator) ExcludesIngredients(l *models.Listing, keywords []string) bool {
	if l == nil {
		return false
	}
	return !containsAnyFold(l.Ingredients, keywords)
}

func containsAnyFold(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// Matches is KeywordEvaluator{}.Matches.
func Matches(l *models.Listing, restriction string) bool {
	return KeywordEvaluator{}.Matches(l, restriction)
}

// MatchesAll reports whether l satisfies every restriction. An empty list
// matches everything.
func MatchesAll(e Evaluator, l *models.Listing, restrictions []string) bool {
	for _, r := range restrictions {
		if !e.Matches(l, r) {
			return false
		}
	}
	return true
}
