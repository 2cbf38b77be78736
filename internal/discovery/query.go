// Package discovery turns a MatchQuery into a filtered, distance ranked page of
// listings. Filtering is split between a structural predicate pushed down to
// the listing store and in-memory rule evaluation, so the store is asked for
// more candidates than the page needs.
package discovery

import (
	"context"

	"github.com/nitesh/meal_service/pkg/models"
)

// MatchQuery holds the parameters of one discover or recommend request.
type MatchQuery struct {
	CuisineType      string
	MealType         string
	MaxPrice         *float64
	AvailableForSale *bool
	AvailableForSwap *bool
	MinRating        *float64

	// DietaryRestrictions must all be satisfied.
	DietaryRestrictions []string
	// ExcludeAllergens drops listings declaring any of these exact allergens.
	ExcludeAllergens []string
	// ExcludeIngredients drops listings whose ingredients mention any keyword.
	ExcludeIngredients []string

	Location         models.GeoPoint
	MaxDistanceMiles *float64

	Skip  int
	Limit int

	// PreferredCuisines reorders recommendations; it never filters.
	PreferredCuisines []string
}

// ListingFinder runs a structural query against the listing store.
type ListingFinder interface {
	FindListings(ctx context.Context, f models.ListingFilter, skip, limit int) ([]*models.Listing, error)
}

// SellerFinder resolves the user owning a listing. It returns an apperr
// NotFound error when the user does not exist.
type SellerFinder interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}
