package models

import (
	"time"

	dbtypes "github.com/nitesh/meal_service/internal/db"
)

// Listing status values.
const (
	StatusAvailable = "available"
	StatusReserved  = "reserved"
	StatusExpired   = "expired"
	StatusRemoved   = "removed"
)

// GeoPoint is a latitude/longitude pair. Either coordinate may be absent.
type GeoPoint struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// Point builds a GeoPoint with both coordinates set.
func Point(lat, lon float64) GeoPoint {
	return GeoPoint{Latitude: &lat, Longitude: &lon}
}

// Valid reports whether both coordinates are present.
func (p GeoPoint) Valid() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// Location is a GeoPoint plus the human readable place it was taken from.
type Location struct {
	GeoPoint
	City  string `json:"city,omitempty"`
	State string `json:"state,omitempty"`
}

// AllergenInfo lists allergens a meal contains or may contain.
type AllergenInfo struct {
	Contains   dbtypes.StringSlice `json:"contains"`
	MayContain dbtypes.StringSlice `json:"may_contain"`
}

// Listing is a meal offered for sale or swap.
type Listing struct {
	ID                 string              `json:"id"`
	SellerID           string              `json:"seller_id"`
	Title              string              `json:"title"`
	Description        string              `json:"description"`
	CuisineType        string              `json:"cuisine_type"`
	MealType           string              `json:"meal_type"`
	Ingredients        string              `json:"ingredients"`
	Photos             dbtypes.StringSlice `json:"photos"`
	AllergenInfo       AllergenInfo        `json:"allergen_info"`
	PortionSize        string              `json:"portion_size"`
	AvailableForSale   bool                `json:"available_for_sale"`
	SalePrice          *float64            `json:"sale_price,omitempty"`
	AvailableForSwap   bool                `json:"available_for_swap"`
	SwapPreferences    dbtypes.StringSlice `json:"swap_preferences"`
	Status             string              `json:"status"`
	SellerLocation     Location            `json:"seller_location"`
	PreparationDate    time.Time           `json:"preparation_date"`
	ExpiresDate        time.Time           `json:"expires_date"`
	PickupInstructions string              `json:"pickup_instructions,omitempty"`
	AverageRating      float64             `json:"average_rating"`
	TotalReviews       int                 `json:"total_reviews"`
	Views              int                 `json:"views"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// DietaryProfile is the stored preference set of a user.
type DietaryProfile struct {
	DietaryRestrictions dbtypes.StringSlice `json:"dietary_restrictions"`
	Allergens           dbtypes.StringSlice `json:"allergens"`
	AvoidIngredients    dbtypes.StringSlice `json:"avoid_ingredients"`
	CuisinePreferences  dbtypes.StringSlice `json:"cuisine_preferences"`
}

// User is both the authenticated requester and, when it owns listings, a seller.
type User struct {
	ID                 string         `json:"id"`
	Email              string         `json:"email"`
	FullName           string         `json:"full_name"`
	Location           Location       `json:"location"`
	AverageRating      float64        `json:"average_rating"`
	DietaryPreferences DietaryProfile `json:"dietary_preferences"`
	CreatedAt          time.Time      `json:"created_at"`
}

// RankedResult is a listing annotated for a specific requester. Not persisted.
type RankedResult struct {
	*Listing
	// Distance in miles, nil when either endpoint has no coordinates.
	Distance     *float64 `json:"distance"`
	SellerName   string   `json:"seller_name"`
	SellerRating float64  `json:"seller_rating"`
}

// SortOrder names the orderings a ListingFilter query supports.
type SortOrder string

const (
	SortCreatedDesc SortOrder = "created_at_desc"
)

// ListingFilter is the structural predicate pushed down to a listing store.
// Nil / empty fields do not constrain.
type ListingFilter struct {
	Status             string
	CuisineType        string
	MealType           string
	MaxPrice           *float64
	AvailableForSale   *bool
	AvailableForSwap   *bool
	MinRating          *float64
	ExcludeAllergens   []string
	ExcludeIngredients []string
	SellerID           string
	ExcludeSellerID    string
	Sort               SortOrder
}
