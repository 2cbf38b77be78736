package api

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nitesh/meal_service/internal/apperr"
	dbtypes "github.com/nitesh/meal_service/internal/db"
	"github.com/nitesh/meal_service/internal/discovery"
	"github.com/nitesh/meal_service/pkg/models"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// parseDiscoverQuery reads every discover filter from the query string.
func parseDiscoverQuery(c *gin.Context) (discovery.MatchQuery, error) {
	q := discovery.MatchQuery{
		CuisineType:         c.Query("cuisine_type"),
		MealType:            c.Query("meal_type"),
		DietaryRestrictions: dbtypes.FromCSV(c.Query("dietary_restriction")),
		ExcludeAllergens:    dbtypes.FromCSV(c.Query("exclude_allergens")),
		ExcludeIngredients:  dbtypes.FromCSV(c.Query("exclude_ingredients")),
	}
	var err error
	if q.MaxPrice, err = optFloat(c, "max_price"); err != nil {
		return q, err
	}
	if q.MinRating, err = optFloat(c, "min_rating"); err != nil {
		return q, err
	}
	if q.AvailableForSale, err = optBool(c, "available_for_sale"); err != nil {
		return q, err
	}
	if q.AvailableForSwap, err = optBool(c, "available_for_swap"); err != nil {
		return q, err
	}
	if err := parsePlace(c, &q); err != nil {
		return q, err
	}
	return q, parsePage(c, &q)
}

// parseRecommendQuery reads the parameters recommendations honour. Dietary
// filters come from the stored profile instead.
func parseRecommendQuery(c *gin.Context) (discovery.MatchQuery, error) {
	q := discovery.MatchQuery{
		PreferredCuisines: dbtypes.FromCSV(c.Query("preferred_cuisines")),
	}
	if err := parsePlace(c, &q); err != nil {
		return q, err
	}
	return q, parsePage(c, &q)
}

func parsePlace(c *gin.Context, q *discovery.MatchQuery) error {
	lat, err := optFloat(c, "latitude")
	if err != nil {
		return err
	}
	lon, err := optFloat(c, "longitude")
	if err != nil {
		return err
	}
	if (lat == nil) != (lon == nil) {
		return apperr.Invalid("latitude and longitude must be given together")
	}
	if lat != nil {
		if math.Abs(*lat) > 90 || math.Abs(*lon) > 180 {
			return apperr.Invalid("invalid latitude/longitude values")
		}
		q.Location = models.GeoPoint{Latitude: lat, Longitude: lon}
	}

	if q.MaxDistanceMiles, err = optFloat(c, "max_distance_miles"); err != nil {
		return err
	}
	if q.MaxDistanceMiles != nil && *q.MaxDistanceMiles <= 0 {
		return apperr.Invalid("max_distance_miles must be positive")
	}
	return nil
}

func parsePage(c *gin.Context, q *discovery.MatchQuery) error {
	q.Limit = parseLimit(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	skip, err := strconv.Atoi(c.DefaultQuery("skip", "0"))
	if err != nil || skip < 0 {
		return apperr.Invalid("skip must be a non-negative integer")
	}
	q.Skip = skip
	return nil
}

func pageMeta(q discovery.MatchQuery, count int) gin.H {
	meta := gin.H{
		"count": count,
		"skip":  q.Skip,
		"limit": q.Limit,
	}
	if q.Location.Valid() {
		meta["latitude"] = *q.Location.Latitude
		meta["longitude"] = *q.Location.Longitude
	}
	if q.MaxDistanceMiles != nil {
		meta["max_distance_miles"] = *q.MaxDistanceMiles
	}
	return meta
}

func optFloat(c *gin.Context, name string) (*float64, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, apperr.Invalid("%s must be a number", name)
	}
	return &v, nil
}

func optBool(c *gin.Context, name string) (*bool, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperr.Invalid("%s must be true or false", name)
	}
	return &v, nil
}

// parseLimit ensures a sane integer limit, with bounds
func parseLimit(s string) int {
	l, err := strconv.Atoi(s)
	if err != nil || l <= 0 {
		return defaultLimit
	}
	if l > maxLimit {
		return maxLimit
	}
	return l
}
