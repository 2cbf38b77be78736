// Package geo computes great-circle distances between listing and requester locations.
package geo

import (
	"math"

	"github.com/nitesh/meal_service/pkg/models"
)

// EarthRadiusMiles is the mean earth radius used for all distances.
const EarthRadiusMiles = 3959.0

// Miles returns the haversine distance in statute miles, unrounded.
func Miles(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	// rounding can push a a hair above 1 for antipodal points
	a = math.Min(1, a)
	return 2 * EarthRadiusMiles * math.Asin(math.Sqrt(a))
}

// Distance returns the distance between p1 and p2 in miles rounded to one
// decimal place, or nil if either point is missing a coordinate.
func Distance(p1, p2 models.GeoPoint) *float64 {
	if !p1.Valid() || !p2.Valid() {
		return nil
	}
	d := math.Round(Miles(*p1.Latitude, *p1.Longitude, *p2.Latitude, *p2.Longitude)*10) / 10
	return &d
}
