package calculator

import (
	"math"

	"geo-correlate/internal/models"
)

const EarthRadius = 6371000.0 // meters

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// Haversine computes the great-circle distance between two points in meters.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := toRadians(lat1)
	lat2Rad := toRadians(lat2)

	dLat := math.Abs(lat2Rad - lat1Rad)
	dLon := math.Abs(toRadians(lon2) - toRadians(lon1))

	sLat := math.Sin(dLat / 2)
	sLon := math.Sin(dLon / 2)
	a := sLat*sLat + math.Cos(lat1Rad)*math.Cos(lat2Rad)*sLon*sLon

	// rounding can push a slightly outside [0,1] near antipodes
	if a < 0 {
		a = 0
	} else if a > 1 {
		a = 1
	}
	return 2 * EarthRadius * math.Asin(math.Sqrt(a))
}

// Distance is Haversine over models.Point. Identical points are exactly 0.
func Distance(p, q models.Point) float64 {
	if p == q {
		return 0
	}
	return Haversine(p.Lat, p.Lon, q.Lat, q.Lon)
}
