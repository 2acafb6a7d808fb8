// Package geo holds the distance and drive-time primitives used by the scheduler.
package geo

import "math"

// EarthRadiusMiles is the mean Earth radius used by DistanceMiles.
const EarthRadiusMiles = 3958.8

// Average speeds in miles per hour. Callers pick by context, not by distance.
const (
	SpeedRural    = 45.0
	SpeedOpenRoad = 55.0
)

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Valid reports whether p is a finite, in-range coordinate.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// IsZero reports whether p is the zero coordinate, used as "unknown".
func (p Point) IsZero() bool { return p.Lat == 0 && p.Lng == 0 }

// DistanceMiles returns the great-circle distance between a and b.
// Invalid input yields 0 so that route arithmetic never has to branch.
func DistanceMiles(a, b Point) float64 {
	if !a.Valid() || !b.Valid() {
		return 0
	}
	if a == b {
		return 0
	}
	// canonical order keeps the float result identical in both directions
	if b.Lat < a.Lat || (b.Lat == a.Lat && b.Lng < a.Lng) {
		a, b = b, a
	}
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusMiles * math.Asin(math.Sqrt(h))
}

// DriveTimeHours converts miles to hours at avgSpeed mph. A non-positive
// speed falls back to SpeedOpenRoad.
func DriveTimeHours(miles, avgSpeed float64) float64 {
	if avgSpeed <= 0 {
		avgSpeed = SpeedOpenRoad
	}
	if miles <= 0 || math.IsNaN(miles) {
		return 0
	}
	return miles / avgSpeed
}
