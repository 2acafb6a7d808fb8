package geo

import "math"

// milesPerDegree is the length of one degree of latitude.
const milesPerDegree = EarthRadiusMiles * math.Pi / 180

// DistanceToSegmentMiles returns the distance from p to the straight path a→b.
// The path is projected onto a local plane around its midpoint, which is
// accurate enough for corridors of a few hundred miles.
func DistanceToSegmentMiles(p, a, b Point) float64 {
	if !p.Valid() || !a.Valid() || !b.Valid() {
		return 0
	}
	if a == b {
		return DistanceMiles(p, a)
	}
	cosLat := math.Cos((a.Lat + b.Lat) / 2 * math.Pi / 180)
	ax, ay := a.Lng*cosLat, a.Lat
	bx, by := b.Lng*cosLat, b.Lat
	px, py := p.Lng*cosLat, p.Lat
	dx, dy := bx-ax, by-ay
	t := ((px-ax)*dx + (py-ay)*dy) / (dx*dx + dy*dy)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	closest := Point{Lat: ay + t*dy, Lng: a.Lng + t*(b.Lng-a.Lng)}
	return DistanceMiles(p, closest)
}

// Interpolate returns the point a fraction t of the way from a to b in the
// same planar approximation.
func Interpolate(a, b Point, t float64) Point {
	return Point{Lat: a.Lat + t*(b.Lat-a.Lat), Lng: a.Lng + t*(b.Lng-a.Lng)}
}

// OffsetMiles moves p north and east by the given number of miles.
func OffsetMiles(p Point, north, east float64) Point {
	cosLat := math.Cos(p.Lat * math.Pi / 180)
	if cosLat < 1e-9 {
		cosLat = 1e-9
	}
	return Point{Lat: p.Lat + north/milesPerDegree, Lng: p.Lng + east/(milesPerDegree*cosLat)}
}
