package geo

import (
	"math"
	"testing"
)

func TestDistanceMilesSymmetricAndZero(t *testing.T) {
	pts := []Point{
		{39.7392, -104.9903}, // Denver
		{38.8339, -104.8214}, // Colorado Springs
		{40.5853, -105.0844}, // Fort Collins
		{-33.86, 151.21},
		{0, 0},
	}
	for _, a := range pts {
		if d := DistanceMiles(a, a); d != 0 {
			t.Fatalf("distance(a,a) = %v, want 0", d)
		}
		for _, b := range pts {
			if DistanceMiles(a, b) != DistanceMiles(b, a) {
				t.Fatalf("asymmetric distance for %v %v", a, b)
			}
		}
	}
}

func TestDistanceMilesKnownPair(t *testing.T) {
	d := DistanceMiles(Point{39.7392, -104.9903}, Point{38.8339, -104.8214})
	if d < 62 || d > 64 {
		t.Fatalf("Denver->Colorado Springs = %.2f mi, want ~63", d)
	}
}

func TestDistanceMilesInvalidInput(t *testing.T) {
	cases := []Point{{math.NaN(), 0}, {0, math.Inf(1)}, {91, 0}, {0, -181}}
	for _, p := range cases {
		if d := DistanceMiles(p, Point{10, 10}); d != 0 {
			t.Fatalf("invalid %v gave %v", p, d)
		}
	}
}

func TestDriveTimeHours(t *testing.T) {
	if h := DriveTimeHours(110, SpeedOpenRoad); h != 2 {
		t.Fatalf("110mi @55 = %v", h)
	}
	if h := DriveTimeHours(90, SpeedRural); h != 2 {
		t.Fatalf("90mi @45 = %v", h)
	}
	if h := DriveTimeHours(55, 0); h != 1 {
		t.Fatalf("fallback speed: %v", h)
	}
	if h := DriveTimeHours(-3, 50); h != 0 {
		t.Fatalf("negative miles: %v", h)
	}
}

func TestDistanceToSegment(t *testing.T) {
	a := Point{39.0, -105.0}
	b := Point{39.0, -103.0}
	onPath := Point{39.0, -104.0}
	if d := DistanceToSegmentMiles(onPath, a, b); d > 0.01 {
		t.Fatalf("point on path: %v", d)
	}
	north := OffsetMiles(onPath, 20, 0)
	if d := DistanceToSegmentMiles(north, a, b); math.Abs(d-20) > 0.5 {
		t.Fatalf("20mi north of path: %v", d)
	}
	beyond := Point{39.0, -102.0}
	if got, want := DistanceToSegmentMiles(beyond, a, b), DistanceMiles(beyond, b); math.Abs(got-want) > 0.01 {
		t.Fatalf("past the end should clamp to b: got %v want %v", got, want)
	}
}

func TestTravelModelMatrixOverride(t *testing.T) {
	m := NewTravelModel(55)
	m.Matrix = map[SitePair]float64{{From: "A", To: "B"}: 0.25}
	a, b := Point{39, -105}, Point{40, -105}
	if h := m.Hours("A", a, "B", b); h != 0.25 {
		t.Fatalf("matrix hit: %v", h)
	}
	if h := m.Hours("B", b, "A", a); h == 0.25 {
		t.Fatalf("matrix is directional, reverse pair should fall back")
	}
	if h, want := m.Hours("", a, "B", b), m.Between(a, b); h != want {
		t.Fatalf("unnamed site should use linear estimate")
	}
}
