package maps

import (
	"math"
	"testing"

	"googlemaps.github.io/maps"
)

func line(lat, lng0, lng1 float64, n int) []maps.LatLng {
	pts := make([]maps.LatLng, n)
	for i := range pts {
		pts[i] = maps.LatLng{Lat: lat, Lng: lng0 + (lng1-lng0)*float64(i)/float64(n-1)}
	}
	return pts
}

func TestPathSimilarityIdentical(t *testing.T) {
	p := maps.Encode(line(25.03, 121.50, 121.60, 20))
	got, err := PathSimilarity(p, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 100 {
		t.Fatalf("identical paths = %v, want 100", got)
	}
}

func TestPathSimilarityDisjoint(t *testing.T) {
	a := maps.Encode(line(25.03, 121.50, 121.60, 10))
	b := maps.Encode(line(24.50, 121.50, 121.60, 10)) // ~59 km south
	got, err := PathSimilarity(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0 {
		t.Fatalf("disjoint paths = %v, want 0", got)
	}
}

func TestPathSimilarityPartialOverlap(t *testing.T) {
	// b covers the first half of a, with sparse vertices so segment distance matters.
	a := maps.Encode(line(25.03, 121.50, 121.60, 11))
	b := maps.Encode([]maps.LatLng{{Lat: 25.03, Lng: 121.50}, {Lat: 25.03, Lng: 121.55}})
	got, err := PathSimilarity(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 6 of 11 points of a lie on b; both points of b lie on a.
	want := (6.0/11.0 + 1.0) / 2 * 100
	if math.Abs(got-want) > 1e-6 {
		t.Fatalf("partial overlap = %v, want %v", got, want)
	}
}

func TestPathSimilarityEmpty(t *testing.T) {
	if _, err := PathSimilarity("", "abc"); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestHaversineKm(t *testing.T) {
	// Taipei 101 to Taipei Main Station is roughly 4.9 km.
	d := HaversineKm(25.0340, 121.5645, 25.0478, 121.5170)
	if d < 4.5 || d > 5.3 {
		t.Fatalf("distance = %.3f km, want ~4.9", d)
	}
	if HaversineKm(1, 1, 1, 1) != 0 {
		t.Fatal("same point should be 0")
	}
}
