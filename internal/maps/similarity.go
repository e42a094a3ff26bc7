package maps

import (
	"errors"
	"fmt"
	"math"

	"googlemaps.github.io/maps"
)

const (
	earthRadiusKm = 6371.0
	// overlapToleranceKm is how far a point may sit from the other path and still count as shared.
	overlapToleranceKm = 0.25
)

var ErrEmptyPath = errors.New("empty route path")

// PathSimilarity returns the symmetric share (0..100) of each path's points lying within
// overlapToleranceKm of the other path.
func PathSimilarity(pathA, pathB string) (float64, error) {
	a, err := decode(pathA)
	if err != nil {
		return 0, err
	}
	b, err := decode(pathB)
	if err != nil {
		return 0, err
	}
	score := (coverage(a, b) + coverage(b, a)) / 2 * 100
	return math.Max(0, math.Min(100, score)), nil
}

func decode(path string) ([]maps.LatLng, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	pts, err := maps.DecodePolyline(path)
	if err != nil {
		return nil, fmt.Errorf("decode polyline: %w", err)
	}
	if len(pts) == 0 {
		return nil, ErrEmptyPath
	}
	return pts, nil
}

// coverage is the fraction of points in a that are near the polyline b.
func coverage(a, b []maps.LatLng) float64 {
	near := 0
	for _, p := range a {
		if distanceToPathKm(p, b) <= overlapToleranceKm {
			near++
		}
	}
	return float64(near) / float64(len(a))
}

func distanceToPathKm(p maps.LatLng, path []maps.LatLng) float64 {
	if len(path) == 1 {
		return HaversineKm(p.Lat, p.Lng, path[0].Lat, path[0].Lng)
	}
	best := math.Inf(1)
	for i := 0; i+1 < len(path); i++ {
		if d := distanceToSegmentKm(p, path[i], path[i+1]); d < best {
			best = d
		}
	}
	return best
}

// distanceToSegmentKm projects onto a local equirectangular plane centred on p, which is
// accurate enough at the sub-kilometre scale the tolerance works at.
func distanceToSegmentKm(p, s1, s2 maps.LatLng) float64 {
	cosLat := math.Cos(degreesToRadians(p.Lat))
	project := func(q maps.LatLng) (float64, float64) {
		x := degreesToRadians(q.Lng-p.Lng) * cosLat * earthRadiusKm
		y := degreesToRadians(q.Lat-p.Lat) * earthRadiusKm
		return x, y
	}
	x1, y1 := project(s1)
	x2, y2 := project(s2)
	dx, dy := x2-x1, y2-y1
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(x1, y1)
	}
	t := -(x1*dx + y1*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(x1+t*dx, y1+t*dy)
}

// HaversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
