package maps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"carpool/internal/types"
)

// DefaultTimeout bounds every call to the routing backend.
const DefaultTimeout = 10 * time.Second

var ErrNoRoute = errors.New("no route found")

// Estimate is a single origin→destination route estimate.
type Estimate struct {
	DistanceKm  float64 `json:"distance_km"`
	DurationMin float64 `json:"duration_min"`
	Path        string  `json:"path,omitempty"`
}

// Estimator is the route estimation port used by the carpool core.
type Estimator interface {
	EstimateRoute(ctx context.Context, origin, dest types.Point) (Estimate, error)
	PathSimilarity(ctx context.Context, pathA, pathB string) (float64, error)
}

type directionsClient interface {
	Directions(ctx context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error)
}

// RouteService handles interactions with Google Maps API.
type RouteService struct {
	client  directionsClient
	timeout time.Duration
}

// NewRouteService creates a new RouteService with the given API Key.
func NewRouteService(apiKey string, timeout time.Duration) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RouteService{client: client, timeout: timeout}, nil
}

// EstimateRoute returns driving distance, duration and the overview polyline.
func (s *RouteService) EstimateRoute(ctx context.Context, origin, dest types.Point) (Estimate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	r := &maps.DirectionsRequest{
		Origin:      origin.String(),
		Destination: dest.String(),
		Mode:        maps.TravelModeDriving,
	}
	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return Estimate{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return Estimate{}, ErrNoRoute
	}

	var meters int
	var dur time.Duration
	for _, leg := range routes[0].Legs {
		meters += leg.Distance.Meters
		dur += leg.Duration
	}
	return Estimate{
		DistanceKm:  float64(meters) / 1000,
		DurationMin: dur.Minutes(),
		Path:        routes[0].OverviewPolyline.Points,
	}, nil
}

// PathSimilarity scores two encoded polylines; it only decodes, so no network call is made.
func (s *RouteService) PathSimilarity(ctx context.Context, pathA, pathB string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return PathSimilarity(pathA, pathB)
}
