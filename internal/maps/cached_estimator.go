package maps

import (
	"context"

	"golang.org/x/sync/singleflight"

	"carpool/internal/observability"
	"carpool/internal/types"
)

// CachedEstimator fronts an Estimator with a RouteCache and collapses concurrent
// lookups for the same coordinate pair into one backend call.
type CachedEstimator struct {
	next  Estimator
	cache RouteCache
	group singleflight.Group
}

func NewCachedEstimator(next Estimator, cache RouteCache) *CachedEstimator {
	if cache == nil {
		cache = NopCache{}
	}
	return &CachedEstimator{next: next, cache: cache}
}

func (c *CachedEstimator) EstimateRoute(ctx context.Context, origin, dest types.Point) (Estimate, error) {
	if e, ok := c.cache.Get(ctx, origin, dest); ok {
		observability.RouteCacheLookups.WithLabelValues("hit").Inc()
		return e, nil
	}
	observability.RouteCacheLookups.WithLabelValues("miss").Inc()

	v, err, _ := c.group.Do(pairKey(origin, dest), func() (any, error) {
		e, err := c.next.EstimateRoute(ctx, origin, dest)
		if err != nil {
			return Estimate{}, err
		}
		c.cache.Set(ctx, origin, dest, e)
		return e, nil
	})
	if err != nil {
		return Estimate{}, err
	}
	return v.(Estimate), nil
}

func (c *CachedEstimator) PathSimilarity(ctx context.Context, pathA, pathB string) (float64, error) {
	return c.next.PathSimilarity(ctx, pathA, pathB)
}
