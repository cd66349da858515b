// README: Trip estimate service; routes through the maps client with a Redis cache in front.
package trip

import (
	"context"
	"fmt"

	"carpool/internal/apperrors"
	"carpool/internal/observability"
	"carpool/internal/types"
)

// Router resolves an origin/destination pair into distance and duration.
type Router interface {
	Estimate(ctx context.Context, origin, destination types.Point) (distanceMiles, durationMinutes float64, err error)
}

type Service struct {
	router Router
	store  *Store
}

func NewService(router Router, store *Store) *Service {
	return &Service{router: router, store: store}
}

// Estimate returns the Trip for an origin/destination pair. Identical
// coordinate pairs hit the cache; cache failures fall through to the
// router rather than failing the request.
func (s *Service) Estimate(ctx context.Context, origin, destination types.Point) (Trip, error) {
	if origin == destination {
		return Trip{Origin: origin, Destination: destination}, nil
	}

	key := routeKey(origin, destination)
	if s.store != nil {
		if t, ok, err := s.store.Get(ctx, key); err == nil && ok {
			observability.TripCacheHits.Inc()
			t.Origin = origin
			t.Destination = destination
			return t, nil
		}
		observability.TripCacheMisses.Inc()
	}

	if s.router == nil {
		return Trip{}, fmt.Errorf("%w: no routing backend configured", apperrors.ErrPrecondition)
	}
	miles, minutes, err := s.router.Estimate(ctx, origin, destination)
	if err != nil {
		return Trip{}, err
	}

	t := Trip{
		Origin:          origin,
		Destination:     destination,
		DistanceMiles:   miles,
		DurationMinutes: minutes,
	}
	if s.store != nil {
		_ = s.store.Set(ctx, key, t)
	}
	return t, nil
}

func routeKey(origin, destination types.Point) string {
	// 4 decimal places is ~11m of precision, enough to share cache entries
	// between nearby pickups without conflating distinct routes.
	return fmt.Sprintf("%.4f,%.4f|%.4f,%.4f", origin.Lat, origin.Lng, destination.Lat, destination.Lng)
}
