// README: Trip estimate service tests with a stub router.
package trip

import (
	"context"
	"errors"
	"testing"

	"carpool/internal/types"
)

type stubRouter struct {
	miles   float64
	minutes float64
	err     error
	calls   int
}

func (r *stubRouter) Estimate(_ context.Context, _, _ types.Point) (float64, float64, error) {
	r.calls++
	return r.miles, r.minutes, r.err
}

func TestEstimate(t *testing.T) {
	router := &stubRouter{miles: 10, minutes: 20}
	svc := NewService(router, nil)

	origin := types.Point{Lat: 37.7749, Lng: -122.4194}
	destination := types.Point{Lat: 37.3382, Lng: -121.8863}

	got, err := svc.Estimate(context.Background(), origin, destination)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if got.DistanceMiles != 10 || got.DurationMinutes != 20 {
		t.Errorf("estimate = %.1f mi / %.1f min, want 10 / 20", got.DistanceMiles, got.DurationMinutes)
	}
	if router.calls != 1 {
		t.Errorf("router calls = %d, want 1", router.calls)
	}
}

func TestEstimateIdenticalPoints(t *testing.T) {
	router := &stubRouter{miles: 10, minutes: 20}
	svc := NewService(router, nil)

	p := types.Point{Lat: 37.7749, Lng: -122.4194}
	got, err := svc.Estimate(context.Background(), p, p)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if got.DistanceMiles != 0 || got.DurationMinutes != 0 {
		t.Errorf("zero-length trip = %.1f mi / %.1f min, want 0 / 0", got.DistanceMiles, got.DurationMinutes)
	}
	if router.calls != 0 {
		t.Errorf("router called %d times for identical points", router.calls)
	}
}

func TestEstimateRouterError(t *testing.T) {
	routerErr := errors.New("no route found")
	svc := NewService(&stubRouter{err: routerErr}, nil)

	_, err := svc.Estimate(context.Background(),
		types.Point{Lat: 37.7749, Lng: -122.4194},
		types.Point{Lat: 37.3382, Lng: -121.8863})
	if !errors.Is(err, routerErr) {
		t.Errorf("estimate error = %v, want router error", err)
	}
}

func TestRouteKeyPrecision(t *testing.T) {
	a := types.Point{Lat: 37.77491, Lng: -122.41941}
	b := types.Point{Lat: 37.77494, Lng: -122.41944}
	dest := types.Point{Lat: 37.3382, Lng: -121.8863}

	if routeKey(a, dest) != routeKey(b, dest) {
		t.Error("nearby pickups within ~11m produce distinct cache keys")
	}

	far := types.Point{Lat: 37.78, Lng: -122.42}
	if routeKey(a, dest) == routeKey(far, dest) {
		t.Error("distinct pickups share a cache key")
	}
}
