package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"carpool/internal/types"
)

const metersPerMile = 1609.344

// RouteService handles interactions with the Google Maps Directions API.
// It is the routing collaborator that resolves an origin/destination pair
// into the distance and duration the pricing engine consumes.
type RouteService struct {
	client *maps.Client
}

// NewRouteService creates a RouteService with the given API key.
func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// Estimate resolves a driving route and returns its distance in miles and
// duration in minutes. Assumes driving mode.
func (s *RouteService) Estimate(ctx context.Context, origin, destination types.Point) (distanceMiles, durationMinutes float64, err error) {
	r := &maps.DirectionsRequest{
		Origin:      fmt.Sprintf("%f,%f", origin.Lat, origin.Lng),
		Destination: fmt.Sprintf("%f,%f", destination.Lat, destination.Lng),
		Mode:        maps.TravelModeDriving,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return 0, 0, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, 0, fmt.Errorf("no route found")
	}

	leg := routes[0].Legs[0]
	distanceMiles = float64(leg.Distance.Meters) / metersPerMile
	durationMinutes = leg.Duration.Minutes()
	return distanceMiles, durationMinutes, nil
}
