// README: Trip value object produced by the routing lookup.
package trip

import "carpool/internal/types"

// Trip is the immutable routing result the pricing calculator consumes.
type Trip struct {
	Origin          types.Point
	Destination     types.Point
	DistanceMiles   float64
	DurationMinutes float64
}
