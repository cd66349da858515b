// README: Fare-split output types and the progressive discount tiers.
package faresplit

import "carpool/internal/types"

// RideType distinguishes a driver's posted ride from a rider-initiated
// direct request. Only driver posts are eligible for fare splitting.
type RideType string

const (
	RideTypeDriverPost   RideType = "driver_post"
	RideTypeRiderRequest RideType = "rider_request"
)

// FareSplit is the result of splitting a posted per-seat price across a
// passenger count.
type FareSplit struct {
	DiscountPercentage     int         `json:"discount_percentage"`
	DiscountedPricePerSeat types.Money `json:"discounted_price_per_seat"`
	DriverEarnings         types.Money `json:"driver_earnings"`
	PassengerSavings       types.Money `json:"passenger_savings"`
}

// Refit is the advisory recomputation after a passenger cancels: the
// per-seat price implied by the reduced count and the increase a
// remaining passenger would owe if the platform charged incrementally.
// It is informational output only; nothing collects it.
type Refit struct {
	NewPricePerSeat types.Money `json:"new_price_per_seat"`
	IncreasePerSeat types.Money `json:"increase_per_seat"`
}

// DiscountPercent returns the tier for a passenger count. Tiers are a
// fixed lookup, not interpolated, and cap at 50.
func DiscountPercent(totalPassengers int) int {
	switch {
	case totalPassengers >= 4:
		return 50
	case totalPassengers == 3:
		return 40
	case totalPassengers == 2:
		return 25
	default:
		return 0
	}
}
