// README: Fare-split calculator; pure functions, no persistence.
package faresplit

import (
	"fmt"

	"carpool/internal/apperrors"
	"carpool/internal/observability"
	"carpool/internal/types"
)

// Split computes the discounted per-seat price, total driver earnings,
// and per-passenger savings for a passenger count. Total for any valid
// input, so callers may use it for previews; persistence-side callers
// must gate on IsEligible first.
func Split(basePricePerSeat types.Money, totalPassengers int) (FareSplit, error) {
	if totalPassengers < 1 {
		return FareSplit{}, fmt.Errorf("%w: passengers must be >= 1", apperrors.ErrInvalidInput)
	}
	if basePricePerSeat.Amount <= 0 {
		return FareSplit{}, fmt.Errorf("%w: base price must be positive", apperrors.ErrInvalidInput)
	}

	pct := DiscountPercent(totalPassengers)
	discounted := basePricePerSeat.Percent(100 - pct)

	observability.FareSplitsTotal.Inc()
	return FareSplit{
		DiscountPercentage:     pct,
		DiscountedPricePerSeat: discounted,
		DriverEarnings:         discounted.MulInt(totalPassengers),
		PassengerSavings:       basePricePerSeat.Sub(discounted),
	}, nil
}

// IsEligible reports whether fare splitting may be persisted for a ride.
// Direct requests and single-seat posts never qualify, and the driver
// must have opted in.
func IsEligible(rideType RideType, seatsTotal int, driverOptIn bool) bool {
	return rideType == RideTypeDriverPost && seatsTotal > 1 && driverOptIn
}

// CancellationRefit recomputes the per-seat price implied by the reduced
// passenger count after a cancellation. originalPerSeat is what a
// remaining passenger actually paid per seat.
func CancellationRefit(originalPerSeat types.Money, remainingPassengers int, basePricePerSeat types.Money) (Refit, error) {
	split, err := Split(basePricePerSeat, remainingPassengers)
	if err != nil {
		return Refit{}, err
	}
	increase := split.DiscountedPricePerSeat.Sub(originalPerSeat)
	if increase.Amount < 0 {
		// The remaining count can only shrink the discount, but guard the
		// snapshot-price case where a passenger paid above the current base.
		increase.Amount = 0
	}
	return Refit{
		NewPricePerSeat: split.DiscountedPricePerSeat,
		IncreasePerSeat: increase,
	}, nil
}
