// README: Pricing rate definitions and the suggested price breakdown.
package pricing

import "carpool/internal/types"

// Rates holds the tunable inputs of the suggested-price formula. Values
// are dollars; the computed quote is rounded to cents exactly once.
type Rates struct {
	GasPricePerGallon    float64
	MilesPerGallon       float64
	BaseFee              float64
	DistanceRatePerMile  float64
	TimeRatePerMinute    float64
	IncentiveBase        float64
	IncentiveRatePerMile float64
}

func DefaultRates() Rates {
	return Rates{
		GasPricePerGallon:    3.50,
		MilesPerGallon:       25,
		BaseFee:              4.50,
		DistanceRatePerMile:  0.55,
		TimeRatePerMinute:    0.15,
		IncentiveBase:        3.00,
		IncentiveRatePerMile: 0.20,
	}
}

// PriceQuote is the per-seat price suggestion with its breakdown.
// Breakdown fields are rounded individually for display; the suggested
// total is computed from the unrounded components and rounded once, so
// the total never accumulates per-field rounding error.
type PriceQuote struct {
	BaseFee               types.Money `json:"base_fee"`
	GasFee                types.Money `json:"gas_fee"`
	DistanceFee           types.Money `json:"distance_fee"`
	TimeFee               types.Money `json:"time_fee"`
	DriverIncentive       types.Money `json:"driver_incentive"`
	SuggestedPricePerSeat types.Money `json:"suggested_price_per_seat"`
}

// SeatDiscountPercent is the flat request-side discount a rider's ask is
// previewed with when asking for multiple seats. It is independent of the
// fare-split tiers and is never persisted as authoritative.
func SeatDiscountPercent(seats int) int {
	switch {
	case seats >= 4:
		return 40
	case seats == 3:
		return 25
	case seats == 2:
		return 15
	default:
		return 0
	}
}
