// README: Pricing service computes suggested per-seat prices.
package pricing

import (
	"context"
	"fmt"
	"math"

	"carpool/internal/apperrors"
	"carpool/internal/observability"
	"carpool/internal/types"
)

type Service struct {
	store *Store
}

func NewService(store *Store) *Service {
	return &Service{store: store}
}

// Suggest computes the suggested per-seat price for a trip. Rates come
// from the store when one is configured (falling back to defaults when
// the row is absent), so operators can retune without a deploy.
func (s *Service) Suggest(ctx context.Context, distanceMiles, durationMinutes float64) (PriceQuote, error) {
	rates := DefaultRates()
	if s.store != nil {
		if r, ok, err := s.store.GetRates(ctx); err != nil {
			return PriceQuote{}, err
		} else if ok {
			rates = r
		}
	}
	return Compute(rates, distanceMiles, durationMinutes)
}

// Compute is the pure pricing formula. Zero distance and duration is a
// legal degenerate input and yields base fee plus base incentive.
func Compute(r Rates, distanceMiles, durationMinutes float64) (PriceQuote, error) {
	if distanceMiles < 0 || durationMinutes < 0 {
		return PriceQuote{}, fmt.Errorf("%w: negative distance or duration", apperrors.ErrInvalidInput)
	}

	gasFee := distanceMiles / r.MilesPerGallon * r.GasPricePerGallon
	distanceFee := distanceMiles * r.DistanceRatePerMile
	timeFee := durationMinutes * r.TimeRatePerMinute
	incentive := math.Max(r.IncentiveBase, distanceMiles*r.IncentiveRatePerMile)
	total := r.BaseFee + gasFee + distanceFee + timeFee + incentive

	observability.QuotesComputedTotal.Inc()
	return PriceQuote{
		BaseFee:               types.FromDollars(r.BaseFee),
		GasFee:                types.FromDollars(gasFee),
		DistanceFee:           types.FromDollars(distanceFee),
		TimeFee:               types.FromDollars(timeFee),
		DriverIncentive:       types.FromDollars(incentive),
		SuggestedPricePerSeat: types.FromDollars(total),
	}, nil
}

// PreviewAsk applies the request-side seat discount to a computed
// suggestion. Display-only: the authoritative price of a direct request
// is whatever the driver later quotes.
func PreviewAsk(q PriceQuote, seats int) (types.Money, error) {
	if seats < 1 {
		return types.Money{}, fmt.Errorf("%w: seats must be >= 1", apperrors.ErrInvalidInput)
	}
	pct := SeatDiscountPercent(seats)
	return q.SuggestedPricePerSeat.Percent(100 - pct), nil
}
