// README: Handlers for the pricing, fare-split, and refund calculators.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"carpool/internal/modules/faresplit"
	"carpool/internal/modules/pricing"
	"carpool/internal/modules/refund"
	"carpool/internal/modules/trip"
	"carpool/internal/types"
)

type PricingHandler struct {
	pricing *pricing.Service
	trips   *trip.Service
}

func NewPricingHandler(pricingService *pricing.Service, tripService *trip.Service) *PricingHandler {
	return &PricingHandler{pricing: pricingService, trips: tripService}
}

type quoteReq struct {
	Origin      types.Point `json:"origin"`
	Destination types.Point `json:"destination"`
	Seats       int         `json:"seats"`
}

// Quote resolves the route and returns the suggested per-seat price with
// its breakdown. With seats > 1 the response includes the discounted ask
// preview.
func (h *PricingHandler) Quote(c *gin.Context) {
	var req quoteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}

	t, err := h.trips.Estimate(c.Request.Context(), req.Origin, req.Destination)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	quote, err := h.pricing.Suggest(c.Request.Context(), t.DistanceMiles, t.DurationMinutes)
	if err != nil {
		writeEngineError(c, err)
		return
	}

	resp := gin.H{
		"distance_miles":   t.DistanceMiles,
		"duration_minutes": t.DurationMinutes,
		"quote":            quote,
	}
	if req.Seats > 1 {
		ask, err := pricing.PreviewAsk(quote, req.Seats)
		if err != nil {
			writeEngineError(c, err)
			return
		}
		resp["ask_per_seat"] = ask
		resp["seat_discount_percent"] = pricing.SeatDiscountPercent(req.Seats)
	}
	writeJSON(c, http.StatusOK, resp)
}

type splitReq struct {
	BasePricePerSeatCents int64 `json:"base_price_per_seat_cents"`
	Passengers            int   `json:"passengers"`
}

func (h *PricingHandler) Split(c *gin.Context) {
	var req splitReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	split, err := faresplit.Split(types.USD(req.BasePricePerSeatCents), req.Passengers)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, split)
}

type refitReq struct {
	OriginalPerSeatCents  int64 `json:"original_per_seat_cents"`
	RemainingPassengers   int   `json:"remaining_passengers"`
	BasePricePerSeatCents int64 `json:"base_price_per_seat_cents"`
}

// Refit previews the per-seat price implied after a cancellation shrinks
// the passenger count. Advisory output; nothing is collected from it.
func (h *PricingHandler) Refit(c *gin.Context) {
	var req refitReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	refit, err := faresplit.CancellationRefit(
		types.USD(req.OriginalPerSeatCents),
		req.RemainingPassengers,
		types.USD(req.BasePricePerSeatCents),
	)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, refit)
}

type refundPreviewReq struct {
	TotalPaidCents int64     `json:"total_paid_cents"`
	DepartureTime  time.Time `json:"departure_time"`
}

func (h *PricingHandler) RefundPreview(c *gin.Context) {
	var req refundPreviewReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.TotalPaidCents < 0 {
		writeError(c, http.StatusBadRequest, "total paid must be >= 0")
		return
	}

	now := time.Now().UTC()
	if d := refund.CanCancelAt(req.DepartureTime, now); !d.Allowed {
		writeJSON(c, http.StatusOK, gin.H{"cancellable": false, "reason": d.Reason})
		return
	}
	outcome := refund.Preview(types.USD(req.TotalPaidCents), req.DepartureTime, now)
	writeJSON(c, http.StatusOK, gin.H{"cancellable": true, "outcome": outcome})
}
