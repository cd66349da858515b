// README: Direct request negotiation handlers.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"carpool/internal/modules/request"
	"carpool/internal/types"
)

type RequestHandler struct {
	requests *request.Service
}

func NewRequestHandler(svc *request.Service) *RequestHandler {
	return &RequestHandler{requests: svc}
}

type createRequestReq struct {
	RequesterID          string      `json:"requester_id"`
	DriverID             string      `json:"driver_id"`
	Origin               types.Point `json:"origin"`
	Destination          types.Point `json:"destination"`
	DepartureTime        time.Time   `json:"departure_time"`
	SeatsRequested       int         `json:"seats_requested"`
	MaxPricePerSeatCents int64       `json:"max_price_per_seat_cents"`
	Message              string      `json:"message"`
}

func (h *RequestHandler) Create(c *gin.Context) {
	var req createRequestReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	id, err := h.requests.Create(c.Request.Context(), request.CreateCommand{
		RequesterID:     types.ID(req.RequesterID),
		DriverID:        types.ID(req.DriverID),
		Origin:          req.Origin,
		Destination:     req.Destination,
		DepartureTime:   req.DepartureTime,
		SeatsRequested:  req.SeatsRequested,
		MaxPricePerSeat: types.USD(req.MaxPricePerSeatCents),
		Message:         req.Message,
		Now:             time.Now().UTC(),
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"request_id": id, "status": request.StatusPending})
}

func (h *RequestHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid request id")
		return
	}
	r, err := h.requests.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

type quoteRequestReq struct {
	DriverID   string `json:"driver_id"`
	PriceCents int64  `json:"price_cents"`
}

func (h *RequestHandler) Quote(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid request id")
		return
	}
	var req quoteRequestReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	res, err := h.requests.Quote(c.Request.Context(), request.QuoteCommand{
		RequestID: types.ID(id),
		DriverID:  types.ID(req.DriverID),
		Price:     types.USD(req.PriceCents),
		Now:       time.Now().UTC(),
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"status":       res.Request.Status,
		"quoted_price": res.Request.QuotedPrice,
		"above_max":    res.AboveMax,
	})
}

func (h *RequestHandler) AcceptQuote(c *gin.Context) {
	h.action(c, func(id types.ID, now time.Time) error {
		return h.requests.AcceptQuote(c.Request.Context(), request.AcceptQuoteCommand{
			RequestID:   id,
			RequesterID: types.ID(c.Query("requester_id")),
			Now:         now,
		})
	})
}

func (h *RequestHandler) DeclineQuote(c *gin.Context) {
	h.action(c, func(id types.ID, now time.Time) error {
		return h.requests.DeclineQuote(c.Request.Context(), request.DeclineQuoteCommand{
			RequestID:   id,
			RequesterID: types.ID(c.Query("requester_id")),
			Now:         now,
		})
	})
}

func (h *RequestHandler) Decline(c *gin.Context) {
	h.action(c, func(id types.ID, now time.Time) error {
		return h.requests.Decline(c.Request.Context(), request.DeclineCommand{
			RequestID: id,
			DriverID:  types.ID(c.Query("driver_id")),
			Now:       now,
		})
	})
}

func (h *RequestHandler) Cancel(c *gin.Context) {
	h.action(c, func(id types.ID, now time.Time) error {
		return h.requests.Cancel(c.Request.Context(), request.CancelCommand{
			RequestID:   id,
			RequesterID: types.ID(c.Query("requester_id")),
			Now:         now,
		})
	})
}

// Book converts a confirmed negotiation into its booking.
func (h *RequestHandler) Book(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid request id")
		return
	}
	b, err := h.requests.Book(c.Request.Context(), request.BookCommand{
		RequestID:   types.ID(id),
		RequesterID: types.ID(c.Query("requester_id")),
		Now:         time.Now().UTC(),
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{
		"booking_id":     b.ID,
		"ride_id":        b.RideID,
		"status":         b.Status,
		"price_per_seat": b.PricePerSeat,
	})
}

func (h *RequestHandler) action(c *gin.Context, fn func(id types.ID, now time.Time) error) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid request id")
		return
	}
	if err := fn(types.ID(id), time.Now().UTC()); err != nil {
		writeEngineError(c, err)
		return
	}
	r, err := h.requests.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": r.Status})
}
