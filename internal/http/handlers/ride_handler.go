// README: Ride and booking lifecycle handlers.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"carpool/internal/modules/ride"
	"carpool/internal/types"
)

type RideHandler struct {
	rides *ride.Service
}

func NewRideHandler(svc *ride.Service) *RideHandler {
	return &RideHandler{rides: svc}
}

type postRideReq struct {
	DriverID          string      `json:"driver_id"`
	Origin            types.Point `json:"origin"`
	Destination       types.Point `json:"destination"`
	DepartureTime     time.Time   `json:"departure_time"`
	PricePerSeatCents int64       `json:"price_per_seat_cents"`
	SeatsTotal        int         `json:"seats_total"`
	FareSplitOptIn    bool        `json:"fare_split_opt_in"`
}

func (h *RideHandler) Post(c *gin.Context) {
	var req postRideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	id, err := h.rides.Post(c.Request.Context(), ride.PostCommand{
		DriverID:       types.ID(req.DriverID),
		Origin:         req.Origin,
		Destination:    req.Destination,
		DepartureTime:  req.DepartureTime,
		PricePerSeat:   types.USD(req.PricePerSeatCents),
		SeatsTotal:     req.SeatsTotal,
		FareSplitOptIn: req.FareSplitOptIn,
		Now:            time.Now().UTC(),
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"ride_id": id, "status": ride.RideOpen})
}

func (h *RideHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid ride id")
		return
	}
	r, err := h.rides.GetRide(c.Request.Context(), types.ID(id))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	bookings, err := h.rides.ListBookings(c.Request.Context(), r.ID)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"ride":            r,
		"seats_available": r.SeatsAvailable(bookings),
	})
}

type bookSeatReq struct {
	RiderID string `json:"rider_id"`
	Seats   int    `json:"seats"`
}

func (h *RideHandler) BookSeat(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid ride id")
		return
	}
	var req bookSeatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	b, err := h.rides.BookSeat(c.Request.Context(), ride.BookSeatCommand{
		RideID:  types.ID(id),
		RiderID: types.ID(req.RiderID),
		Seats:   req.Seats,
		Now:     time.Now().UTC(),
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{
		"booking_id":     b.ID,
		"status":         b.Status,
		"price_per_seat": b.PricePerSeat,
	})
}

func (h *RideHandler) Complete(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid ride id")
		return
	}
	err := h.rides.CompleteRide(c.Request.Context(), ride.CompleteRideCommand{
		RideID:   types.ID(id),
		DriverID: types.ID(c.Query("driver_id")),
		Now:      time.Now().UTC(),
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": ride.RideCompleted})
}

func (h *RideHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid ride id")
		return
	}
	outcomes, err := h.rides.CancelRide(c.Request.Context(), ride.CancelRideCommand{
		RideID:   types.ID(id),
		DriverID: types.ID(c.Query("driver_id")),
		Now:      time.Now().UTC(),
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": ride.RideCancelled, "refunds": outcomes})
}

func (h *RideHandler) Earnings(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid ride id")
		return
	}
	total, err := h.rides.TotalEarnings(c.Request.Context(), types.ID(id))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"total_earnings": total})
}

func (h *RideHandler) GetBooking(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid booking id")
		return
	}
	b, err := h.rides.GetBooking(c.Request.Context(), types.ID(id))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}

func (h *RideHandler) Approve(c *gin.Context) {
	h.bookingAction(c, func(id types.ID, now time.Time) error {
		return h.rides.Approve(c.Request.Context(), ride.ApproveCommand{
			BookingID: id,
			DriverID:  types.ID(c.Query("driver_id")),
			Now:       now,
		})
	})
}

func (h *RideHandler) Reject(c *gin.Context) {
	h.bookingAction(c, func(id types.ID, now time.Time) error {
		return h.rides.Reject(c.Request.Context(), ride.RejectCommand{
			BookingID: id,
			DriverID:  types.ID(c.Query("driver_id")),
			Now:       now,
		})
	})
}

type payReq struct {
	AmountCents int64 `json:"amount_cents"`
}

func (h *RideHandler) Pay(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid booking id")
		return
	}
	var req payReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.rides.Pay(c.Request.Context(), ride.PayCommand{
		BookingID: types.ID(id),
		Amount:    types.USD(req.AmountCents),
		Now:       time.Now().UTC(),
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": ride.BookingPaid})
}

func (h *RideHandler) Confirm(c *gin.Context) {
	h.bookingAction(c, func(id types.ID, now time.Time) error {
		return h.rides.Confirm(c.Request.Context(), ride.ConfirmCommand{
			BookingID: id,
			DriverID:  types.ID(c.Query("driver_id")),
			Now:       now,
		})
	})
}

func (h *RideHandler) CancelBooking(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid booking id")
		return
	}
	outcome, err := h.rides.CancelBooking(c.Request.Context(), ride.CancelBookingCommand{
		BookingID: types.ID(id),
		Now:       time.Now().UTC(),
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": ride.BookingCancelled, "refund": outcome})
}

func (h *RideHandler) bookingAction(c *gin.Context, fn func(id types.ID, now time.Time) error) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid booking id")
		return
	}
	if err := fn(types.ID(id), time.Now().UTC()); err != nil {
		writeEngineError(c, err)
		return
	}
	b, err := h.rides.GetBooking(c.Request.Context(), types.ID(id))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": b.Status, "approval": b.Approval})
}
