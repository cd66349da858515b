// README: Ride and booking aggregates, status tables, and pure lifecycle guards.
package ride

import (
	"fmt"
	"time"

	"carpool/internal/apperrors"
	"carpool/internal/modules/refund"
	"carpool/internal/types"
)

type RideStatus string

const (
	RideOpen      RideStatus = "open"
	RideFull      RideStatus = "full"
	RideMatched   RideStatus = "matched"
	RideCompleted RideStatus = "completed"
	RideCancelled RideStatus = "cancelled"
	RideExpired   RideStatus = "expired"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingPaid      BookingStatus = "paid"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
	BookingExpired   BookingStatus = "expired"
)

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// CompletionGate is how long after departure a ride may first be marked
// completed. A hard precondition, not advisory.
const CompletionGate = 2 * time.Hour

// Ride is a driver's posted trip. seats booked is always derived from
// its bookings, never stored independently.
type Ride struct {
	ID                   types.ID    `json:"id"`
	DriverID             types.ID    `json:"driver_id"`
	Origin               types.Point `json:"origin"`
	Destination          types.Point `json:"destination"`
	DepartureTime        time.Time   `json:"departure_time"`
	PricePerSeat         types.Money `json:"price_per_seat"`
	SeatsTotal           int         `json:"seats_total"`
	FareSplittingEnabled bool        `json:"fare_splitting_enabled"`
	Status               RideStatus  `json:"status"`
	StatusVersion        int         `json:"-"`
	CreatedAt            time.Time   `json:"created_at"`
}

// Booking is one rider's claim on seats of a ride. PricePerSeat is a
// snapshot taken at booking time; later ride price changes never touch
// existing bookings.
type Booking struct {
	ID            types.ID       `json:"id"`
	RideID        types.ID       `json:"ride_id"`
	RiderID       types.ID       `json:"rider_id"`
	RequestID     *types.ID      `json:"request_id,omitempty"`
	Seats         int            `json:"seats"`
	PricePerSeat  types.Money    `json:"price_per_seat"`
	TotalPaid     types.Money    `json:"total_paid"`
	Status        BookingStatus  `json:"status"`
	Approval      ApprovalStatus `json:"approval"`
	StatusVersion int            `json:"-"`
	CreatedAt     time.Time      `json:"created_at"`
	PaidAt        *time.Time     `json:"paid_at,omitempty"`
	ResolvedAt    *time.Time     `json:"resolved_at,omitempty"`
}

type Event struct {
	ID         int64
	RideID     types.ID
	BookingID  *types.ID
	FromStatus string
	ToStatus   string
	ActorType  string
	CreatedAt  time.Time
}

var RideTransitions = map[RideStatus][]RideStatus{
	RideOpen:    {RideFull, RideMatched, RideCompleted, RideCancelled, RideExpired},
	RideFull:    {RideOpen, RideMatched, RideCompleted, RideCancelled, RideExpired},
	RideMatched: {RideCompleted, RideCancelled},
}

var BookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingPaid, BookingCancelled, BookingExpired},
	BookingPaid:      {BookingConfirmed, BookingCompleted, BookingCancelled},
	BookingConfirmed: {BookingCompleted, BookingCancelled},
}

func CanTransitionRide(from, to RideStatus) bool {
	for _, s := range RideTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func CanTransitionBooking(from, to BookingStatus) bool {
	for _, s := range BookingTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func IsRideTerminal(s RideStatus) bool {
	_, ok := RideTransitions[s]
	return !ok
}

func IsBookingTerminal(s BookingStatus) bool {
	_, ok := BookingTransitions[s]
	return !ok
}

// CountsTowardSeats reports whether a booking reserves capacity. Seats
// are held optimistically from the moment of approval, before payment,
// to prevent overbooking during the approval window.
func (b *Booking) CountsTowardSeats() bool {
	switch b.Status {
	case BookingPaid, BookingConfirmed, BookingCompleted:
		return true
	case BookingPending:
		return b.Approval == ApprovalApproved
	default:
		return false
	}
}

// CountsTowardEarnings reports whether a booking's payment contributes
// to the ride's earnings total.
func (b *Booking) CountsTowardEarnings() bool {
	switch b.Status {
	case BookingPaid, BookingConfirmed, BookingCompleted:
		return true
	default:
		return false
	}
}

// SeatsReserved sums the seats held by bookings that count toward
// capacity.
func SeatsReserved(bookings []Booking) int {
	total := 0
	for i := range bookings {
		if bookings[i].CountsTowardSeats() {
			total += bookings[i].Seats
		}
	}
	return total
}

func (r *Ride) SeatsAvailable(bookings []Booking) int {
	return r.SeatsTotal - SeatsReserved(bookings)
}

func (r *Ride) guardNotTerminal(attempted string) error {
	if IsRideTerminal(r.Status) {
		return apperrors.Transition(apperrors.ErrTerminalState, "ride", string(r.Status), attempted)
	}
	return nil
}

// canComplete enforces the minimum-elapsed-time rule: completion is only
// legal from two hours after departure onward.
func (r *Ride) canComplete(now time.Time) error {
	if err := r.guardNotTerminal(string(RideCompleted)); err != nil {
		return err
	}
	gate := r.DepartureTime.Add(CompletionGate)
	if now.Before(gate) {
		return apperrors.TooEarly(gate.Sub(now))
	}
	return nil
}

func (r *Ride) canCancel(now time.Time) error {
	if err := r.guardNotTerminal(string(RideCancelled)); err != nil {
		return err
	}
	if d := refund.CanCancelAt(r.DepartureTime, now); !d.Allowed {
		return fmt.Errorf("%w: %s", apperrors.ErrPrecondition, d.Reason)
	}
	return nil
}

func (r *Ride) canExpire() error {
	if IsRideTerminal(r.Status) {
		return apperrors.Transition(apperrors.ErrTerminalState, "ride", string(r.Status), string(RideExpired))
	}
	if r.Status == RideMatched {
		return apperrors.Transition(apperrors.ErrIneligible, "ride", string(r.Status), string(RideExpired))
	}
	return nil
}

func (b *Booking) guardStatus(required BookingStatus, attempted string) error {
	if IsBookingTerminal(b.Status) {
		return apperrors.Transition(apperrors.ErrTerminalState, "booking", string(b.Status), attempted)
	}
	if b.Status != required {
		return apperrors.Transition(apperrors.ErrStaleState, "booking", string(b.Status), attempted)
	}
	return nil
}

// canApprove checks both the approval sub-state and the capacity
// invariant: approving must never push reserved seats past the total.
func (b *Booking) canApprove(r *Ride, seatsReserved int) error {
	if err := r.guardNotTerminal("approve_booking"); err != nil {
		return err
	}
	if err := b.guardStatus(BookingPending, "approve"); err != nil {
		return err
	}
	if b.Approval != ApprovalPending {
		return apperrors.Transition(apperrors.ErrStaleState, "booking_approval", string(b.Approval), string(ApprovalApproved))
	}
	if seatsReserved+b.Seats > r.SeatsTotal {
		return fmt.Errorf("%w: approving %d seats would exceed capacity (%d of %d reserved)",
			apperrors.ErrPrecondition, b.Seats, seatsReserved, r.SeatsTotal)
	}
	return nil
}

func (b *Booking) canReject() error {
	if err := b.guardStatus(BookingPending, "reject"); err != nil {
		return err
	}
	if b.Approval == ApprovalRejected {
		return apperrors.Transition(apperrors.ErrStaleState, "booking_approval", string(b.Approval), string(ApprovalRejected))
	}
	return nil
}

// canPay validates the captured amount against seats times the snapshot
// price. Payment requires prior driver approval.
func (b *Booking) canPay(amount types.Money) error {
	if err := b.guardStatus(BookingPending, string(BookingPaid)); err != nil {
		return err
	}
	if b.Approval != ApprovalApproved {
		return fmt.Errorf("%w: booking has not been approved", apperrors.ErrPrecondition)
	}
	expected := b.PricePerSeat.MulInt(b.Seats)
	if amount.Amount != expected.Amount {
		return fmt.Errorf("%w: payment of %s does not match %s", apperrors.ErrInvalidInput, amount, expected)
	}
	return nil
}

func (b *Booking) canConfirm() error {
	return b.guardStatus(BookingPaid, string(BookingConfirmed))
}

func (b *Booking) canCancel(departure time.Time, now time.Time) error {
	if IsBookingTerminal(b.Status) {
		return apperrors.Transition(apperrors.ErrTerminalState, "booking", string(b.Status), string(BookingCancelled))
	}
	if d := refund.CanCancelAt(departure, now); !d.Allowed {
		return fmt.Errorf("%w: %s", apperrors.ErrPrecondition, d.Reason)
	}
	return nil
}

func (b *Booking) canExpire() error {
	if err := b.guardStatus(BookingPending, string(BookingExpired)); err != nil {
		return err
	}
	return nil
}

// cancellationOutcome is the per-booking refund computed when a booking
// (or its whole ride) is cancelled. A pending booking was never paid, so
// its cancellation carries no money movement.
func (b *Booking) cancellationOutcome(departure, now time.Time) refund.Outcome {
	if b.Status == BookingPending || b.TotalPaid.IsZero() {
		return refund.Outcome{
			RefundAmount:  types.Money{Amount: 0, Currency: b.PricePerSeat.Currency},
			PenaltyAmount: types.Money{Amount: 0, Currency: b.PricePerSeat.Currency},
			Category:      refund.CategoryNoRefund,
		}
	}
	return refund.Preview(b.TotalPaid, departure, now)
}
