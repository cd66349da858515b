// README: Direct ride request aggregate, status table, and pure transition guards.
package request

import (
	"fmt"
	"time"

	"carpool/internal/apperrors"
	"carpool/internal/types"
)

type Status string

const (
	StatusPending      Status = "pending"
	StatusDriverQuoted Status = "driver_quoted"
	StatusConfirmed    Status = "confirmed"
	StatusDeclined     Status = "declined"
	StatusCancelled    Status = "cancelled"
	StatusExpired      Status = "expired"
	StatusBooked       Status = "booked"
)

// Request is a rider-initiated ask targeted at a specific driver,
// negotiated via quote/accept rather than booking a posted ride.
type Request struct {
	ID              types.ID     `json:"id"`
	RequesterID     types.ID     `json:"requester_id"`
	DriverID        types.ID     `json:"driver_id"`
	Origin          types.Point  `json:"origin"`
	Destination     types.Point  `json:"destination"`
	DepartureTime   time.Time    `json:"departure_time"`
	SeatsRequested  int          `json:"seats_requested"`
	MaxPricePerSeat types.Money  `json:"max_price_per_seat"`
	QuotedPrice     *types.Money `json:"quoted_price,omitempty"`
	Message         string       `json:"message,omitempty"`
	Status          Status       `json:"status"`
	StatusVersion   int          `json:"-"`
	CreatedAt       time.Time    `json:"created_at"`
	QuotedAt        *time.Time   `json:"quoted_at,omitempty"`
	ResolvedAt      *time.Time   `json:"resolved_at,omitempty"`
}

// Event records one applied transition for audit history.
type Event struct {
	ID         int64
	RequestID  types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	CreatedAt  time.Time
}

// AllowedTransitions represents the negotiation flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusPending:      {StatusDriverQuoted, StatusDeclined, StatusCancelled, StatusExpired},
	StatusDriverQuoted: {StatusConfirmed, StatusDeclined, StatusCancelled, StatusExpired},
	StatusConfirmed:    {StatusBooked, StatusExpired},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminal(s Status) bool {
	_, ok := AllowedTransitions[s]
	return !ok
}

// guard distinguishes a terminal entity from one whose status has simply
// moved on, so callers can tell "give up" from "re-read and retry".
func (r *Request) guard(required, attempted Status) error {
	if IsTerminal(r.Status) {
		return apperrors.Transition(apperrors.ErrTerminalState, "direct_request", string(r.Status), string(attempted))
	}
	if r.Status != required {
		return apperrors.Transition(apperrors.ErrStaleState, "direct_request", string(r.Status), string(attempted))
	}
	return nil
}

// requesterCheck mirrors the driver identity check on the other side of
// the negotiation: requester-side transitions only belong to the rider
// who opened the request.
func (r *Request) requesterCheck(requesterID types.ID) error {
	if r.RequesterID != requesterID {
		return fmt.Errorf("%w: request does not belong to this requester", apperrors.ErrIneligible)
	}
	return nil
}

// canQuote validates the driver's quote against the pending request.
// Quoting above the rider's stated maximum is legal; the caller surfaces
// the warning, it never blocks.
func (r *Request) canQuote(price types.Money) (aboveMax bool, err error) {
	if err := r.guard(StatusPending, StatusDriverQuoted); err != nil {
		return false, err
	}
	if price.Amount <= 0 {
		return false, fmt.Errorf("%w: quoted price must be positive", apperrors.ErrInvalidInput)
	}
	return price.Amount > r.MaxPricePerSeat.Amount, nil
}

func (r *Request) canAcceptQuote() error {
	return r.guard(StatusDriverQuoted, StatusConfirmed)
}

func (r *Request) canDeclineQuote() error {
	return r.guard(StatusDriverQuoted, StatusDeclined)
}

func (r *Request) canDecline() error {
	return r.guard(StatusPending, StatusDeclined)
}

// canCancel: requester-side cancellation is only possible while the
// negotiation is open. Once confirmed, cancellation goes through the
// booking's own lifecycle.
func (r *Request) canCancel() error {
	if IsTerminal(r.Status) {
		return apperrors.Transition(apperrors.ErrTerminalState, "direct_request", string(r.Status), string(StatusCancelled))
	}
	if r.Status == StatusConfirmed {
		return apperrors.Transition(apperrors.ErrIneligible, "direct_request", string(r.Status), string(StatusCancelled))
	}
	return nil
}

func (r *Request) canExpire() error {
	if IsTerminal(r.Status) {
		return apperrors.Transition(apperrors.ErrTerminalState, "direct_request", string(r.Status), string(StatusExpired))
	}
	return nil
}

func (r *Request) canBook() error {
	return r.guard(StatusConfirmed, StatusBooked)
}
