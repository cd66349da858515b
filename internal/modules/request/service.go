// README: Direct request negotiation service; guards + CAS persistence per transition.
package request

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"carpool/internal/apperrors"
	"carpool/internal/modules/ride"
	"carpool/internal/observability"
	"carpool/internal/types"
)

// BookingCreator turns a confirmed negotiation into a booking record.
// Implemented by the ride module.
type BookingCreator interface {
	CreateDirectBooking(ctx context.Context, spec ride.DirectBookingSpec) (*ride.Booking, error)
}

type Service struct {
	store    *Store
	bookings BookingCreator
}

func NewService(store *Store, bookings BookingCreator) *Service {
	return &Service{store: store, bookings: bookings}
}

type CreateCommand struct {
	RequesterID     types.ID
	DriverID        types.ID
	Origin          types.Point
	Destination     types.Point
	DepartureTime   time.Time
	SeatsRequested  int
	MaxPricePerSeat types.Money
	Message         string
	Now             time.Time
}

type QuoteCommand struct {
	RequestID types.ID
	DriverID  types.ID
	Price     types.Money
	Now       time.Time
}

type AcceptQuoteCommand struct {
	RequestID   types.ID
	RequesterID types.ID
	Now         time.Time
}

type DeclineQuoteCommand struct {
	RequestID   types.ID
	RequesterID types.ID
	Now         time.Time
}

type DeclineCommand struct {
	RequestID types.ID
	DriverID  types.ID
	Now       time.Time
}

type CancelCommand struct {
	RequestID   types.ID
	RequesterID types.ID
	Now         time.Time
}

type ExpireCommand struct {
	RequestID types.ID
	Now       time.Time
}

type BookCommand struct {
	RequestID   types.ID
	RequesterID types.ID
	Now         time.Time
}

// QuoteResult reports the new state plus whether the quote exceeded the
// rider's stated maximum. AboveMax is a warning for the caller to
// surface, never an error.
type QuoteResult struct {
	Request  *Request
	AboveMax bool
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (types.ID, error) {
	if cmd.RequesterID == "" || cmd.DriverID == "" {
		return "", fmt.Errorf("%w: requester and driver are required", apperrors.ErrInvalidInput)
	}
	if cmd.SeatsRequested < 1 {
		return "", fmt.Errorf("%w: seats must be >= 1", apperrors.ErrInvalidInput)
	}
	if cmd.MaxPricePerSeat.Amount <= 0 {
		return "", fmt.Errorf("%w: max price must be positive", apperrors.ErrInvalidInput)
	}

	r := &Request{
		ID:              newID(),
		RequesterID:     cmd.RequesterID,
		DriverID:        cmd.DriverID,
		Origin:          cmd.Origin,
		Destination:     cmd.Destination,
		DepartureTime:   cmd.DepartureTime,
		SeatsRequested:  cmd.SeatsRequested,
		MaxPricePerSeat: cmd.MaxPricePerSeat,
		Message:         cmd.Message,
		Status:          StatusPending,
		StatusVersion:   0,
		CreatedAt:       cmd.Now,
	}
	if err := s.store.Create(ctx, r); err != nil {
		return "", err
	}
	return r.ID, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Request, error) {
	return s.store.Get(ctx, id)
}

// Quote applies the driver's price to a pending request.
func (s *Service) Quote(ctx context.Context, cmd QuoteCommand) (QuoteResult, error) {
	r, err := s.store.Get(ctx, cmd.RequestID)
	if err != nil {
		return QuoteResult{}, err
	}
	if r.DriverID != cmd.DriverID {
		return QuoteResult{}, fmt.Errorf("%w: request is not addressed to this driver", apperrors.ErrIneligible)
	}
	aboveMax, err := r.canQuote(cmd.Price)
	if err != nil {
		return QuoteResult{}, err
	}

	if err := s.transition(ctx, r, StatusDriverQuoted, "driver", cmd.Now, func(u *storeUpdate) {
		u.QuotedPrice = &cmd.Price
		u.QuotedAt = &cmd.Now
	}); err != nil {
		return QuoteResult{}, err
	}
	return QuoteResult{Request: r, AboveMax: aboveMax}, nil
}

// AcceptQuote freezes the quoted price; no renegotiation afterwards.
func (s *Service) AcceptQuote(ctx context.Context, cmd AcceptQuoteCommand) error {
	r, err := s.store.Get(ctx, cmd.RequestID)
	if err != nil {
		return err
	}
	if err := r.requesterCheck(cmd.RequesterID); err != nil {
		return err
	}
	if err := r.canAcceptQuote(); err != nil {
		return err
	}
	return s.transition(ctx, r, StatusConfirmed, "requester", cmd.Now, nil)
}

func (s *Service) DeclineQuote(ctx context.Context, cmd DeclineQuoteCommand) error {
	r, err := s.store.Get(ctx, cmd.RequestID)
	if err != nil {
		return err
	}
	if err := r.requesterCheck(cmd.RequesterID); err != nil {
		return err
	}
	if err := r.canDeclineQuote(); err != nil {
		return err
	}
	return s.transition(ctx, r, StatusDeclined, "requester", cmd.Now, resolvedAt(cmd.Now))
}

// Decline is the driver rejecting a pending request outright, no price
// attached.
func (s *Service) Decline(ctx context.Context, cmd DeclineCommand) error {
	r, err := s.store.Get(ctx, cmd.RequestID)
	if err != nil {
		return err
	}
	if r.DriverID != cmd.DriverID {
		return fmt.Errorf("%w: request is not addressed to this driver", apperrors.ErrIneligible)
	}
	if err := r.canDecline(); err != nil {
		return err
	}
	return s.transition(ctx, r, StatusDeclined, "driver", cmd.Now, resolvedAt(cmd.Now))
}

func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) error {
	r, err := s.store.Get(ctx, cmd.RequestID)
	if err != nil {
		return err
	}
	if err := r.requesterCheck(cmd.RequesterID); err != nil {
		return err
	}
	if err := r.canCancel(); err != nil {
		return err
	}
	return s.transition(ctx, r, StatusCancelled, "requester", cmd.Now, resolvedAt(cmd.Now))
}

// Expire is invoked by the host's periodic sweep once the departure time
// has passed without resolution.
func (s *Service) Expire(ctx context.Context, cmd ExpireCommand) error {
	r, err := s.store.Get(ctx, cmd.RequestID)
	if err != nil {
		return err
	}
	if err := r.canExpire(); err != nil {
		return err
	}
	return s.transition(ctx, r, StatusExpired, "system", cmd.Now, resolvedAt(cmd.Now))
}

// Book converts a confirmed request into exactly one booking at the
// frozen quoted price. The request becomes immutable history.
func (s *Service) Book(ctx context.Context, cmd BookCommand) (*ride.Booking, error) {
	r, err := s.store.Get(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	if err := r.requesterCheck(cmd.RequesterID); err != nil {
		return nil, err
	}
	if err := r.canBook(); err != nil {
		return nil, err
	}
	if r.QuotedPrice == nil {
		return nil, fmt.Errorf("%w: confirmed request has no quoted price", apperrors.ErrPrecondition)
	}

	// Move to booked first: the CAS on the confirmed status is what makes
	// "at most one booking per request" hold under concurrent calls.
	if err := s.transition(ctx, r, StatusBooked, "requester", cmd.Now, resolvedAt(cmd.Now)); err != nil {
		return nil, err
	}

	b, err := s.bookings.CreateDirectBooking(ctx, ride.DirectBookingSpec{
		RequestID:     r.ID,
		DriverID:      r.DriverID,
		RiderID:       r.RequesterID,
		Origin:        r.Origin,
		Destination:   r.Destination,
		DepartureTime: r.DepartureTime,
		Seats:         r.SeatsRequested,
		PricePerSeat:  *r.QuotedPrice,
		Now:           cmd.Now,
	})
	if err != nil {
		// Compensate: a booked request with no booking would be stuck
		// terminal forever. Reopen confirmed so the requester can retry.
		if ok, revertErr := s.store.RevertBooked(ctx, r.ID, r.StatusVersion); revertErr == nil && ok {
			_ = s.store.AppendEvent(ctx, &Event{
				RequestID:  r.ID,
				FromStatus: StatusBooked,
				ToStatus:   StatusConfirmed,
				ActorType:  "system",
				CreatedAt:  cmd.Now,
			})
			r.Status = StatusConfirmed
			r.StatusVersion++
			r.ResolvedAt = nil
		}
		return nil, err
	}
	return b, nil
}

// RunExpirySweeper periodically expires requests whose departure has
// passed unresolved. It is the host-side trigger; the engine itself
// never self-fires time-based transitions.
func (s *Service) RunExpirySweeper(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			ids, err := s.store.ListExpirable(ctx, now)
			if err != nil {
				continue
			}
			for _, id := range ids {
				_ = s.Expire(ctx, ExpireCommand{RequestID: id, Now: now})
			}
		}
	}
}

type storeUpdate struct {
	QuotedPrice *types.Money
	QuotedAt    *time.Time
	ResolvedAt  *time.Time
}

func resolvedAt(now time.Time) func(*storeUpdate) {
	return func(u *storeUpdate) { u.ResolvedAt = &now }
}

func (s *Service) transition(ctx context.Context, r *Request, to Status, actorType string, now time.Time, mutate func(*storeUpdate)) error {
	var u storeUpdate
	if mutate != nil {
		mutate(&u)
	}
	ok, err := s.store.UpdateStatus(ctx, r.ID, r.Status, to, r.StatusVersion, u)
	if err != nil {
		return err
	}
	if !ok {
		observability.TransitionConflicts.WithLabelValues("direct_request").Inc()
		return apperrors.Transition(apperrors.ErrStaleState, "direct_request", string(r.Status), string(to))
	}

	observability.TransitionsTotal.WithLabelValues("direct_request", string(r.Status), string(to)).Inc()
	_ = s.store.AppendEvent(ctx, &Event{
		RequestID:  r.ID,
		FromStatus: r.Status,
		ToStatus:   to,
		ActorType:  actorType,
		CreatedAt:  now,
	})

	r.Status = to
	r.StatusVersion++
	if u.QuotedPrice != nil {
		r.QuotedPrice = u.QuotedPrice
	}
	if u.QuotedAt != nil {
		r.QuotedAt = u.QuotedAt
	}
	if u.ResolvedAt != nil {
		r.ResolvedAt = u.ResolvedAt
	}
	return nil
}

func newID() types.ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return types.ID(hex.EncodeToString(b[:]))
}
