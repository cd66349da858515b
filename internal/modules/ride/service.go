// README: Ride and booking lifecycle service; guards + CAS persistence + cascades.
package ride

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"carpool/internal/apperrors"
	"carpool/internal/modules/faresplit"
	"carpool/internal/modules/refund"
	"carpool/internal/observability"
	"carpool/internal/types"
)

type Service struct {
	store *Store
}

func NewService(store *Store) *Service {
	return &Service{store: store}
}

type PostCommand struct {
	DriverID       types.ID
	Origin         types.Point
	Destination    types.Point
	DepartureTime  time.Time
	PricePerSeat   types.Money
	SeatsTotal     int
	FareSplitOptIn bool
	Now            time.Time
}

type BookSeatCommand struct {
	RideID  types.ID
	RiderID types.ID
	Seats   int
	Now     time.Time
}

type ApproveCommand struct {
	BookingID types.ID
	DriverID  types.ID
	Now       time.Time
}

type RejectCommand struct {
	BookingID types.ID
	DriverID  types.ID
	Now       time.Time
}

type PayCommand struct {
	BookingID types.ID
	Amount    types.Money
	Now       time.Time
}

type ConfirmCommand struct {
	BookingID types.ID
	DriverID  types.ID
	Now       time.Time
}

type CancelBookingCommand struct {
	BookingID types.ID
	Now       time.Time
}

type CompleteRideCommand struct {
	RideID   types.ID
	DriverID types.ID
	Now      time.Time
}

type CancelRideCommand struct {
	RideID   types.ID
	DriverID types.ID
	Now      time.Time
}

type ExpireRideCommand struct {
	RideID types.ID
	Now    time.Time
}

type ExpireBookingCommand struct {
	BookingID types.ID
	Now       time.Time
}

// DirectBookingSpec carries everything needed to materialize a confirmed
// direct negotiation as a ride with a single booking.
type DirectBookingSpec struct {
	RequestID     types.ID
	DriverID      types.ID
	RiderID       types.ID
	Origin        types.Point
	Destination   types.Point
	DepartureTime time.Time
	Seats         int
	PricePerSeat  types.Money
	Now           time.Time
}

// BookingCancellation pairs a cancelled booking with its computed refund.
type BookingCancellation struct {
	BookingID types.ID       `json:"booking_id"`
	Outcome   refund.Outcome `json:"outcome"`
}

func (s *Service) Post(ctx context.Context, cmd PostCommand) (types.ID, error) {
	if cmd.DriverID == "" {
		return "", fmt.Errorf("%w: driver is required", apperrors.ErrInvalidInput)
	}
	if cmd.SeatsTotal < 1 {
		return "", fmt.Errorf("%w: seats must be >= 1", apperrors.ErrInvalidInput)
	}
	if cmd.PricePerSeat.Amount <= 0 {
		return "", fmt.Errorf("%w: price per seat must be positive", apperrors.ErrInvalidInput)
	}

	r := &Ride{
		ID:                   newID(),
		DriverID:             cmd.DriverID,
		Origin:               cmd.Origin,
		Destination:          cmd.Destination,
		DepartureTime:        cmd.DepartureTime,
		PricePerSeat:         cmd.PricePerSeat,
		SeatsTotal:           cmd.SeatsTotal,
		FareSplittingEnabled: faresplit.IsEligible(faresplit.RideTypeDriverPost, cmd.SeatsTotal, cmd.FareSplitOptIn),
		Status:               RideOpen,
		StatusVersion:        0,
		CreatedAt:            cmd.Now,
	}
	if err := s.store.CreateRide(ctx, r); err != nil {
		return "", err
	}
	return r.ID, nil
}

func (s *Service) GetRide(ctx context.Context, id types.ID) (*Ride, error) {
	return s.store.GetRide(ctx, id)
}

func (s *Service) GetBooking(ctx context.Context, id types.ID) (*Booking, error) {
	return s.store.GetBooking(ctx, id)
}

func (s *Service) ListBookings(ctx context.Context, rideID types.ID) ([]Booking, error) {
	return s.store.ListBookingsByRide(ctx, rideID)
}

// BookSeat creates a pending booking with the per-seat price snapshotted
// now. With fare splitting enabled the snapshot already reflects the
// discount tier for the occupancy this booking would produce.
func (s *Service) BookSeat(ctx context.Context, cmd BookSeatCommand) (*Booking, error) {
	if cmd.Seats < 1 {
		return nil, fmt.Errorf("%w: seats must be >= 1", apperrors.ErrInvalidInput)
	}
	r, err := s.store.GetRide(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if IsRideTerminal(r.Status) {
		return nil, apperrors.Transition(apperrors.ErrTerminalState, "ride", string(r.Status), "book_seat")
	}

	bookings, err := s.store.ListBookingsByRide(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if r.SeatsAvailable(bookings) < cmd.Seats {
		return nil, fmt.Errorf("%w: only %d seats available", apperrors.ErrPrecondition, r.SeatsAvailable(bookings))
	}

	price := r.PricePerSeat
	if r.FareSplittingEnabled {
		projected := SeatsReserved(bookings) + cmd.Seats
		if split, err := faresplit.Split(r.PricePerSeat, projected); err == nil {
			price = split.DiscountedPricePerSeat
		}
	}

	b := &Booking{
		ID:            newID(),
		RideID:        r.ID,
		RiderID:       cmd.RiderID,
		Seats:         cmd.Seats,
		PricePerSeat:  price,
		Status:        BookingPending,
		Approval:      ApprovalPending,
		StatusVersion: 0,
		CreatedAt:     cmd.Now,
	}
	if err := s.store.CreateBooking(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Approve reserves the booking's seats the moment the driver approves,
// before payment, so two approvals cannot overbook the ride. The store
// re-checks capacity under a row lock; the guard here gives fast,
// well-typed failures for the common cases.
func (s *Service) Approve(ctx context.Context, cmd ApproveCommand) error {
	b, err := s.store.GetBooking(ctx, cmd.BookingID)
	if err != nil {
		return err
	}
	r, err := s.store.GetRide(ctx, b.RideID)
	if err != nil {
		return err
	}
	if r.DriverID != cmd.DriverID {
		return fmt.Errorf("%w: only the posting driver may approve", apperrors.ErrIneligible)
	}
	bookings, err := s.store.ListBookingsByRide(ctx, b.RideID)
	if err != nil {
		return err
	}
	if err := b.canApprove(r, SeatsReserved(bookings)); err != nil {
		return err
	}

	ok, err := s.store.ApproveBooking(ctx, b, r)
	if err != nil {
		return err
	}
	if !ok {
		observability.TransitionConflicts.WithLabelValues("booking").Inc()
		return apperrors.Transition(apperrors.ErrStaleState, "booking", string(b.Status), "approve")
	}
	observability.TransitionsTotal.WithLabelValues("booking", string(ApprovalPending), string(ApprovalApproved)).Inc()
	s.appendBookingEvent(ctx, b, string(b.Status), "approved", "driver", cmd.Now)
	b.Approval = ApprovalApproved
	b.StatusVersion++

	s.syncAvailability(ctx, r.ID)
	return nil
}

// Reject closes a pending booking without money movement and releases
// nothing (the seats were never approved) or releases the approval hold.
func (s *Service) Reject(ctx context.Context, cmd RejectCommand) error {
	b, err := s.store.GetBooking(ctx, cmd.BookingID)
	if err != nil {
		return err
	}
	r, err := s.store.GetRide(ctx, b.RideID)
	if err != nil {
		return err
	}
	if r.DriverID != cmd.DriverID {
		return fmt.Errorf("%w: only the posting driver may reject", apperrors.ErrIneligible)
	}
	if err := b.canReject(); err != nil {
		return err
	}

	approval := ApprovalRejected
	if err := s.transitionBooking(ctx, b, BookingCancelled, "driver", cmd.Now, func(u *bookingUpdate) {
		u.Approval = &approval
		u.ResolvedAt = &cmd.Now
	}); err != nil {
		return err
	}
	s.syncAvailability(ctx, r.ID)
	return nil
}

// Pay records the externally captured payment. The amount must equal the
// snapshot price times seats exactly.
func (s *Service) Pay(ctx context.Context, cmd PayCommand) error {
	b, err := s.store.GetBooking(ctx, cmd.BookingID)
	if err != nil {
		return err
	}
	if err := b.canPay(cmd.Amount); err != nil {
		return err
	}

	if err := s.transitionBooking(ctx, b, BookingPaid, "rider", cmd.Now, func(u *bookingUpdate) {
		u.TotalPaid = &cmd.Amount
		u.PaidAt = &cmd.Now
	}); err != nil {
		return err
	}

	// First settled booking moves the ride to matched, best effort: a
	// concurrent transition just means someone else already advanced it.
	if r, err := s.store.GetRide(ctx, b.RideID); err == nil {
		if r.Status == RideOpen || r.Status == RideFull {
			_ = s.transitionRide(ctx, r, RideMatched, "system", cmd.Now)
		}
	}
	return nil
}

// Confirm is the driver acknowledging a captured payment.
func (s *Service) Confirm(ctx context.Context, cmd ConfirmCommand) error {
	b, err := s.store.GetBooking(ctx, cmd.BookingID)
	if err != nil {
		return err
	}
	r, err := s.store.GetRide(ctx, b.RideID)
	if err != nil {
		return err
	}
	if r.DriverID != cmd.DriverID {
		return fmt.Errorf("%w: only the posting driver may confirm", apperrors.ErrIneligible)
	}
	if err := b.canConfirm(); err != nil {
		return err
	}
	return s.transitionBooking(ctx, b, BookingConfirmed, "driver", cmd.Now, nil)
}

// CancelBooking cancels one booking and returns its refund outcome.
// A never-paid booking cancels as a pure status change.
func (s *Service) CancelBooking(ctx context.Context, cmd CancelBookingCommand) (refund.Outcome, error) {
	b, err := s.store.GetBooking(ctx, cmd.BookingID)
	if err != nil {
		return refund.Outcome{}, err
	}
	r, err := s.store.GetRide(ctx, b.RideID)
	if err != nil {
		return refund.Outcome{}, err
	}
	if err := b.canCancel(r.DepartureTime, cmd.Now); err != nil {
		return refund.Outcome{}, err
	}

	outcome := b.cancellationOutcome(r.DepartureTime, cmd.Now)
	if err := s.transitionBooking(ctx, b, BookingCancelled, "rider", cmd.Now, func(u *bookingUpdate) {
		u.ResolvedAt = &cmd.Now
	}); err != nil {
		return refund.Outcome{}, err
	}
	s.syncAvailability(ctx, r.ID)
	return outcome, nil
}

// CompleteRide closes out a ride once the completion gate has passed.
// Settled bookings cascade to completed; pending ones are left alone to
// lapse on their own.
func (s *Service) CompleteRide(ctx context.Context, cmd CompleteRideCommand) error {
	r, err := s.store.GetRide(ctx, cmd.RideID)
	if err != nil {
		return err
	}
	if r.DriverID != cmd.DriverID {
		return fmt.Errorf("%w: only the posting driver may complete", apperrors.ErrIneligible)
	}
	if err := r.canComplete(cmd.Now); err != nil {
		return err
	}

	if err := s.transitionRide(ctx, r, RideCompleted, "driver", cmd.Now); err != nil {
		return err
	}

	bookings, err := s.store.ListBookingsByRide(ctx, r.ID)
	if err != nil {
		return err
	}
	for i := range bookings {
		b := &bookings[i]
		if b.Status != BookingPaid && b.Status != BookingConfirmed {
			continue
		}
		_ = s.transitionBooking(ctx, b, BookingCompleted, "system", cmd.Now, func(u *bookingUpdate) {
			u.ResolvedAt = &cmd.Now
		})
	}
	return nil
}

// CancelRide cancels the ride and every non-terminal booking, computing
// a refund per booking from its own amount paid.
func (s *Service) CancelRide(ctx context.Context, cmd CancelRideCommand) ([]BookingCancellation, error) {
	r, err := s.store.GetRide(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if r.DriverID != cmd.DriverID {
		return nil, fmt.Errorf("%w: only the posting driver may cancel", apperrors.ErrIneligible)
	}
	if err := r.canCancel(cmd.Now); err != nil {
		return nil, err
	}

	if err := s.transitionRide(ctx, r, RideCancelled, "driver", cmd.Now); err != nil {
		return nil, err
	}

	bookings, err := s.store.ListBookingsByRide(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	var outcomes []BookingCancellation
	for i := range bookings {
		b := &bookings[i]
		if IsBookingTerminal(b.Status) {
			continue
		}
		outcome := b.cancellationOutcome(r.DepartureTime, cmd.Now)
		if err := s.transitionBooking(ctx, b, BookingCancelled, "driver", cmd.Now, func(u *bookingUpdate) {
			u.ResolvedAt = &cmd.Now
		}); err != nil {
			continue
		}
		outcomes = append(outcomes, BookingCancellation{BookingID: b.ID, Outcome: outcome})
	}
	return outcomes, nil
}

func (s *Service) ExpireRide(ctx context.Context, cmd ExpireRideCommand) error {
	r, err := s.store.GetRide(ctx, cmd.RideID)
	if err != nil {
		return err
	}
	if err := r.canExpire(); err != nil {
		return err
	}
	return s.transitionRide(ctx, r, RideExpired, "system", cmd.Now)
}

func (s *Service) ExpireBooking(ctx context.Context, cmd ExpireBookingCommand) error {
	b, err := s.store.GetBooking(ctx, cmd.BookingID)
	if err != nil {
		return err
	}
	if err := b.canExpire(); err != nil {
		return err
	}
	if err := s.transitionBooking(ctx, b, BookingExpired, "system", cmd.Now, func(u *bookingUpdate) {
		u.ResolvedAt = &cmd.Now
	}); err != nil {
		return err
	}
	s.syncAvailability(ctx, b.RideID)
	return nil
}

// TotalEarnings sums amounts paid over the ride's settled bookings.
func (s *Service) TotalEarnings(ctx context.Context, rideID types.ID) (types.Money, error) {
	return s.store.SumEarnings(ctx, rideID)
}

// CreateDirectBooking materializes a confirmed direct negotiation as a
// matched single-party ride plus its booking, so every booking belongs
// to exactly one ride.
func (s *Service) CreateDirectBooking(ctx context.Context, spec DirectBookingSpec) (*Booking, error) {
	r := &Ride{
		ID:            newID(),
		DriverID:      spec.DriverID,
		Origin:        spec.Origin,
		Destination:   spec.Destination,
		DepartureTime: spec.DepartureTime,
		PricePerSeat:  spec.PricePerSeat,
		SeatsTotal:    spec.Seats,
		Status:        RideMatched,
		CreatedAt:     spec.Now,
	}
	b := &Booking{
		ID:           newID(),
		RideID:       r.ID,
		RiderID:      spec.RiderID,
		RequestID:    &spec.RequestID,
		Seats:        spec.Seats,
		PricePerSeat: spec.PricePerSeat,
		Status:       BookingPending,
		Approval:     ApprovalApproved,
		CreatedAt:    spec.Now,
	}
	if err := s.store.CreateDirectBooking(ctx, r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// RunExpirySweeper drives time-based transitions. The engine never
// self-triggers them; this is the host-side periodic collaborator.
func (s *Service) RunExpirySweeper(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			if rideIDs, err := s.store.ListExpirableRides(ctx, now); err == nil {
				for _, id := range rideIDs {
					_ = s.ExpireRide(ctx, ExpireRideCommand{RideID: id, Now: now})
				}
			}
			if bookingIDs, err := s.store.ListExpirableBookings(ctx, now); err == nil {
				for _, id := range bookingIDs {
					_ = s.ExpireBooking(ctx, ExpireBookingCommand{BookingID: id, Now: now})
				}
			}
		}
	}
}

// syncAvailability flips a ride between open and full as its derived
// seat availability crosses zero. Best effort: losing the CAS means a
// concurrent transition already settled the status. Failures are
// counted so a drifting open/full flag shows up on the dashboard.
func (s *Service) syncAvailability(ctx context.Context, rideID types.ID) {
	r, err := s.store.GetRide(ctx, rideID)
	if err != nil {
		observability.AvailabilitySyncFailures.Inc()
		return
	}
	if r.Status != RideOpen && r.Status != RideFull {
		return
	}
	bookings, err := s.store.ListBookingsByRide(ctx, rideID)
	if err != nil {
		observability.AvailabilitySyncFailures.Inc()
		return
	}
	avail := r.SeatsAvailable(bookings)
	switch {
	case avail == 0 && r.Status == RideOpen:
		if ok, err := s.store.UpdateRideStatus(ctx, r.ID, RideOpen, RideFull, r.StatusVersion); err != nil || !ok {
			observability.AvailabilitySyncFailures.Inc()
		}
	case avail > 0 && r.Status == RideFull:
		if ok, err := s.store.UpdateRideStatus(ctx, r.ID, RideFull, RideOpen, r.StatusVersion); err != nil || !ok {
			observability.AvailabilitySyncFailures.Inc()
		}
	}
}

func (s *Service) transitionRide(ctx context.Context, r *Ride, to RideStatus, actorType string, now time.Time) error {
	ok, err := s.store.UpdateRideStatus(ctx, r.ID, r.Status, to, r.StatusVersion)
	if err != nil {
		return err
	}
	if !ok {
		observability.TransitionConflicts.WithLabelValues("ride").Inc()
		return apperrors.Transition(apperrors.ErrStaleState, "ride", string(r.Status), string(to))
	}
	observability.TransitionsTotal.WithLabelValues("ride", string(r.Status), string(to)).Inc()
	_ = s.store.AppendEvent(ctx, &Event{
		RideID:     r.ID,
		FromStatus: string(r.Status),
		ToStatus:   string(to),
		ActorType:  actorType,
		CreatedAt:  now,
	})
	r.Status = to
	r.StatusVersion++
	return nil
}

func (s *Service) transitionBooking(ctx context.Context, b *Booking, to BookingStatus, actorType string, now time.Time, mutate func(*bookingUpdate)) error {
	var u bookingUpdate
	if mutate != nil {
		mutate(&u)
	}
	ok, err := s.store.UpdateBookingStatus(ctx, b.ID, b.Status, to, b.StatusVersion, u)
	if err != nil {
		return err
	}
	if !ok {
		observability.TransitionConflicts.WithLabelValues("booking").Inc()
		return apperrors.Transition(apperrors.ErrStaleState, "booking", string(b.Status), string(to))
	}
	observability.TransitionsTotal.WithLabelValues("booking", string(b.Status), string(to)).Inc()
	s.appendBookingEvent(ctx, b, string(b.Status), string(to), actorType, now)

	b.Status = to
	b.StatusVersion++
	if u.Approval != nil {
		b.Approval = *u.Approval
	}
	if u.TotalPaid != nil {
		b.TotalPaid = *u.TotalPaid
	}
	if u.PaidAt != nil {
		b.PaidAt = u.PaidAt
	}
	if u.ResolvedAt != nil {
		b.ResolvedAt = u.ResolvedAt
	}
	return nil
}

func (s *Service) appendBookingEvent(ctx context.Context, b *Booking, from, to, actorType string, now time.Time) {
	_ = s.store.AppendEvent(ctx, &Event{
		RideID:     b.RideID,
		BookingID:  &b.ID,
		FromStatus: from,
		ToStatus:   to,
		ActorType:  actorType,
		CreatedAt:  now,
	})
}

type bookingUpdate struct {
	Approval   *ApprovalStatus
	TotalPaid  *types.Money
	PaidAt     *time.Time
	ResolvedAt *time.Time
}

func newID() types.ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return types.ID(hex.EncodeToString(b[:]))
}
