// README: Ride and booking store backed by PostgreSQL.
package ride

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"carpool/internal/apperrors"
	"carpool/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) CreateRide(ctx context.Context, r *Ride) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO rides (
			id, driver_id, status, status_version,
			origin_lat, origin_lng, destination_lat, destination_lng,
			departure_time, price_per_seat, currency, seats_total,
			fare_splitting_enabled, created_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12,
			$13, $14
		)`,
		string(r.ID),
		string(r.DriverID),
		string(r.Status),
		r.StatusVersion,
		r.Origin.Lat, r.Origin.Lng,
		r.Destination.Lat, r.Destination.Lng,
		r.DepartureTime,
		r.PricePerSeat.Amount,
		r.PricePerSeat.Currency,
		r.SeatsTotal,
		r.FareSplittingEnabled,
		r.CreatedAt,
	)
	return err
}

func (s *Store) GetRide(ctx context.Context, id types.ID) (*Ride, error) {
	return scanRide(s.db.QueryRow(ctx, `
		SELECT id, driver_id, status, status_version,
		       origin_lat, origin_lng, destination_lat, destination_lng,
		       departure_time, price_per_seat, currency, seats_total,
		       fare_splitting_enabled, created_at
		FROM rides
		WHERE id = $1`, string(id)))
}

func (s *Store) UpdateRideStatus(ctx context.Context, id types.ID, from, to RideStatus, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET status = $1, status_version = status_version + 1
		WHERE id = $2 AND status = $3 AND status_version = $4`,
		string(to), string(id), string(from), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) CreateBooking(ctx context.Context, b *Booking) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO bookings (
			id, ride_id, rider_id, request_id, seats,
			price_per_seat, currency, total_paid,
			status, approval_status, status_version, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11, $12
		)`,
		string(b.ID),
		string(b.RideID),
		string(b.RiderID),
		idPtr(b.RequestID),
		b.Seats,
		b.PricePerSeat.Amount,
		b.PricePerSeat.Currency,
		b.TotalPaid.Amount,
		string(b.Status),
		string(b.Approval),
		b.StatusVersion,
		b.CreatedAt,
	)
	return err
}

func (s *Store) GetBooking(ctx context.Context, id types.ID) (*Booking, error) {
	b, err := scanBooking(s.db.QueryRow(ctx, bookingSelect+` WHERE id = $1`, string(id)))
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Store) ListBookingsByRide(ctx context.Context, rideID types.ID) ([]Booking, error) {
	rows, err := s.db.Query(ctx, bookingSelect+` WHERE ride_id = $1 ORDER BY created_at`, string(rideID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// ApproveBooking flips the approval sub-state under a ride row lock,
// re-checking capacity inside the transaction so concurrent approvals
// cannot jointly overbook.
func (s *Store) ApproveBooking(ctx context.Context, b *Booking, r *Ride) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var seatsTotal int
	if err := tx.QueryRow(ctx,
		`SELECT seats_total FROM rides WHERE id = $1 FOR UPDATE`, string(r.ID),
	).Scan(&seatsTotal); err != nil {
		return false, err
	}

	var reserved int
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(seats), 0) FROM bookings
		WHERE ride_id = $1
		  AND (status IN ('paid', 'confirmed', 'completed')
		       OR (status = 'pending' AND approval_status = 'approved'))`,
		string(r.ID),
	).Scan(&reserved); err != nil {
		return false, err
	}
	if reserved+b.Seats > seatsTotal {
		return false, apperrors.Transition(apperrors.ErrPrecondition, "booking", string(b.Status), "approve")
	}

	tag, err := tx.Exec(ctx, `
		UPDATE bookings
		SET approval_status = 'approved', status_version = status_version + 1
		WHERE id = $1 AND status = 'pending' AND approval_status = 'pending' AND status_version = $2`,
		string(b.ID), b.StatusVersion,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	return true, tx.Commit(ctx)
}

func (s *Store) UpdateBookingStatus(ctx context.Context, id types.ID, from, to BookingStatus, version int, u bookingUpdate) (bool, error) {
	var approval *string
	if u.Approval != nil {
		v := string(*u.Approval)
		approval = &v
	}
	var totalPaid *int64
	if u.TotalPaid != nil {
		totalPaid = &u.TotalPaid.Amount
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE bookings
		SET status = $1,
		    status_version = status_version + 1,
		    approval_status = COALESCE($2, approval_status),
		    total_paid = COALESCE($3, total_paid),
		    paid_at = COALESCE($4, paid_at),
		    resolved_at = COALESCE($5, resolved_at)
		WHERE id = $6 AND status = $7 AND status_version = $8`,
		string(to),
		approval,
		totalPaid,
		u.PaidAt,
		u.ResolvedAt,
		string(id),
		string(from),
		version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CreateDirectBooking inserts the implicit ride and its booking in one
// transaction so a crash cannot orphan either half.
func (s *Store) CreateDirectBooking(ctx context.Context, r *Ride, b *Booking) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO rides (
			id, driver_id, status, status_version,
			origin_lat, origin_lng, destination_lat, destination_lng,
			departure_time, price_per_seat, currency, seats_total,
			fare_splitting_enabled, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		string(r.ID), string(r.DriverID), string(r.Status), r.StatusVersion,
		r.Origin.Lat, r.Origin.Lng, r.Destination.Lat, r.Destination.Lng,
		r.DepartureTime, r.PricePerSeat.Amount, r.PricePerSeat.Currency,
		r.SeatsTotal, r.FareSplittingEnabled, r.CreatedAt,
	); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO bookings (
			id, ride_id, rider_id, request_id, seats,
			price_per_seat, currency, total_paid,
			status, approval_status, status_version, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		string(b.ID), string(b.RideID), string(b.RiderID), idPtr(b.RequestID),
		b.Seats, b.PricePerSeat.Amount, b.PricePerSeat.Currency, b.TotalPaid.Amount,
		string(b.Status), string(b.Approval), b.StatusVersion, b.CreatedAt,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO ride_state_events (
			ride_id, booking_id, from_status, to_status, actor_type, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.RideID),
		idPtr(e.BookingID),
		e.FromStatus,
		e.ToStatus,
		e.ActorType,
		e.CreatedAt,
	)
	return err
}

// SumEarnings totals amounts paid on settled bookings only.
func (s *Store) SumEarnings(ctx context.Context, rideID types.ID) (types.Money, error) {
	var cents int64
	var currency sql.NullString
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(total_paid), 0), MIN(currency) FROM bookings
		WHERE ride_id = $1 AND status IN ('paid', 'confirmed', 'completed')`,
		string(rideID),
	).Scan(&cents, &currency)
	if err != nil {
		return types.Money{}, err
	}
	cur := types.DefaultCurrency
	if currency.Valid && currency.String != "" {
		cur = currency.String
	}
	return types.Money{Amount: cents, Currency: cur}, nil
}

// ListExpirableRides returns rides past departure with no settled
// bookings.
func (s *Store) ListExpirableRides(ctx context.Context, now time.Time) ([]types.ID, error) {
	return s.listIDs(ctx, `
		SELECT r.id FROM rides r
		WHERE r.status IN ('open', 'full')
		  AND r.departure_time < $1
		  AND NOT EXISTS (
			SELECT 1 FROM bookings b
			WHERE b.ride_id = r.id AND b.status IN ('paid', 'confirmed', 'completed')
		  )`, now)
}

// ListExpirableBookings returns unresolved pending bookings on rides
// whose departure has passed.
func (s *Store) ListExpirableBookings(ctx context.Context, now time.Time) ([]types.ID, error) {
	return s.listIDs(ctx, `
		SELECT b.id FROM bookings b
		JOIN rides r ON r.id = b.ride_id
		WHERE b.status = 'pending' AND r.departure_time < $1`, now)
}

func (s *Store) listIDs(ctx context.Context, query string, now time.Time) ([]types.ID, error) {
	rows, err := s.db.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []types.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, types.ID(id))
	}
	return ids, rows.Err()
}

const bookingSelect = `
	SELECT id, ride_id, rider_id, request_id, seats,
	       price_per_seat, currency, total_paid,
	       status, approval_status, status_version, created_at, paid_at, resolved_at
	FROM bookings`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*Ride, error) {
	var r Ride
	var currency string
	err := row.Scan(
		&r.ID, &r.DriverID, &r.Status, &r.StatusVersion,
		&r.Origin.Lat, &r.Origin.Lng, &r.Destination.Lat, &r.Destination.Lng,
		&r.DepartureTime, &r.PricePerSeat.Amount, &currency, &r.SeatsTotal,
		&r.FareSplittingEnabled, &r.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.PricePerSeat.Currency = currency
	return &r, nil
}

func scanBooking(row rowScanner) (*Booking, error) {
	var b Booking
	var currency string
	var requestID sql.NullString
	var paidAt, resolvedAt sql.NullTime
	err := row.Scan(
		&b.ID, &b.RideID, &b.RiderID, &requestID, &b.Seats,
		&b.PricePerSeat.Amount, &currency, &b.TotalPaid.Amount,
		&b.Status, &b.Approval, &b.StatusVersion, &b.CreatedAt, &paidAt, &resolvedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b.PricePerSeat.Currency = currency
	b.TotalPaid.Currency = currency
	if requestID.Valid {
		id := types.ID(requestID.String)
		b.RequestID = &id
	}
	b.PaidAt = toTimePtr(paidAt)
	b.ResolvedAt = toTimePtr(resolvedAt)
	return &b, nil
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
