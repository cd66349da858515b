// README: Direct request store backed by PostgreSQL.
package request

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

func (s *Store) Create(ctx context.Context, r *Request) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO direct_requests (
			id, requester_id, driver_id, status, status_version,
			origin_lat, origin_lng, destination_lat, destination_lng,
			departure_time, seats_requested, max_price_per_seat, currency,
			message, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13,
			$14, $15
		)`,
		string(r.ID),
		string(r.RequesterID),
		string(r.DriverID),
		string(r.Status),
		r.StatusVersion,
		r.Origin.Lat, r.Origin.Lng,
		r.Destination.Lat, r.Destination.Lng,
		r.DepartureTime,
		r.SeatsRequested,
		r.MaxPricePerSeat.Amount,
		r.MaxPricePerSeat.Currency,
		r.Message,
		r.CreatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Request, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, requester_id, driver_id, status, status_version,
		       origin_lat, origin_lng, destination_lat, destination_lng,
		       departure_time, seats_requested, max_price_per_seat, currency,
		       quoted_price, message, created_at, quoted_at, resolved_at
		FROM direct_requests
		WHERE id = $1`, string(id),
	)

	var r Request
	var currency string
	var quotedPrice sql.NullInt64
	var quotedAt, resolvedAt sql.NullTime

	err := row.Scan(
		&r.ID, &r.RequesterID, &r.DriverID, &r.Status, &r.StatusVersion,
		&r.Origin.Lat, &r.Origin.Lng, &r.Destination.Lat, &r.Destination.Lng,
		&r.DepartureTime, &r.SeatsRequested, &r.MaxPricePerSeat.Amount, &currency,
		&quotedPrice, &r.Message, &r.CreatedAt, &quotedAt, &resolvedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	r.MaxPricePerSeat.Currency = currency
	if quotedPrice.Valid {
		p := types.Money{Amount: quotedPrice.Int64, Currency: currency}
		r.QuotedPrice = &p
	}
	r.QuotedAt = toTimePtr(quotedAt)
	r.ResolvedAt = toTimePtr(resolvedAt)
	return &r, nil
}

// UpdateStatus applies a transition iff the row still carries the
// expected status and version. Zero rows affected means the state moved
// on underneath the caller.
func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, u storeUpdate) (bool, error) {
	var quotedPrice *int64
	if u.QuotedPrice != nil {
		quotedPrice = &u.QuotedPrice.Amount
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE direct_requests
		SET status = $1,
		    status_version = status_version + 1,
		    quoted_price = COALESCE($2, quoted_price),
		    quoted_at = COALESCE($3, quoted_at),
		    resolved_at = COALESCE($4, resolved_at)
		WHERE id = $5 AND status = $6 AND status_version = $7`,
		string(to),
		quotedPrice,
		u.QuotedAt,
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

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO direct_request_events (
			request_id, from_status, to_status, actor_type, created_at
		) VALUES ($1, $2, $3, $4, $5)`,
		string(e.RequestID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		e.CreatedAt,
	)
	return err
}

// ListExpirable returns open negotiations whose departure time has
// already passed.
func (s *Store) ListExpirable(ctx context.Context, now time.Time) ([]types.ID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id FROM direct_requests
		WHERE status IN ('pending', 'driver_quoted', 'confirmed')
		  AND departure_time < $1`, now,
	)
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

// RevertBooked undoes a booked transition whose follow-up booking insert
// failed, reopening the confirmed state and clearing the resolution
// timestamp so the requester can retry.
func (s *Store) RevertBooked(ctx context.Context, id types.ID, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE direct_requests
		SET status = 'confirmed', status_version = status_version + 1, resolved_at = NULL
		WHERE id = $1 AND status = 'booked' AND status_version = $2`,
		string(id), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
