// README: Pricing rates store backed by PostgreSQL.
package pricing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// GetRates loads the active rate row. Returns ok=false when no override
// has been published, in which case callers use the compiled defaults.
func (s *Store) GetRates(ctx context.Context) (Rates, bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT gas_price_per_gallon, miles_per_gallon, base_fee,
		       distance_rate_per_mile, time_rate_per_minute,
		       incentive_base, incentive_rate_per_mile
		FROM pricing_rates
		WHERE active
		ORDER BY published_at DESC
		LIMIT 1`)

	var r Rates
	err := row.Scan(
		&r.GasPricePerGallon, &r.MilesPerGallon, &r.BaseFee,
		&r.DistanceRatePerMile, &r.TimeRatePerMinute,
		&r.IncentiveBase, &r.IncentiveRatePerMile,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rates{}, false, nil
	}
	if err != nil {
		return Rates{}, false, err
	}
	return r, true, nil
}
