package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/unklstewy/adsb-closest/pkg/adsb"
)

// RouteRepository caches route annotations in the flight_routes table.
type RouteRepository struct {
	db *DB
}

// NewRouteRepository creates a new route repository.
func NewRouteRepository(db *DB) *RouteRepository {
	return &RouteRepository{db: db}
}

// GetRoute returns the route cached for callsign if it was updated within
// maxAge. Returns nil, nil when there is no fresh entry.
func (r *RouteRepository) GetRoute(ctx context.Context, callsign string, maxAge time.Duration) (*adsb.Route, error) {
	cutoff := time.Now().UTC().Add(-maxAge)

	var route adsb.Route
	err := r.db.QueryRowContext(ctx,
		`SELECT airline, flight_number, from_iata, to_iata, from_city, to_city, status, source
		FROM flight_routes
		WHERE callsign = $1 AND last_updated >= $2`,
		callsign, cutoff,
	).Scan(
		&route.Airline,
		&route.FlightNumber,
		&route.FromIATA,
		&route.ToIATA,
		&route.FromCity,
		&route.ToCity,
		&route.Status,
		&route.Source,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query route: %w", err)
	}
	return &route, nil
}

// PutRoute inserts or refreshes the route for callsign.
func (r *RouteRepository) PutRoute(ctx context.Context, callsign string, route adsb.Route) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO flight_routes (
			callsign, airline, flight_number, from_iata, to_iata,
			from_city, to_city, status, source, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (callsign) DO UPDATE SET
			airline = EXCLUDED.airline,
			flight_number = EXCLUDED.flight_number,
			from_iata = EXCLUDED.from_iata,
			to_iata = EXCLUDED.to_iata,
			from_city = EXCLUDED.from_city,
			to_city = EXCLUDED.to_city,
			status = EXCLUDED.status,
			source = EXCLUDED.source,
			last_updated = EXCLUDED.last_updated`,
		callsign,
		route.Airline,
		route.FlightNumber,
		route.FromIATA,
		route.ToIATA,
		route.FromCity,
		route.ToCity,
		route.Status,
		route.Source,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert route: %w", err)
	}
	return nil
}

// DeleteStale removes routes older than maxAge and returns how many went.
func (r *RouteRepository) DeleteStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	res, err := r.db.ExecContext(ctx, `DELETE FROM flight_routes WHERE last_updated < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale routes: %w", err)
	}
	return res.RowsAffected()
}
