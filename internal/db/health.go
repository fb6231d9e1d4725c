package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/unklstewy/adsb-closest/pkg/config"
)

// ConnectWithRetry attempts to connect with a doubling delay capped at 30
// seconds, so a database container that starts after this process is picked
// up. attempts <= 0 means one attempt.
func ConnectWithRetry(ctx context.Context, cfg config.DatabaseConfig, attempts int, initialDelay time.Duration, logger *slog.Logger) (*DB, error) {
	if attempts <= 0 {
		attempts = 1
	}
	delay := initialDelay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		db, err := Connect(ctx, cfg)
		if err == nil {
			if attempt > 1 {
				logger.Info("database connected", "attempt", attempt)
			}
			return db, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		logger.Warn("database connection failed", "attempt", attempt, "retry_in", delay, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
	}

	return nil, fmt.Errorf("database unavailable after %d attempts: %w", attempts, lastErr)
}

// HealthCheck performs a health check on the database.
// Returns nil if the database is ready for operations.
func HealthCheck(ctx context.Context, db *DB) error {
	if db == nil || db.DB == nil {
		return fmt.Errorf("database not connected")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("health query failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("health query returned %d", result)
	}
	return nil
}
