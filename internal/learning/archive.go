package learning

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ParameterArchive persists derived parameter sets to PostgreSQL for later
// review. Archiving is optional; a nil archive disables it.
type ParameterArchive struct {
	db *sql.DB

	// sessionID groups all rows written by one agent run
	sessionID uuid.UUID
}

// NewParameterArchive creates an archive bound to the given database
func NewParameterArchive(db *sql.DB) *ParameterArchive {
	return &ParameterArchive{
		db:        db,
		sessionID: uuid.New(),
	}
}

// StoreParameterSet appends one derived parameter set for a zone
func (a *ParameterArchive) StoreParameterSet(ctx context.Context, zone string, params ParameterSet) error {
	query := `
		INSERT INTO fan_parameter_sets (
			id,
			session_id,
			zone,
			deadband,
			soft_error,
			hard_error,
			limit_timeout,
			volatility_factor,
			sample_count,
			computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := a.db.ExecContext(
		ctx,
		query,
		uuid.New(),
		a.sessionID,
		zone,
		params.Deadband,
		params.SoftError,
		params.HardError,
		params.LimitTimeout,
		params.VolatilityFactor,
		params.SampleCount,
		params.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store parameter set: %w", err)
	}

	return nil
}

// LatestParameterSet retrieves the most recent archived parameter set for a
// zone, or (nil, nil) when none has been recorded
func (a *ParameterArchive) LatestParameterSet(ctx context.Context, zone string) (*ParameterSet, error) {
	query := `
		SELECT deadband, soft_error, hard_error, limit_timeout,
		       volatility_factor, sample_count, computed_at
		FROM fan_parameter_sets
		WHERE zone = $1
		ORDER BY computed_at DESC
		LIMIT 1
	`

	var params ParameterSet
	err := a.db.QueryRowContext(ctx, query, zone).Scan(
		&params.Deadband,
		&params.SoftError,
		&params.HardError,
		&params.LimitTimeout,
		&params.VolatilityFactor,
		&params.SampleCount,
		&params.ComputedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query parameter set: %w", err)
	}

	return &params, nil
}

// PruneOlderThan removes archived rows older than the retention duration and
// returns how many were deleted
func (a *ParameterArchive) PruneOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	query := `
		DELETE FROM fan_parameter_sets
		WHERE computed_at < NOW() - $1::interval
	`

	result, err := a.db.ExecContext(ctx, query, fmt.Sprintf("%d seconds", int(retention.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("failed to prune parameter sets: %w", err)
	}

	return result.RowsAffected()
}
