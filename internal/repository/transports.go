package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ashharzawarsyed/alertx-sub004/internal/models"

	"go.uber.org/zap"
)

// TransportRepository transport_units table
type TransportRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTransportRepository creates the repository
func NewTransportRepository(db *sql.DB, logger *zap.Logger) *TransportRepository {
	return &TransportRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert registers or updates a unit's driver and status
func (r *TransportRepository) Upsert(ctx context.Context, unit *models.TransportUnit) error {
	if unit == nil || unit.ID == "" {
		return fmt.Errorf("transport id is required")
	}

	query := `
		INSERT INTO transport_units (id, driver_id, status, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			driver_id = EXCLUDED.driver_id,
			status = EXCLUDED.status,
			updated_at = NOW()
	`

	if _, err := r.db.ExecContext(ctx, query, unit.ID, unit.DriverID, string(unit.Status)); err != nil {
		return fmt.Errorf("failed to upsert transport unit: %w", err)
	}
	return nil
}

// SetStatus implements dispatch.Transports
func (r *TransportRepository) SetStatus(ctx context.Context, transportID string, status models.TransportStatus) error {
	query := `
		UPDATE transport_units
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, transportID, string(status))
	if err != nil {
		return fmt.Errorf("failed to update transport status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("transport unit not found: id=%s: %w", transportID, models.ErrNotFound)
	}
	return nil
}

// UpdatePosition stores fix unless a newer position is already recorded.
// applied is false for stale fixes.
func (r *TransportRepository) UpdatePosition(ctx context.Context, transportID string, fix models.Fix) (bool, error) {
	query := `
		UPDATE transport_units
		SET latitude = $2,
			longitude = $3,
			speed = $4,
			heading = $5,
			position_at = $6,
			updated_at = NOW()
		WHERE id = $1
		  AND (position_at IS NULL OR position_at < $6)
	`

	result, err := r.db.ExecContext(ctx, query,
		transportID,
		fix.Lat,
		fix.Lng,
		toAnyFloat(fix.Speed),
		toAnyFloat(fix.Heading),
		fix.Timestamp,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update transport position: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return true, nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM transport_units WHERE id = $1)`, transportID,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check transport unit: %w", err)
	}
	if !exists {
		return false, fmt.Errorf("transport unit not found: id=%s: %w", transportID, models.ErrNotFound)
	}
	return false, nil
}

// Get one unit with its last position
func (r *TransportRepository) Get(ctx context.Context, transportID string) (*models.TransportUnit, error) {
	query := `
		SELECT id, driver_id, status, latitude, longitude, speed, heading, position_at, updated_at
		FROM transport_units
		WHERE id = $1
	`

	var unit models.TransportUnit
	var status string
	var lat, lng, speed, heading sql.NullFloat64
	var positionAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, transportID).Scan(
		&unit.ID,
		&unit.DriverID,
		&status,
		&lat,
		&lng,
		&speed,
		&heading,
		&positionAt,
		&unit.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("transport unit not found: id=%s: %w", transportID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get transport unit: %w", err)
	}

	unit.Status = models.TransportStatus(status)
	if lat.Valid && lng.Valid && positionAt.Valid {
		unit.Position = &models.Fix{
			Lat:       lat.Float64,
			Lng:       lng.Float64,
			Speed:     fromNullFloat(speed),
			Heading:   fromNullFloat(heading),
			Timestamp: positionAt.Time,
		}
	}
	return &unit, nil
}

func toAnyFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func fromNullFloat(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}
