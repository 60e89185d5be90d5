package reservation

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/ashharzawarsyed/alertx-sub004/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresStore BedStore on the facilities / facility_beds tables. The
// conditional UPDATE is the compare-and-set; row locks serialize racers.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore creates a store on db
func NewPostgresStore(db *sql.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

// Decrement implements BedStore
func (s *PostgresStore) Decrement(ctx context.Context, facilityID, category string) (int, error) {
	query := `
		UPDATE facility_beds
		SET available = available - 1, updated_at = NOW()
		WHERE facility_id = $1
		  AND category = $2
		  AND available > 0
		RETURNING available
	`

	var remaining int
	err := s.db.QueryRowContext(ctx, query, facilityID, category).Scan(&remaining)
	if err == sql.ErrNoRows {
		exists, err := s.facilityExists(ctx, facilityID)
		if err != nil {
			return 0, err
		}
		if !exists {
			return 0, ErrUnknownFacility
		}
		return 0, errNoCapacity
	}
	if err != nil {
		return 0, fmt.Errorf("failed to decrement beds: %w", err)
	}
	return remaining, nil
}

// Increment implements BedStore
func (s *PostgresStore) Increment(ctx context.Context, facilityID, category string) (int, bool, error) {
	query := `
		UPDATE facility_beds
		SET available = available + 1, updated_at = NOW()
		WHERE facility_id = $1
		  AND category = $2
		  AND available < total
		RETURNING available
	`

	var available int
	err := s.db.QueryRowContext(ctx, query, facilityID, category).Scan(&available)
	if err == sql.ErrNoRows {
		exists, err := s.facilityExists(ctx, facilityID)
		if err != nil {
			return 0, false, err
		}
		if !exists {
			return 0, false, ErrUnknownFacility
		}
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to increment beds: %w", err)
	}
	return available, true, nil
}

// Get implements BedStore
func (s *PostgresStore) Get(ctx context.Context, facilityID string) (map[string]models.BedCount, error) {
	query := `
		SELECT category, total, available
		FROM facility_beds
		WHERE facility_id = $1
	`

	rows, err := s.db.QueryContext(ctx, query, facilityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query beds: %w", err)
	}
	defer rows.Close()

	beds := make(map[string]models.BedCount)
	for rows.Next() {
		var category string
		var count models.BedCount
		if err := rows.Scan(&category, &count.Total, &count.Available); err != nil {
			return nil, fmt.Errorf("failed to scan beds: %w", err)
		}
		beds[category] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate beds: %w", err)
	}

	if len(beds) == 0 {
		exists, err := s.facilityExists(ctx, facilityID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrUnknownFacility
		}
	}
	return beds, nil
}

// Put implements BedStore
func (s *PostgresStore) Put(ctx context.Context, facility models.Facility) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var lat, lng sql.NullFloat64
	if facility.Location != nil {
		lat = sql.NullFloat64{Float64: facility.Location.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: facility.Location.Lng, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO facilities (id, name, latitude, longitude, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			updated_at = NOW()
	`, facility.ID, facility.Name, lat, lng)
	if err != nil {
		return fmt.Errorf("failed to upsert facility: %w", err)
	}

	categories := make([]string, 0, len(facility.Beds))
	for c := range facility.Beds {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	_, err = tx.ExecContext(ctx, `
		DELETE FROM facility_beds
		WHERE facility_id = $1 AND NOT (category = ANY($2))
	`, facility.ID, pq.Array(categories))
	if err != nil {
		return fmt.Errorf("failed to drop unlisted categories: %w", err)
	}

	// an existing row keeps its held beds (total - available)
	for _, category := range categories {
		count := facility.Beds[category]
		_, err = tx.ExecContext(ctx, `
			INSERT INTO facility_beds (facility_id, category, total, available, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (facility_id, category) DO UPDATE SET
				total = EXCLUDED.total,
				available = GREATEST(0, LEAST(EXCLUDED.total,
					facility_beds.available + EXCLUDED.total - facility_beds.total)),
				updated_at = NOW()
		`, facility.ID, category, count.Total, count.Available)
		if err != nil {
			return fmt.Errorf("failed to upsert %s beds: %w", category, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit facility: %w", err)
	}

	s.logger.Debug("Facility beds stored",
		zap.String("facility_id", facility.ID),
		zap.Int("categories", len(categories)),
	)
	return nil
}

func (s *PostgresStore) facilityExists(ctx context.Context, facilityID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM facilities WHERE id = $1)`, facilityID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check facility: %w", err)
	}
	return exists, nil
}
