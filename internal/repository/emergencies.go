package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ashharzawarsyed/alertx-sub004/internal/geo"
	"github.com/ashharzawarsyed/alertx-sub004/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// EmergencyRepository emergencies table
type EmergencyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEmergencyRepository creates the repository
func NewEmergencyRepository(db *sql.DB, logger *zap.Logger) *EmergencyRepository {
	return &EmergencyRepository{
		db:     db,
		logger: logger,
	}
}

const emergencyColumns = `
	id,
	requester_id,
	symptom_text,
	symptom_keywords,
	latitude,
	longitude,
	panic,
	severity_tier,
	triage_score,
	triage_confidence,
	matched_keywords,
	status,
	assigned_transport_id,
	assigned_driver_id,
	assigned_facility_id,
	reserved_bed_category,
	created_at,
	accepted_at,
	picked_up_at,
	completed_at,
	cancelled_at,
	cancellation_reason,
	updated_at
`

// Load one emergency; wraps models.ErrNotFound when absent
func (r *EmergencyRepository) Load(ctx context.Context, id string) (*models.Emergency, error) {
	if id == "" {
		return nil, fmt.Errorf("emergency id is required")
	}

	query := `SELECT ` + emergencyColumns + ` FROM emergencies WHERE id = $1`

	e, err := scanEmergency(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("emergency not found: id=%s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get emergency: %w", err)
	}
	return e, nil
}

// Save inserts or updates by id. requester_id and symptom fields are never overwritten.
func (r *EmergencyRepository) Save(ctx context.Context, e *models.Emergency) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("emergency id is required")
	}

	var lat, lng interface{}
	if e.Location != nil {
		lat, lng = e.Location.Lat, e.Location.Lng
	}

	query := `
		INSERT INTO emergencies (` + emergencyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			assigned_transport_id = EXCLUDED.assigned_transport_id,
			assigned_driver_id = EXCLUDED.assigned_driver_id,
			assigned_facility_id = EXCLUDED.assigned_facility_id,
			reserved_bed_category = EXCLUDED.reserved_bed_category,
			accepted_at = EXCLUDED.accepted_at,
			picked_up_at = EXCLUDED.picked_up_at,
			completed_at = EXCLUDED.completed_at,
			cancelled_at = EXCLUDED.cancelled_at,
			cancellation_reason = EXCLUDED.cancellation_reason,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		e.ID,
		e.RequesterID,
		e.SymptomText,
		pq.Array(nonNil(e.SymptomKeywords)),
		lat,
		lng,
		e.Panic,
		string(e.SeverityTier),
		e.TriageScore,
		e.TriageConfidence,
		pq.Array(nonNil(e.MatchedKeywords)),
		string(e.Status),
		toAnyString(e.AssignedTransportID),
		toAnyString(e.AssignedDriverID),
		toAnyString(e.AssignedFacilityID),
		toAnyString(e.ReservedBedCategory),
		e.CreatedAt,
		toAnyTime(e.AcceptedAt),
		toAnyTime(e.PickedUpAt),
		toAnyTime(e.CompletedAt),
		toAnyTime(e.CancelledAt),
		toAnyString(e.CancellationReason),
		e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save emergency: %w", err)
	}

	r.logger.Debug("Emergency saved",
		zap.String("emergency_id", e.ID),
		zap.String("status", string(e.Status)),
	)
	return nil
}

// Transition updates the mutable columns only while the row is still in
// status from. Zero affected rows wraps models.ErrConflict.
func (r *EmergencyRepository) Transition(ctx context.Context, e *models.Emergency, from models.Status) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("emergency id is required")
	}

	query := `
		UPDATE emergencies SET
			status = $2,
			assigned_transport_id = $3,
			assigned_driver_id = $4,
			assigned_facility_id = $5,
			reserved_bed_category = $6,
			accepted_at = $7,
			picked_up_at = $8,
			completed_at = $9,
			cancelled_at = $10,
			cancellation_reason = $11,
			updated_at = $12
		WHERE id = $1 AND status = $13
	`

	result, err := r.db.ExecContext(ctx, query,
		e.ID,
		string(e.Status),
		toAnyString(e.AssignedTransportID),
		toAnyString(e.AssignedDriverID),
		toAnyString(e.AssignedFacilityID),
		toAnyString(e.ReservedBedCategory),
		toAnyTime(e.AcceptedAt),
		toAnyTime(e.PickedUpAt),
		toAnyTime(e.CompletedAt),
		toAnyTime(e.CancelledAt),
		toAnyString(e.CancellationReason),
		e.UpdatedAt,
		string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update emergency: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("emergency %s is no longer %s: %w", e.ID, from, models.ErrConflict)
	}

	r.logger.Debug("Emergency transitioned",
		zap.String("emergency_id", e.ID),
		zap.String("from", string(from)),
		zap.String("to", string(e.Status)),
	)
	return nil
}

// ListByStatus emergencies in any of statuses, oldest first
func (r *EmergencyRepository) ListByStatus(ctx context.Context, statuses ...models.Status) ([]*models.Emergency, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}

	query := `SELECT ` + emergencyColumns + ` FROM emergencies WHERE status = ANY($1) ORDER BY created_at ASC`

	return r.list(ctx, query, pq.Array(values))
}

// ListByRequester a requester's emergencies, newest first
func (r *EmergencyRepository) ListByRequester(ctx context.Context, requesterID string, limit int) ([]*models.Emergency, error) {
	if requesterID == "" {
		return nil, fmt.Errorf("requester_id is required")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + emergencyColumns + ` FROM emergencies WHERE requester_id = $1 ORDER BY created_at DESC LIMIT $2`

	return r.list(ctx, query, requesterID, limit)
}

func (r *EmergencyRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Emergency, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query emergencies: %w", err)
	}
	defer rows.Close()

	var out []*models.Emergency
	for rows.Next() {
		e, err := scanEmergency(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan emergency: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate emergencies: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEmergency(row rowScanner) (*models.Emergency, error) {
	var e models.Emergency
	var tier, status string
	var symptomKeywords, matchedKeywords pq.StringArray
	var lat, lng sql.NullFloat64
	var transportID, driverID, facilityID, bedCategory, reason sql.NullString
	var acceptedAt, pickedUpAt, completedAt, cancelledAt sql.NullTime

	err := row.Scan(
		&e.ID,
		&e.RequesterID,
		&e.SymptomText,
		&symptomKeywords,
		&lat,
		&lng,
		&e.Panic,
		&tier,
		&e.TriageScore,
		&e.TriageConfidence,
		&matchedKeywords,
		&status,
		&transportID,
		&driverID,
		&facilityID,
		&bedCategory,
		&e.CreatedAt,
		&acceptedAt,
		&pickedUpAt,
		&completedAt,
		&cancelledAt,
		&reason,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.SeverityTier = models.Tier(tier)
	e.Status = models.Status(strings.TrimSpace(status))
	e.SymptomKeywords = []string(symptomKeywords)
	e.MatchedKeywords = []string(matchedKeywords)
	if lat.Valid && lng.Valid {
		e.Location = &geo.Point{Lat: lat.Float64, Lng: lng.Float64}
	}
	e.AssignedTransportID = fromNullString(transportID)
	e.AssignedDriverID = fromNullString(driverID)
	e.AssignedFacilityID = fromNullString(facilityID)
	e.ReservedBedCategory = fromNullString(bedCategory)
	e.CancellationReason = fromNullString(reason)
	e.AcceptedAt = fromNullTime(acceptedAt)
	e.PickedUpAt = fromNullTime(pickedUpAt)
	e.CompletedAt = fromNullTime(completedAt)
	e.CancelledAt = fromNullTime(cancelledAt)

	return &e, nil
}

// ---- nullable helpers ----

func toAnyString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func toAnyTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func fromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time
	return &v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
