package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ashharzawarsyed/alertx-sub004/internal/events"

	"go.uber.org/zap"
)

// EventLogRepository append-only dispatch_events table. Implements
// events.Publisher so it can sit in the publisher fan-out.
type EventLogRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEventLogRepository creates the repository
func NewEventLogRepository(db *sql.DB, logger *zap.Logger) *EventLogRepository {
	return &EventLogRepository{
		db:     db,
		logger: logger,
	}
}

// EventLogFilters event log query conditions
type EventLogFilters struct {
	StartTime *time.Time // occurred_at >= StartTime
	EndTime   *time.Time // occurred_at <= EndTime

	AggregateID   *string
	EventType     *string
	EventTypes    []string // IN
	CorrelationID *string
}

const eventLogColumns = `event_id, event_type, aggregate_id, occurred_at, data, correlation_id, source`

// ============================================
// Append
// ============================================

// Publish implements events.Publisher; a replayed event id is ignored
func (r *EventLogRepository) Publish(ctx context.Context, event *events.Event) error {
	if event == nil || event.ID == "" {
		return fmt.Errorf("event id is required")
	}

	data := []byte(event.Data)
	if len(data) == 0 {
		data = []byte("{}")
	}

	query := `
		INSERT INTO dispatch_events (` + eventLogColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.Type,
		event.AggregateID,
		event.Timestamp,
		data,
		toAnyString(nonEmpty(event.Metadata.CorrelationID)),
		event.Metadata.Source,
	)
	if err != nil {
		return fmt.Errorf("failed to append event %s: %w", event.ID, err)
	}
	return nil
}

// ============================================
// Queries
// ============================================

func (r *EventLogRepository) buildWhereClause(filters EventLogFilters, args *[]interface{}, argN *int) []string {
	where := []string{}

	if filters.StartTime != nil {
		where = append(where, fmt.Sprintf("occurred_at >= $%d", *argN))
		*args = append(*args, *filters.StartTime)
		*argN++
	}
	if filters.EndTime != nil {
		where = append(where, fmt.Sprintf("occurred_at <= $%d", *argN))
		*args = append(*args, *filters.EndTime)
		*argN++
	}

	if filters.AggregateID != nil {
		where = append(where, fmt.Sprintf("aggregate_id = $%d", *argN))
		*args = append(*args, *filters.AggregateID)
		*argN++
	}
	if filters.EventType != nil {
		where = append(where, fmt.Sprintf("event_type = $%d", *argN))
		*args = append(*args, *filters.EventType)
		*argN++
	}
	if len(filters.EventTypes) > 0 {
		placeholders := make([]string, len(filters.EventTypes))
		for i := range filters.EventTypes {
			placeholders[i] = fmt.Sprintf("$%d", *argN)
			*args = append(*args, filters.EventTypes[i])
			*argN++
		}
		where = append(where, fmt.Sprintf("event_type IN (%s)", strings.Join(placeholders, ", ")))
	}
	if filters.CorrelationID != nil {
		where = append(where, fmt.Sprintf("correlation_id = $%d", *argN))
		*args = append(*args, *filters.CorrelationID)
		*argN++
	}

	return where
}

// CountEvents matching filters
func (r *EventLogRepository) CountEvents(ctx context.Context, filters EventLogFilters) (int, error) {
	args := []interface{}{}
	argN := 1
	where := r.buildWhereClause(filters, &args, &argN)

	query := `SELECT COUNT(*) FROM dispatch_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return total, nil
}

// ListEvents oldest first, paged; returns the page and the total count
func (r *EventLogRepository) ListEvents(ctx context.Context, filters EventLogFilters, page, size int) ([]*events.Event, int, error) {
	total, err := r.CountEvents(ctx, filters)
	if err != nil {
		return nil, 0, err
	}

	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 50
	}
	if size > 500 {
		size = 500
	}
	offset := (page - 1) * size

	args := []interface{}{}
	argN := 1
	where := r.buildWhereClause(filters, &args, &argN)
	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM dispatch_events
		%s
		ORDER BY occurred_at ASC, event_id ASC
		LIMIT $%d OFFSET $%d
	`, eventLogColumns, whereClause, argN, argN+1)
	args = append(args, size, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	out := []*events.Event{}
	for rows.Next() {
		var ev events.Event
		var data []byte
		var correlationID sql.NullString

		if err := rows.Scan(
			&ev.ID,
			&ev.Type,
			&ev.AggregateID,
			&ev.Timestamp,
			&data,
			&correlationID,
			&ev.Metadata.Source,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan event: %w", err)
		}

		if len(data) > 0 {
			ev.Data = json.RawMessage(data)
		} else {
			ev.Data = json.RawMessage("{}")
		}
		if correlationID.Valid {
			ev.Metadata.CorrelationID = correlationID.String
		}
		out = append(out, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate events: %w", err)
	}

	return out, total, nil
}

// EmergencyTimeline every event recorded for one emergency
func (r *EventLogRepository) EmergencyTimeline(ctx context.Context, emergencyID string, page, size int) ([]*events.Event, int, error) {
	if emergencyID == "" {
		return nil, 0, fmt.Errorf("emergency_id is required")
	}
	return r.ListEvents(ctx, EventLogFilters{AggregateID: &emergencyID}, page, size)
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
