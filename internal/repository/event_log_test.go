package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ashharzawarsyed/alertx-sub004/internal/events"
)

var eventLogColumnNames = []string{
	"event_id", "event_type", "aggregate_id", "occurred_at", "data", "correlation_id", "source",
}

func setupMockEventLogDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *EventLogRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewEventLogRepository(db, zap.NewNop())
	return db, mock, repo
}

// ============================================
// Publish
// ============================================

func TestEventLogPublish_Success(t *testing.T) {
	db, mock, repo := setupMockEventLogDB(t)
	defer db.Close()

	at := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	ev, err := events.New(events.TypeStatusChanged, "e-1", events.StatusChanged{EmergencyID: "e-1", To: "pending"}, at)
	require.NoError(t, err)
	ev.WithCorrelation("req-7")

	mock.ExpectExec(`INSERT INTO dispatch_events`).
		WithArgs(ev.ID, events.TypeStatusChanged, "e-1", at, []byte(ev.Data), "req-7", events.Source).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Publish(context.Background(), ev))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventLogPublish_NoCorrelation(t *testing.T) {
	db, mock, repo := setupMockEventLogDB(t)
	defer db.Close()

	ev := &events.Event{ID: uuid.NewString(), Type: events.TypeStuckDetected, AggregateID: "e-2", Metadata: events.Metadata{Source: events.Source}}

	mock.ExpectExec(`INSERT INTO dispatch_events`).
		WithArgs(ev.ID, events.TypeStuckDetected, "e-2", sqlmock.AnyArg(), []byte("{}"), nil, events.Source).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Publish(context.Background(), ev))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventLogPublish_Errors(t *testing.T) {
	db, mock, repo := setupMockEventLogDB(t)
	defer db.Close()

	assert.Error(t, repo.Publish(context.Background(), nil))
	assert.Error(t, repo.Publish(context.Background(), &events.Event{}))

	mock.ExpectExec(`INSERT INTO dispatch_events`).WillReturnError(errors.New("connection reset"))
	err := repo.Publish(context.Background(), &events.Event{ID: "ev-1", Type: events.TypeStatusChanged})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to append event")
	require.NoError(t, mock.ExpectationsWereMet())
}

// ============================================
// Queries
// ============================================

func TestEventLogListEvents_Filters(t *testing.T) {
	db, mock, repo := setupMockEventLogDB(t)
	defer db.Close()

	start := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	aggregate := "e-1"
	filters := EventLogFilters{
		StartTime:   &start,
		AggregateID: &aggregate,
		EventTypes:  []string{events.TypeStatusChanged, events.TypeStuckDetected},
	}

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM dispatch_events WHERE occurred_at >= \$1 AND aggregate_id = \$2 AND event_type IN \(\$3, \$4\)`).
		WithArgs(start, "e-1", events.TypeStatusChanged, events.TypeStuckDetected).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	payload, _ := json.Marshal(events.StatusChanged{EmergencyID: "e-1", To: "accepted"})
	mock.ExpectQuery(`SELECT .* FROM dispatch_events\s+WHERE .* ORDER BY occurred_at ASC, event_id ASC\s+LIMIT \$5 OFFSET \$6`).
		WithArgs(start, "e-1", events.TypeStatusChanged, events.TypeStuckDetected, 2, 2).
		WillReturnRows(sqlmock.NewRows(eventLogColumnNames).
			AddRow("ev-3", events.TypeStatusChanged, "e-1", start.Add(time.Minute), payload, nil, events.Source))

	list, total, err := repo.ListEvents(context.Background(), filters, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, list, 1)
	assert.Equal(t, "ev-3", list[0].ID)
	assert.Empty(t, list[0].Metadata.CorrelationID)

	var decoded events.StatusChanged
	require.NoError(t, list[0].Decode(&decoded))
	assert.Equal(t, "e-1", decoded.EmergencyID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventLogEmergencyTimeline_Defaults(t *testing.T) {
	db, mock, repo := setupMockEventLogDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM dispatch_events WHERE aggregate_id = \$1`).
		WithArgs("e-9").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT .* FROM dispatch_events`).
		WithArgs("e-9", 50, 0).
		WillReturnRows(sqlmock.NewRows(eventLogColumnNames).
			AddRow("ev-1", events.TypeStatusChanged, "e-9", time.Now(), []byte(nil), "req-1", events.Source))

	list, total, err := repo.EmergencyTimeline(context.Background(), "e-9", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, "req-1", list[0].Metadata.CorrelationID)
	assert.JSONEq(t, `{}`, string(list[0].Data))
	require.NoError(t, mock.ExpectationsWereMet())

	_, _, err = repo.EmergencyTimeline(context.Background(), "", 1, 10)
	assert.Error(t, err)
}

func TestEventLogCountEvents_Error(t *testing.T) {
	db, mock, repo := setupMockEventLogDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT`).WillReturnError(errors.New("db down"))

	_, _, err := repo.ListEvents(context.Background(), EventLogFilters{}, 1, 10)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to count events")
	require.NoError(t, mock.ExpectationsWereMet())
}
