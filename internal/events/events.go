package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ashharzawarsyed/alertx-sub004/internal/geo"
	"github.com/ashharzawarsyed/alertx-sub004/internal/models"
)

// Outbound event types
const (
	TypeStatusChanged   = "emergency.status_changed"
	TypeRouteProgress   = "route.progress_updated"
	TypeStuckDetected   = "emergency.stuck_detected"
	TypeCommandRejected = "emergency.command_rejected"
)

// Inbound message types
const (
	TypePositionFixReceived = "position_fix_received"
	TypeCreateRequested     = "emergency.create_requested"
	TypeAcceptRequested     = "emergency.accept_requested"
	TypePickupRequested     = "emergency.pickup_requested"
	TypeCompleteRequested   = "emergency.complete_requested"
	TypeCancelRequested     = "emergency.cancel_requested"
	TypeLegStarted          = "route.leg_started"
)

// Source stamped on every event this process emits
const Source = "alertx-dispatch"

// Event envelope for everything published
type Event struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	AggregateID string          `json:"aggregate_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Data        json.RawMessage `json:"data"`
	Metadata    Metadata        `json:"metadata"`
}

// Metadata tracing fields
type Metadata struct {
	CorrelationID string `json:"correlation_id,omitempty"`
	Source        string `json:"source"`
}

// New builds an event with a fresh id
func New(eventType, aggregateID string, data interface{}, at time.Time) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		AggregateID: aggregateID,
		Timestamp:   at.UTC(),
		Data:        raw,
		Metadata:    Metadata{Source: Source},
	}, nil
}

// WithCorrelation sets the correlation id and returns e
func (e *Event) WithCorrelation(id string) *Event {
	e.Metadata.CorrelationID = id
	return e
}

// Decode unmarshals the payload into v
func (e *Event) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

// ============================================
// Outbound payloads
// ============================================

// StatusChanged emergency.status_changed
type StatusChanged struct {
	EmergencyID string        `json:"emergency_id"`
	RequesterID string        `json:"requester_id"`
	From        models.Status `json:"from,omitempty"`
	To          models.Status `json:"to"`
	Tier        models.Tier   `json:"tier"`
	Score       float64       `json:"score"`
	Panic       bool          `json:"panic"`
	TransportID *string       `json:"transport_id,omitempty"`
	FacilityID  *string       `json:"facility_id,omitempty"`
	BedCategory *string       `json:"bed_category,omitempty"`
	Reason      *string       `json:"reason,omitempty"`
	At          time.Time     `json:"at"`
}

// RouteProgress route.progress_updated
type RouteProgress struct {
	TripID              string      `json:"trip_id"`
	EmergencyID         string      `json:"emergency_id"`
	Leg                 string      `json:"leg"`
	TransportID         string      `json:"transport_id,omitempty"`
	CursorIndex         int         `json:"cursor_index"`
	Traveled            []geo.Point `json:"traveled"`
	Remaining           []geo.Point `json:"remaining"`
	DistanceRemainingKm float64     `json:"distance_remaining_km"`
	ETAMinutes          float64     `json:"eta_minutes"`
	ProgressPct         float64     `json:"progress_pct"`
	At                  time.Time   `json:"at"`
}

// StuckDetected emergency.stuck_detected
type StuckDetected struct {
	EmergencyID string        `json:"emergency_id"`
	Status      models.Status `json:"status"`
	TransportID *string       `json:"transport_id,omitempty"`
	Since       time.Time     `json:"since"`
	AgeSeconds  int64         `json:"age_seconds"`
}

// Rejection codes carried by CommandRejected.Code
const (
	CodeInvalidTransition = "invalid_transition"
	CodeInvalidRouteState = "invalid_route_state"
	CodeFacilityFull      = "facility_full"
	CodeUnknownFacility   = "unknown_facility"
	CodeNotFound          = "not_found"
	CodeForbidden         = "forbidden"
	CodeInvalidRequest    = "invalid_request"
	CodeError             = "error"
)

// CommandRejected emergency.command_rejected, sent when an inbound command
// fails. Code is one of the Code* constants; Reason is free text.
type CommandRejected struct {
	CommandType string `json:"command_type"`
	EmergencyID string `json:"emergency_id,omitempty"`
	Code        string `json:"code"`
	Reason      string `json:"reason"`
}

// ============================================
// Inbound payloads
// ============================================

// PositionFix position_fix_received
type PositionFix struct {
	TransportID string    `json:"transport_id"`
	DriverID    string    `json:"driver_id,omitempty"`
	TripID      string    `json:"trip_id,omitempty"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	Speed       *float64  `json:"speed,omitempty"`
	Heading     *float64  `json:"heading,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Fix converts to the model type
func (p PositionFix) Fix() models.Fix {
	return models.Fix{
		TripID:    p.TripID,
		Lat:       p.Lat,
		Lng:       p.Lng,
		Speed:     p.Speed,
		Heading:   p.Heading,
		Timestamp: p.Timestamp,
	}
}

// CreateRequested emergency.create_requested
type CreateRequested struct {
	RequestID   string     `json:"request_id,omitempty"`
	RequesterID string     `json:"requester_id"`
	SymptomText string     `json:"symptom_text"`
	Keywords    []string   `json:"keywords,omitempty"`
	Location    *geo.Point `json:"location,omitempty"`
	Panic       bool       `json:"panic"`
}

// AcceptRequested emergency.accept_requested
type AcceptRequested struct {
	EmergencyID string      `json:"emergency_id"`
	DriverID    string      `json:"driver_id"`
	TransportID string      `json:"transport_id"`
	FacilityID  string      `json:"facility_id"`
	BedCategory string      `json:"bed_category"`
	Path        []geo.Point `json:"path,omitempty"`
}

// PickupRequested emergency.pickup_requested
type PickupRequested struct {
	EmergencyID string      `json:"emergency_id"`
	DriverID    string      `json:"driver_id"`
	Path        []geo.Point `json:"path,omitempty"`
}

// CompleteRequested emergency.complete_requested
type CompleteRequested struct {
	EmergencyID string `json:"emergency_id"`
	DriverID    string `json:"driver_id"`
}

// CancelRequested emergency.cancel_requested
type CancelRequested struct {
	EmergencyID string `json:"emergency_id"`
	RequesterID string `json:"requester_id,omitempty"`
	Reason      string `json:"reason"`
}

// LegStarted route.leg_started, replaces the path of an active leg
type LegStarted struct {
	EmergencyID string      `json:"emergency_id"`
	Leg         string      `json:"leg"`
	Path        []geo.Point `json:"path"`
}

// DecodeInbound maps an inbound type and JSON payload to its typed message
func DecodeInbound(msgType string, data []byte) (interface{}, error) {
	var target interface{}
	switch msgType {
	case TypePositionFixReceived:
		target = &PositionFix{}
	case TypeCreateRequested:
		target = &CreateRequested{}
	case TypeAcceptRequested:
		target = &AcceptRequested{}
	case TypePickupRequested:
		target = &PickupRequested{}
	case TypeCompleteRequested:
		target = &CompleteRequested{}
	case TypeCancelRequested:
		target = &CancelRequested{}
	case TypeLegStarted:
		target = &LegStarted{}
	default:
		return nil, fmt.Errorf("unknown message type %q", msgType)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", msgType, err)
	}
	return target, nil
}
