package models

import (
	"errors"
	"time"

	"github.com/ashharzawarsyed/alertx-sub004/internal/geo"
)

var (
	// ErrNotFound record does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict record changed since it was loaded
	ErrConflict = errors.New("conflict")
)

// Tier severity bucket assigned by triage
type Tier string

const (
	TierCritical Tier = "critical"
	TierHigh     Tier = "high"
	TierMedium   Tier = "medium"
	TierLow      Tier = "low"
)

// Rank orders tiers; higher is more severe
func (t Tier) Rank() int {
	switch t {
	case TierCritical:
		return 4
	case TierHigh:
		return 3
	case TierMedium:
		return 2
	case TierLow:
		return 1
	default:
		return 0
	}
}

// Status emergency lifecycle state
type Status string

const (
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal completed and cancelled accept no further transitions
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Emergency one dispatch case (emergencies table)
type Emergency struct {
	ID          string `json:"id" db:"id"`
	RequesterID string `json:"requester_id" db:"requester_id"`

	SymptomText     string     `json:"symptom_text" db:"symptom_text"`
	SymptomKeywords []string   `json:"symptom_keywords" db:"symptom_keywords"`
	Location        *geo.Point `json:"location,omitempty" db:"-"`
	Panic           bool       `json:"panic" db:"panic"`

	SeverityTier     Tier     `json:"severity_tier" db:"severity_tier"`
	TriageScore      float64  `json:"triage_score" db:"triage_score"`
	TriageConfidence int      `json:"triage_confidence" db:"triage_confidence"`
	MatchedKeywords  []string `json:"matched_keywords" db:"matched_keywords"`

	Status Status `json:"status" db:"status"`

	// set on accepted, cleared by terminal transitions
	AssignedTransportID *string `json:"assigned_transport_id,omitempty" db:"assigned_transport_id"`
	AssignedDriverID    *string `json:"assigned_driver_id,omitempty" db:"assigned_driver_id"`
	AssignedFacilityID  *string `json:"assigned_facility_id,omitempty" db:"assigned_facility_id"`
	ReservedBedCategory *string `json:"reserved_bed_category,omitempty" db:"reserved_bed_category"`

	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	AcceptedAt         *time.Time `json:"accepted_at,omitempty" db:"accepted_at"`
	PickedUpAt         *time.Time `json:"picked_up_at,omitempty" db:"picked_up_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancellationReason *string    `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// HoldsReservation reports whether a bed is currently reserved for this case
func (e *Emergency) HoldsReservation() bool {
	return e.ReservedBedCategory != nil
}

// Clone returns a deep copy so stores never share mutable state with callers
func (e *Emergency) Clone() *Emergency {
	if e == nil {
		return nil
	}
	c := *e
	c.SymptomKeywords = append([]string(nil), e.SymptomKeywords...)
	c.MatchedKeywords = append([]string(nil), e.MatchedKeywords...)
	if e.Location != nil {
		loc := *e.Location
		c.Location = &loc
	}
	c.AssignedTransportID = cloneString(e.AssignedTransportID)
	c.AssignedDriverID = cloneString(e.AssignedDriverID)
	c.AssignedFacilityID = cloneString(e.AssignedFacilityID)
	c.ReservedBedCategory = cloneString(e.ReservedBedCategory)
	c.CancellationReason = cloneString(e.CancellationReason)
	c.AcceptedAt = cloneTime(e.AcceptedAt)
	c.PickedUpAt = cloneTime(e.PickedUpAt)
	c.CompletedAt = cloneTime(e.CompletedAt)
	c.CancelledAt = cloneTime(e.CancelledAt)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
