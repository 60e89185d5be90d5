package tracking

import (
	"strings"
	"sync"
	"time"

	"github.com/ashharzawarsyed/alertx-sub004/internal/geo"
	"github.com/ashharzawarsyed/alertx-sub004/internal/models"
)

// Leg which half of a dispatch a route covers
type Leg string

const (
	LegToPatient  Leg = "to_patient"
	LegToFacility Leg = "to_facility"
)

// Legs all leg kinds, in travel order
var Legs = []Leg{LegToPatient, LegToFacility}

// TripID "<emergencyID>:<leg>"
func TripID(emergencyID string, leg Leg) string {
	return emergencyID + ":" + string(leg)
}

// ParseTripID splits a trip id; ok is false for malformed ids or unknown legs
func ParseTripID(tripID string) (emergencyID string, leg Leg, ok bool) {
	i := strings.LastIndex(tripID, ":")
	if i <= 0 || i == len(tripID)-1 {
		return "", "", false
	}
	leg = Leg(tripID[i+1:])
	if leg != LegToPatient && leg != LegToFacility {
		return "", "", false
	}
	return tripID[:i], leg, true
}

type trip struct {
	mu      sync.Mutex
	tracker *Tracker
	lastFix time.Time
}

// Registry active trackers keyed by trip id. Updates on one trip are
// serialized; different trips proceed in parallel.
type Registry struct {
	mu    sync.RWMutex
	cfg   Config
	trips map[string]*trip
}

// NewRegistry creates an empty registry
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:   cfg,
		trips: make(map[string]*trip),
	}
}

// Begin starts (or restarts) tracking tripID on path
func (r *Registry) Begin(tripID string, path []geo.Point) Progress {
	tr := NewTracker(r.cfg)
	tr.Initialize(path)

	r.mu.Lock()
	r.trips[tripID] = &trip{tracker: tr}
	r.mu.Unlock()

	p, _ := tr.Snapshot()
	return p
}

// Update applies fix to its trip. applied is false when the fix is older than
// the last applied fix; the current progress is returned unchanged.
func (r *Registry) Update(tripID string, fix models.Fix) (progress Progress, applied bool, err error) {
	t := r.get(tripID)
	if t == nil {
		return Progress{}, false, &InvalidRouteStateError{TripID: tripID, Reason: "no active route"}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !fix.Timestamp.IsZero() && fix.Timestamp.Before(t.lastFix) {
		p, err := t.tracker.Snapshot()
		return p, false, err
	}

	fix.TripID = tripID
	p, err := t.tracker.Update(fix)
	if err != nil {
		return p, false, err
	}
	if fix.Timestamp.After(t.lastFix) {
		t.lastFix = fix.Timestamp
	}
	return p, true, nil
}

// Snapshot current progress of tripID
func (r *Registry) Snapshot(tripID string) (Progress, error) {
	t := r.get(tripID)
	if t == nil {
		return Progress{}, &InvalidRouteStateError{TripID: tripID, Reason: "no active route"}
	}
	return t.tracker.Snapshot()
}

// Active reports whether tripID is tracked
func (r *Registry) Active(tripID string) bool {
	return r.get(tripID) != nil
}

// End stops tracking tripID; ending an unknown trip is a no-op
func (r *Registry) End(tripID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.trips[tripID]; !ok {
		return false
	}
	delete(r.trips, tripID)
	return true
}

// EndEmergency stops every leg of emergencyID, returning the trip ids ended
func (r *Registry) EndEmergency(emergencyID string) []string {
	var ended []string
	for _, leg := range Legs {
		id := TripID(emergencyID, leg)
		if r.End(id) {
			ended = append(ended, id)
		}
	}
	return ended
}

// Len number of active trips
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.trips)
}

func (r *Registry) get(tripID string) *trip {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.trips[tripID]
}
