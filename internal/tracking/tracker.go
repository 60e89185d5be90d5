package tracking

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ashharzawarsyed/alertx-sub004/internal/geo"
	"github.com/ashharzawarsyed/alertx-sub004/internal/models"
)

// ErrInvalidFix fix coordinates out of range
var ErrInvalidFix = errors.New("invalid position fix")

// InvalidRouteStateError update against a tracker that has no route
type InvalidRouteStateError struct {
	TripID string
	Reason string
}

func (e *InvalidRouteStateError) Error() string {
	if e.TripID == "" {
		return fmt.Sprintf("invalid route state: %s", e.Reason)
	}
	return fmt.Sprintf("invalid route state for trip %s: %s", e.TripID, e.Reason)
}

// Config tracker tuning
type Config struct {
	// LookBack / LookAhead bound the search window around the cursor
	LookBack  int
	LookAhead int
	// AverageSpeedKmh used for ETA when the fix has no usable speed
	AverageSpeedKmh float64
	// MinLiveSpeedKmh below this the reported speed is treated as stopped
	MinLiveSpeedKmh float64
}

// DefaultConfig urban ambulance defaults
func DefaultConfig() Config {
	return Config{
		LookBack:        2,
		LookAhead:       25,
		AverageSpeedKmh: 40,
		MinLiveSpeedKmh: 5,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.LookBack < 0 {
		c.LookBack = 0
	}
	if c.LookAhead <= 0 {
		c.LookAhead = d.LookAhead
	}
	if c.AverageSpeedKmh <= 0 {
		c.AverageSpeedKmh = d.AverageSpeedKmh
	}
	if c.MinLiveSpeedKmh < 0 {
		c.MinLiveSpeedKmh = 0
	}
	return c
}

// Progress traveled/remaining split of a route. Both halves include the cursor point.
type Progress struct {
	Traveled            []geo.Point `json:"traveled"`
	Remaining           []geo.Point `json:"remaining"`
	CursorIndex         int         `json:"cursor_index"`
	DistanceRemainingKm float64     `json:"distance_remaining_km"`
	ETAMinutes          float64     `json:"eta_minutes"`
	ProgressPct         float64     `json:"progress_pct"`
}

// Tracker follows one vehicle along one fixed path. The cursor never moves backwards.
type Tracker struct {
	mu          sync.Mutex
	cfg         Config
	path        []geo.Point
	cursor      int
	initialized bool
	liveSpeed   *float64
}

// NewTracker creates an uninitialized tracker
func NewTracker(cfg Config) *Tracker {
	return &Tracker{cfg: cfg.normalized()}
}

// Initialize installs path and resets all state
func (t *Tracker) Initialize(path []geo.Point) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.path = append([]geo.Point(nil), path...)
	t.cursor = 0
	t.liveSpeed = nil
	t.initialized = true
}

// Initialized reports whether a route is installed
func (t *Tracker) Initialized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.initialized
}

// Update snaps fix to the nearest path point inside the window and advances
// the cursor if that point is ahead of it.
func (t *Tracker) Update(fix models.Fix) (Progress, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.initialized {
		return Progress{}, &InvalidRouteStateError{TripID: fix.TripID, Reason: "update before initialize"}
	}

	p := fix.Point()
	if !p.Valid() {
		return t.progressLocked(), ErrInvalidFix
	}

	if fix.Speed != nil {
		speed := *fix.Speed
		t.liveSpeed = &speed
	} else {
		t.liveSpeed = nil
	}

	if len(t.path) < 2 {
		return t.progressLocked(), nil
	}

	lo := t.cursor - t.cfg.LookBack
	if lo < 0 {
		lo = 0
	}
	hi := t.cursor + t.cfg.LookAhead
	if hi > len(t.path)-1 {
		hi = len(t.path) - 1
	}

	nearest := t.cursor
	best := -1.0
	for i := lo; i <= hi; i++ {
		d := geo.HaversineKm(p, t.path[i])
		if best < 0 || d < best {
			best = d
			nearest = i
		}
	}

	if nearest > t.cursor {
		t.cursor = nearest
	}

	return t.progressLocked(), nil
}

// Snapshot current progress without consuming a fix
func (t *Tracker) Snapshot() (Progress, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.initialized {
		return Progress{}, &InvalidRouteStateError{Reason: "not initialized"}
	}
	return t.progressLocked(), nil
}

func (t *Tracker) progressLocked() Progress {
	if len(t.path) < 2 {
		return Progress{
			Traveled:  []geo.Point{},
			Remaining: []geo.Point{},
		}
	}

	traveled := append([]geo.Point(nil), t.path[:t.cursor+1]...)
	remaining := append([]geo.Point(nil), t.path[t.cursor:]...)

	traveledKm := geo.PathLengthKm(traveled)
	remainingKm := geo.PathLengthKm(remaining)

	pct := 0.0
	if total := traveledKm + remainingKm; total > 0 {
		pct = traveledKm / total * 100
		if pct > 100 {
			pct = 100
		}
	}

	speed := t.cfg.AverageSpeedKmh
	if t.liveSpeed != nil && *t.liveSpeed >= t.cfg.MinLiveSpeedKmh && *t.liveSpeed > 0 {
		speed = *t.liveSpeed
	}

	return Progress{
		Traveled:            traveled,
		Remaining:           remaining,
		CursorIndex:         t.cursor,
		DistanceRemainingKm: remainingKm,
		ETAMinutes:          remainingKm / speed * 60,
		ProgressPct:         pct,
	}
}
