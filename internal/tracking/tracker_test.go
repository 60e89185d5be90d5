package tracking

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashharzawarsyed/alertx-sub004/internal/geo"
	"github.com/ashharzawarsyed/alertx-sub004/internal/models"
)

var (
	routeStart = geo.Point{Lat: 21.028511, Lng: 105.854444}
	routeEnd   = geo.Point{Lat: 21.003117, Lng: 105.820140}
)

func testPath() []geo.Point {
	return geo.StraightLine(routeStart, routeEnd, 10)
}

func fixAt(p geo.Point) models.Fix {
	return models.Fix{Lat: p.Lat, Lng: p.Lng}
}

// nudged moves p a few metres off the route
func nudged(p geo.Point) geo.Point {
	return geo.Point{Lat: p.Lat + 0.00003, Lng: p.Lng - 0.00002}
}

func speed(v float64) *float64 { return &v }

func TestTracker_UpdateBeforeInitialize(t *testing.T) {
	tr := NewTracker(DefaultConfig())

	p, err := tr.Update(fixAt(routeStart))

	require.Error(t, err)
	var stateErr *InvalidRouteStateError
	assert.True(t, errors.As(err, &stateErr))
	assert.Equal(t, Progress{}, p)
	assert.False(t, tr.Initialized())
}

func TestTracker_CursorNeverMovesBackwards(t *testing.T) {
	path := testPath()
	tr := NewTracker(DefaultConfig())
	tr.Initialize(path)

	p, err := tr.Update(fixAt(nudged(path[5])))
	require.NoError(t, err)
	assert.Equal(t, 5, p.CursorIndex)

	// noisy fix near an earlier point
	p, err = tr.Update(fixAt(nudged(path[3])))
	require.NoError(t, err)
	assert.Equal(t, 5, p.CursorIndex)

	p, err = tr.Update(fixAt(path[4]))
	require.NoError(t, err)
	assert.Equal(t, 5, p.CursorIndex)

	p, err = tr.Update(fixAt(path[7]))
	require.NoError(t, err)
	assert.Equal(t, 7, p.CursorIndex)
}

func TestTracker_WindowLimitsJump(t *testing.T) {
	path := testPath()
	tr := NewTracker(Config{LookBack: 1, LookAhead: 3, AverageSpeedKmh: 40, MinLiveSpeedKmh: 5})
	tr.Initialize(path)

	p, err := tr.Update(fixAt(path[9]))
	require.NoError(t, err)
	assert.Equal(t, 3, p.CursorIndex)

	p, err = tr.Update(fixAt(path[9]))
	require.NoError(t, err)
	assert.Equal(t, 6, p.CursorIndex)
}

func TestTracker_SplitIncludesCursorPoint(t *testing.T) {
	path := testPath()
	tr := NewTracker(DefaultConfig())
	tr.Initialize(path)

	p, err := tr.Update(fixAt(path[4]))
	require.NoError(t, err)

	require.Len(t, p.Traveled, 5)
	require.Len(t, p.Remaining, 7)
	assert.Equal(t, path[4], p.Traveled[len(p.Traveled)-1])
	assert.Equal(t, path[4], p.Remaining[0])
	assert.InDelta(t, geo.PathLengthKm(path[4:]), p.DistanceRemainingKm, 1e-9)
}

func TestTracker_ProgressBounds(t *testing.T) {
	path := testPath()
	tr := NewTracker(DefaultConfig())
	tr.Initialize(path)

	last := -1.0
	for i := range path {
		p, err := tr.Update(fixAt(path[i]))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, p.ProgressPct, 0.0)
		assert.LessOrEqual(t, p.ProgressPct, 100.0)
		assert.GreaterOrEqual(t, p.ProgressPct, last)
		last = p.ProgressPct
	}
	assert.InDelta(t, 100.0, last, 1e-9)

	p, err := tr.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.DistanceRemainingKm)
	assert.Equal(t, 0.0, p.ETAMinutes)
}

func TestTracker_ETA(t *testing.T) {
	path := testPath()
	total := geo.PathLengthKm(path)

	tests := []struct {
		name  string
		speed *float64
		want  float64
	}{
		{"live speed", speed(60), total},
		{"below minimum uses average", speed(2), total / 40 * 60},
		{"missing uses average", nil, total / 40 * 60},
		{"zero uses average", speed(0), total / 40 * 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(DefaultConfig())
			tr.Initialize(path)

			fix := fixAt(path[0])
			fix.Speed = tt.speed
			p, err := tr.Update(fix)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, p.ETAMinutes, 1e-9)
		})
	}
}

func TestTracker_DegeneratePaths(t *testing.T) {
	tests := []struct {
		name string
		path []geo.Point
	}{
		{"empty", nil},
		{"single point", []geo.Point{routeStart}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(DefaultConfig())
			tr.Initialize(tt.path)

			p, err := tr.Update(fixAt(routeEnd))
			require.NoError(t, err)
			assert.Empty(t, p.Traveled)
			assert.Empty(t, p.Remaining)
			assert.Equal(t, 0, p.CursorIndex)
			assert.Equal(t, 0.0, p.DistanceRemainingKm)
			assert.Equal(t, 0.0, p.ETAMinutes)
			assert.Equal(t, 0.0, p.ProgressPct)
		})
	}
}

func TestTracker_ZeroLengthPath(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	tr.Initialize([]geo.Point{routeStart, routeStart, routeStart})

	p, err := tr.Update(fixAt(routeStart))
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.ProgressPct)
	assert.False(t, math.IsNaN(p.ETAMinutes))
}

func TestTracker_InvalidFix(t *testing.T) {
	path := testPath()
	tr := NewTracker(DefaultConfig())
	tr.Initialize(path)

	_, err := tr.Update(fixAt(path[2]))
	require.NoError(t, err)

	p, err := tr.Update(models.Fix{Lat: 123, Lng: 0})
	assert.ErrorIs(t, err, ErrInvalidFix)
	assert.Equal(t, 2, p.CursorIndex)
}

func TestTracker_ReinitializeResets(t *testing.T) {
	path := testPath()
	tr := NewTracker(DefaultConfig())
	tr.Initialize(path)

	_, err := tr.Update(fixAt(path[8]))
	require.NoError(t, err)

	reversed := make([]geo.Point, len(path))
	for i := range path {
		reversed[len(path)-1-i] = path[i]
	}
	tr.Initialize(reversed)

	p, err := tr.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 0, p.CursorIndex)
	assert.Equal(t, 0.0, p.ProgressPct)
}

func TestTracker_InitializeCopiesPath(t *testing.T) {
	path := testPath()
	tr := NewTracker(DefaultConfig())
	tr.Initialize(path)

	path[0] = geo.Point{}
	p, err := tr.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, routeStart, p.Traveled[0])
}

func TestTracker_UpdateIgnoresFixTime(t *testing.T) {
	path := testPath()
	tr := NewTracker(DefaultConfig())
	tr.Initialize(path)

	fix := fixAt(path[6])
	fix.Timestamp = time.Now().Add(-time.Hour)
	p, err := tr.Update(fix)
	require.NoError(t, err)
	assert.Equal(t, 6, p.CursorIndex)
}
