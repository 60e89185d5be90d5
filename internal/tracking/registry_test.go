package tracking

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTripID_RoundTrip(t *testing.T) {
	id := TripID("7f0c5a7e-1b1e-4a53-9c36-2f1f1c8f5d11", LegToFacility)
	assert.Equal(t, "7f0c5a7e-1b1e-4a53-9c36-2f1f1c8f5d11:to_facility", id)

	emergencyID, leg, ok := ParseTripID(id)
	require.True(t, ok)
	assert.Equal(t, "7f0c5a7e-1b1e-4a53-9c36-2f1f1c8f5d11", emergencyID)
	assert.Equal(t, LegToFacility, leg)
}

func TestParseTripID_Invalid(t *testing.T) {
	for _, id := range []string{"", "abc", ":to_patient", "abc:", "abc:to_mars"} {
		_, _, ok := ParseTripID(id)
		assert.False(t, ok, id)
	}
}

func TestRegistry_UnknownTrip(t *testing.T) {
	r := NewRegistry(DefaultConfig())

	_, applied, err := r.Update("e-1:to_patient", fixAt(routeStart))
	assert.False(t, applied)
	var stateErr *InvalidRouteStateError
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, "e-1:to_patient", stateErr.TripID)

	_, err = r.Snapshot("e-1:to_patient")
	assert.Error(t, err)
}

func TestRegistry_DropsOutOfOrderFixes(t *testing.T) {
	path := testPath()
	r := NewRegistry(DefaultConfig())
	id := TripID("e-1", LegToPatient)
	r.Begin(id, path)

	now := time.Now()

	fix := fixAt(path[6])
	fix.Timestamp = now
	p, applied, err := r.Update(id, fix)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 6, p.CursorIndex)

	late := fixAt(path[8])
	late.Timestamp = now.Add(-5 * time.Second)
	p, applied, err = r.Update(id, late)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 6, p.CursorIndex)

	next := fixAt(path[8])
	next.Timestamp = now.Add(5 * time.Second)
	p, applied, err = r.Update(id, next)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 8, p.CursorIndex)
}

func TestRegistry_BeginRestarts(t *testing.T) {
	path := testPath()
	r := NewRegistry(DefaultConfig())
	id := TripID("e-1", LegToPatient)

	r.Begin(id, path)
	_, _, err := r.Update(id, fixAt(path[9]))
	require.NoError(t, err)

	p := r.Begin(id, path)
	assert.Equal(t, 0, p.CursorIndex)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_EndEmergency(t *testing.T) {
	r := NewRegistry(DefaultConfig())
	r.Begin(TripID("e-1", LegToPatient), testPath())
	r.Begin(TripID("e-1", LegToFacility), testPath())
	r.Begin(TripID("e-2", LegToPatient), testPath())

	ended := r.EndEmergency("e-1")
	assert.ElementsMatch(t, []string{"e-1:to_patient", "e-1:to_facility"}, ended)
	assert.False(t, r.Active("e-1:to_patient"))
	assert.True(t, r.Active("e-2:to_patient"))

	assert.Empty(t, r.EndEmergency("e-1"))
	assert.False(t, r.End("e-1:to_patient"))
}

func TestRegistry_ConcurrentUpdatesStayMonotonic(t *testing.T) {
	path := testPath()
	r := NewRegistry(DefaultConfig())
	id := TripID("e-1", LegToPatient)
	r.Begin(id, path)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			for i := 0; i < len(path); i++ {
				_, _, err := r.Update(id, fixAt(path[(i+offset)%len(path)]))
				assert.NoError(t, err)
			}
		}(g)
	}
	wg.Wait()

	p, err := r.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, len(path)-1, p.CursorIndex)
}

func TestRegistry_ConcurrentTrips(t *testing.T) {
	path := testPath()
	r := NewRegistry(DefaultConfig())

	var wg sync.WaitGroup
	for e := 0; e < 10; e++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := TripID(string(rune('a'+n)), LegToPatient)
			r.Begin(id, path)
			_, _, err := r.Update(id, fixAt(path[n]))
			assert.NoError(t, err)
			r.End(id)
		}(e)
	}
	wg.Wait()

	assert.Equal(t, 0, r.Len())
}
