package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineKm(t *testing.T) {
	tests := []struct {
		name string
		a, b Point
		want float64
		tol  float64
	}{
		{"same point", Point{21.0285, 105.8544}, Point{21.0285, 105.8544}, 0, 1e-9},
		{"one degree of latitude", Point{0, 0}, Point{1, 0}, 111.195, 0.01},
		{"hanoi lake to royal city", Point{21.028511, 105.854444}, Point{21.003117, 105.820140}, 4.54, 0.05},
		{"symmetric", Point{1, 0}, Point{0, 0}, 111.195, 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, HaversineKm(tt.a, tt.b), tt.tol)
		})
	}
}

func TestBearingDegrees(t *testing.T) {
	origin := Point{0, 0}
	assert.InDelta(t, 0, BearingDegrees(origin, Point{1, 0}), 1e-6)
	assert.InDelta(t, 90, BearingDegrees(origin, Point{0, 1}), 1e-6)
	assert.InDelta(t, 180, BearingDegrees(origin, Point{-1, 0}), 1e-6)
	assert.InDelta(t, 270, BearingDegrees(origin, Point{0, -1}), 1e-6)
}

func TestPathLengthKm(t *testing.T) {
	assert.Equal(t, 0.0, PathLengthKm(nil))
	assert.Equal(t, 0.0, PathLengthKm([]Point{{1, 1}}))

	path := []Point{{0, 0}, {1, 0}, {2, 0}}
	assert.InDelta(t, 2*111.195, PathLengthKm(path), 0.02)
}

func TestStraightLine(t *testing.T) {
	path := StraightLine(Point{0, 0}, Point{1, 2}, 4)

	assert.Len(t, path, 5)
	assert.Equal(t, Point{0, 0}, path[0])
	assert.Equal(t, Point{1, 2}, path[4])
	assert.InDelta(t, 0.5, path[2].Lat, 1e-9)
	assert.InDelta(t, 1.0, path[2].Lng, 1e-9)

	assert.Len(t, StraightLine(Point{0, 0}, Point{1, 1}, 0), 2)
}

func TestPointValid(t *testing.T) {
	assert.True(t, Point{21.0, 105.8}.Valid())
	assert.False(t, Point{91, 0}.Valid())
	assert.False(t, Point{0, -181}.Valid())
}
