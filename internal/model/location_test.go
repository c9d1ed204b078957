package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoordinateValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		coord Coordinate
		want  bool
	}{
		{"origin", Coordinate{Lat: 0, Lon: 0}, true},
		{"london", Coordinate{Lat: 51.5, Lon: -0.1}, true},
		{"lat upper bound", Coordinate{Lat: 90, Lon: 0}, true},
		{"lat lower bound", Coordinate{Lat: -90, Lon: 0}, true},
		{"lon upper bound", Coordinate{Lat: 0, Lon: 180}, true},
		{"lon lower bound", Coordinate{Lat: 0, Lon: -180}, true},
		{"lat too high", Coordinate{Lat: 90.1, Lon: 0}, false},
		{"lat too low", Coordinate{Lat: -90.1, Lon: 0}, false},
		{"lon too high", Coordinate{Lat: 0, Lon: 180.1}, false},
		{"lon too low", Coordinate{Lat: 0, Lon: -180.1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.coord.Valid())
		})
	}
}

func TestLocationHasPostcode(t *testing.T) {
	t.Parallel()

	assert.True(t, Location{Lat: 51.5, Lon: -0.1, NearestPostcode: "SW1A 1AA"}.HasPostcode())
	assert.False(t, Location{Lat: 0, Lon: 0}.HasPostcode())
}

func TestRunStatusValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status RunStatus
		want   string
	}{
		{RunStatusRunning, "running"},
		{RunStatusComplete, "complete"},
		{RunStatusFailed, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.status))
		})
	}
}
