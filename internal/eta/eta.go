// Package eta estimates trip distance and duration. The naive
// haversine-over-speed estimate is the default; an OSRM routing server can
// be plugged in for road-network durations.
package eta

import (
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/presence"
)

// Client is the interface a routing backend implements.
type Client interface {
	EstimateSeconds(from, to models.Coord) (float64, error)
}

type Estimate struct {
	DistanceKm  float64
	DurationMin float64
}

// Straight computes a great-circle estimate: haversine distance at a flat
// assumed speed. In prod pair it with a routing engine for durations.
func Straight(from, to models.Coord, speedMps float64) Estimate {
	if speedMps <= 0 {
		speedMps = 8.0 // ~28.8 km/h default city speed
	}
	meters := presence.Haversine(from.Lat, from.Lon, to.Lat, to.Lon)
	return Estimate{
		DistanceKm:  meters / 1000,
		DurationMin: meters / speedMps / 60,
	}
}
