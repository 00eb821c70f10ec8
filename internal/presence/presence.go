// Package presence tracks driver location and availability and answers
// radius queries for the dispatch engine.
package presence

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/ridehail"
)

// Filter narrows a nearby query. The dispatch fan-out wants every online
// driver; the generic nearby-drivers query wants only drivers who are free
// to take a ride.
type Filter struct {
	OnlineOnly    bool
	AvailableOnly bool
}

// Index is the minimal surface the dispatch engine and handlers need.
type Index interface {
	UpsertLocation(ctx context.Context, driverID string, lat, lon float64) error
	SetAvailability(ctx context.Context, driverID string, online, available, onRide bool) error
	Get(ctx context.Context, driverID string) (models.DriverPresence, error)
	// QueryNearby returns all drivers within radiusMeters that pass the
	// filter. Order is unspecified; callers must not rely on it.
	QueryNearby(ctx context.Context, lat, lon, radiusMeters float64, f Filter) ([]models.DriverPresence, error)
	Remove(ctx context.Context, driverID string) error
}

// MemoryIndex is a mutex-guarded map scan. Fine for a single process; the
// redis index is the durable alternative.
type MemoryIndex struct {
	mu      sync.RWMutex
	drivers map[string]models.DriverPresence
	now     func() time.Time
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{drivers: make(map[string]models.DriverPresence), now: time.Now}
}

// SetClock overrides the timestamp source for tests.
func (m *MemoryIndex) SetClock(now func() time.Time) { m.now = now }

func (m *MemoryIndex) UpsertLocation(_ context.Context, driverID string, lat, lon float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[driverID]
	if !ok {
		// first sighting: online and available until told otherwise
		d = models.DriverPresence{DriverID: driverID, IsOnline: true, IsAvailableForRide: true}
	}
	d.Loc = models.Coord{Lat: lat, Lon: lon}
	d.LastUpdated = m.now()
	m.drivers[driverID] = d
	return nil
}

func (m *MemoryIndex) SetAvailability(_ context.Context, driverID string, online, available, onRide bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[driverID]
	if !ok {
		d = models.DriverPresence{DriverID: driverID}
	}
	d.IsOnline, d.IsAvailableForRide, d.IsOnRide = normalize(online, available, onRide)
	d.LastUpdated = m.now()
	m.drivers[driverID] = d
	return nil
}

func (m *MemoryIndex) Get(_ context.Context, driverID string) (models.DriverPresence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[driverID]
	if !ok {
		return models.DriverPresence{}, ridehail.ErrNotFound
	}
	return d, nil
}

func (m *MemoryIndex) QueryNearby(_ context.Context, lat, lon, radiusMeters float64, f Filter) ([]models.DriverPresence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.DriverPresence
	for _, d := range m.drivers {
		if !matches(d, f) {
			continue
		}
		if Haversine(lat, lon, d.Loc.Lat, d.Loc.Lon) > radiusMeters {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (m *MemoryIndex) Remove(_ context.Context, driverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drivers, driverID)
	return nil
}

func matches(d models.DriverPresence, f Filter) bool {
	if f.OnlineOnly && !d.IsOnline {
		return false
	}
	if f.AvailableOnly && (!d.IsAvailableForRide || d.IsOnRide) {
		return false
	}
	return true
}

// normalize enforces the presence invariants: a driver cannot be available
// while offline, and cannot be available while on a ride.
func normalize(online, available, onRide bool) (bool, bool, bool) {
	if !online {
		available = false
	}
	if onRide {
		available = false
	}
	return online, available, onRide
}

// Haversine distance in meters.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
