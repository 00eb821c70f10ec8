package presence

import (
	"context"
	"testing"
	"time"
)

func TestHaversineZero(t *testing.T) {
	d := Haversine(0, 0, 0, 0)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// roughly 0.786 km between these two Bangalore points
	d := Haversine(12.97, 77.59, 12.975, 77.595)
	if d < 700 || d > 900 {
		t.Fatalf("expected ~786m, got %f", d)
	}
}

func TestFirstSightingDefaults(t *testing.T) {
	m := NewMemoryIndex()
	ctx := context.Background()
	if err := m.UpsertLocation(ctx, "d1", 12.97, 77.59); err != nil {
		t.Fatal(err)
	}
	d, err := m.Get(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if !d.IsOnline || !d.IsAvailableForRide || d.IsOnRide {
		t.Fatalf("unexpected first-sighting flags: %+v", d)
	}
}

func TestQueryNearbyRadius(t *testing.T) {
	m := NewMemoryIndex()
	ctx := context.Background()
	_ = m.UpsertLocation(ctx, "near", 12.979, 77.59) // ~1km due north
	_ = m.UpsertLocation(ctx, "far", 13.024, 77.59)  // ~6km due north

	got, err := m.QueryNearby(ctx, 12.97, 77.59, 5000, Filter{OnlineOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].DriverID != "near" {
		t.Fatalf("expected [near], got %+v", got)
	}
}

func TestQueryNearbyFilters(t *testing.T) {
	m := NewMemoryIndex()
	ctx := context.Background()
	_ = m.UpsertLocation(ctx, "free", 12.97, 77.59)
	_ = m.UpsertLocation(ctx, "busy", 12.97, 77.59)
	_ = m.UpsertLocation(ctx, "offline", 12.97, 77.59)
	_ = m.SetAvailability(ctx, "busy", true, false, true)
	_ = m.SetAvailability(ctx, "offline", false, true, false)

	online, err := m.QueryNearby(ctx, 12.97, 77.59, 1000, Filter{OnlineOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(online) != 2 {
		t.Fatalf("expected 2 online drivers, got %d", len(online))
	}

	avail, err := m.QueryNearby(ctx, 12.97, 77.59, 1000, Filter{OnlineOnly: true, AvailableOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(avail) != 1 || avail[0].DriverID != "free" {
		t.Fatalf("expected [free], got %+v", avail)
	}
}

func TestAvailabilityInvariants(t *testing.T) {
	m := NewMemoryIndex()
	ctx := context.Background()

	// offline forces available off
	_ = m.SetAvailability(ctx, "d1", false, true, false)
	d, _ := m.Get(ctx, "d1")
	if d.IsAvailableForRide {
		t.Fatal("offline driver must not be available")
	}

	// on ride forces available off
	_ = m.SetAvailability(ctx, "d1", true, true, true)
	d, _ = m.Get(ctx, "d1")
	if d.IsAvailableForRide {
		t.Fatal("on-ride driver must not be available")
	}
	if !d.IsOnline || !d.IsOnRide {
		t.Fatalf("unexpected flags: %+v", d)
	}
}

func TestUpsertPreservesFlags(t *testing.T) {
	m := NewMemoryIndex()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return base })
	ctx := context.Background()

	_ = m.UpsertLocation(ctx, "d1", 12.97, 77.59)
	_ = m.SetAvailability(ctx, "d1", true, false, true)
	_ = m.UpsertLocation(ctx, "d1", 12.98, 77.60)

	d, _ := m.Get(ctx, "d1")
	if !d.IsOnRide || d.IsAvailableForRide {
		t.Fatalf("location update must not touch availability: %+v", d)
	}
	if d.Loc.Lat != 12.98 || d.Loc.Lon != 77.60 {
		t.Fatalf("location not updated: %+v", d.Loc)
	}
	if !d.LastUpdated.Equal(base) {
		t.Fatalf("expected injected clock time, got %v", d.LastUpdated)
	}
}

func TestRemove(t *testing.T) {
	m := NewMemoryIndex()
	ctx := context.Background()
	_ = m.UpsertLocation(ctx, "d1", 1, 1)
	if err := m.Remove(ctx, "d1"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get(ctx, "d1"); err == nil {
		t.Fatal("expected not found after remove")
	}
}
