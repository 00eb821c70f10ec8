package eta

import (
	"errors"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

type countingClient struct {
	calls int
	err   error
}

func (c *countingClient) EstimateSeconds(from, to models.Coord) (float64, error) {
	c.calls++
	if c.err != nil {
		return 0, c.err
	}
	return 120, nil
}

func TestCachedHitsBackendOncePerPair(t *testing.T) {
	inner := &countingClient{}
	c := NewCached(inner, time.Minute)
	a := models.Coord{Lat: 12.975, Lon: 77.595}
	b := models.Coord{Lat: 12.935, Lon: 77.625}

	for i := 0; i < 3; i++ {
		v, err := c.EstimateSeconds(a, b)
		if err != nil {
			t.Fatal(err)
		}
		if v != 120 {
			t.Fatalf("unexpected eta %v", v)
		}
	}
	if inner.calls != 1 {
		t.Fatalf("expected one backend call, got %d", inner.calls)
	}

	// a different pair is its own entry
	if _, err := c.EstimateSeconds(b, a); err != nil {
		t.Fatal(err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected second backend call, got %d", inner.calls)
	}
}

func TestCachedDoesNotCacheErrors(t *testing.T) {
	inner := &countingClient{err: errors.New("route lookup down")}
	c := NewCached(inner, time.Minute)
	a := models.Coord{Lat: 12.975, Lon: 77.595}
	b := models.Coord{Lat: 12.935, Lon: 77.625}

	if _, err := c.EstimateSeconds(a, b); err == nil {
		t.Fatal("expected error from backend")
	}
	inner.err = nil
	if _, err := c.EstimateSeconds(a, b); err != nil {
		t.Fatal(err)
	}
	if inner.calls != 2 {
		t.Fatalf("failed lookup must not be cached: %d calls", inner.calls)
	}
}

func TestCacheExpiry(t *testing.T) {
	cache := NewCache(10 * time.Millisecond)
	a := models.Coord{Lat: 1, Lon: 2}
	b := models.Coord{Lat: 3, Lon: 4}
	cache.Set(a, b, 42)
	if v, ok := cache.Get(a, b); !ok || v != 42 {
		t.Fatalf("expected fresh entry, got %v %v", v, ok)
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := cache.Get(a, b); ok {
		t.Fatal("expired entry must not be served")
	}
}
