package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DispatchRadiusMeters != 5000 || cfg.NearbyRadiusMeters != 10000 {
		t.Fatalf("unexpected radii %f/%f", cfg.DispatchRadiusMeters, cfg.NearbyRadiusMeters)
	}
	if cfg.RequestTTL != 100*time.Minute {
		t.Fatalf("unexpected ttl %v", cfg.RequestTTL)
	}
	if cfg.SweepInterval != 60*time.Second {
		t.Fatalf("unexpected sweep interval %v", cfg.SweepInterval)
	}
	if !cfg.AllowStartFromArrived {
		t.Fatal("start-from-arrived should default on")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DISPATCH_RADIUS_METERS", "2500")
	t.Setenv("REQUEST_TTL", "30m")
	t.Setenv("ALLOW_START_FROM_ARRIVED", "false")
	t.Setenv("KAFKA_BROKERS", "b1:9092, b2:9092,")

	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DispatchRadiusMeters != 2500 {
		t.Fatalf("radius = %f", cfg.DispatchRadiusMeters)
	}
	if cfg.RequestTTL != 30*time.Minute {
		t.Fatalf("ttl = %v", cfg.RequestTTL)
	}
	if cfg.AllowStartFromArrived {
		t.Fatal("override not applied")
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "b2:9092" {
		t.Fatalf("brokers = %v", cfg.KafkaBrokers)
	}
}

func TestInvalidValuesJoined(t *testing.T) {
	t.Setenv("REQUEST_TTL", "not-a-duration")
	t.Setenv("DISPATCH_RADIUS_METERS", "wide")
	if _, err := LoadServerConfig(); err == nil {
		t.Fatal("expected joined parse errors")
	}
}
