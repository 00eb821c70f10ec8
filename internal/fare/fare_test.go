package fare

import (
	"context"
	"math"
	"testing"
)

func TestEstimateCar(t *testing.T) {
	e := NewTableEstimator()
	b, err := e.Estimate(context.Background(), "car", 6.0, 24.0, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	// 45 + 6*13 + 24*1.5 = 159, + service 8 = 167, + 5% tax = 175.35
	if math.Abs(b.TotalFare-175.35) > 0.01 {
		t.Fatalf("total = %f", b.TotalFare)
	}
	if b.NightMultiplier != 1 {
		t.Fatalf("day trip got night multiplier %f", b.NightMultiplier)
	}
}

func TestEstimateNightMultiplier(t *testing.T) {
	e := NewTableEstimator()
	day, _ := e.Estimate(context.Background(), "auto", 5, 20, 0, false)
	night, _ := e.Estimate(context.Background(), "auto", 5, 20, 0, true)
	if night.TotalFare <= day.TotalFare {
		t.Fatalf("night %f should exceed day %f", night.TotalFare, day.TotalFare)
	}
	if night.NightMultiplier != 1.2 {
		t.Fatalf("multiplier = %f", night.NightMultiplier)
	}
}

func TestEstimateMinFare(t *testing.T) {
	e := NewTableEstimator()
	b, err := e.Estimate(context.Background(), "bike", 0.2, 2, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if b.TotalFare != 25 {
		t.Fatalf("short trip must hit the minimum, got %f", b.TotalFare)
	}
}

func TestEstimateUnknownVehicle(t *testing.T) {
	e := NewTableEstimator()
	if _, err := e.Estimate(context.Background(), "rickshaw-deluxe", 5, 20, 0, false); err == nil {
		t.Fatal("expected error for unknown vehicle type")
	}
}
