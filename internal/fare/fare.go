// Package fare is the narrow surface the dispatch core uses to price a
// trip. Rate management itself lives outside the core; this package ships
// a static table implementation good enough for estimates.
package fare

import (
	"context"
	"fmt"
)

// Breakdown itemizes an estimate the way clients display it.
type Breakdown struct {
	BaseFare        float64 `json:"base_fare"`
	DistanceCharge  float64 `json:"distance_charge"`
	TimeCharge      float64 `json:"time_charge"`
	WaitingCharge   float64 `json:"waiting_charge"`
	SurgeMultiplier float64 `json:"surge_multiplier"`
	NightMultiplier float64 `json:"night_multiplier"`
	TollCharges     float64 `json:"toll_charges"`
	ServiceFee      float64 `json:"service_fee"`
	Tax             float64 `json:"tax"`
	TotalFare       float64 `json:"total_fare"`
}

type Estimator interface {
	Estimate(ctx context.Context, vehicleType string, distanceKm, durationMin, waitingMin float64, isNight bool) (Breakdown, error)
}

// Rate is the per-vehicle-type tariff.
type Rate struct {
	BaseFare            float64
	CostPerKm           float64
	CostPerMin          float64
	WaitingChargePerMin float64
	NightFareMultiplier float64
	TollCharges         float64
	ServiceFee          float64
	TaxPercentage       float64
	MinFare             float64
}

// TableEstimator prices against a fixed rate table with a flat surge
// multiplier hook.
type TableEstimator struct {
	Rates map[string]Rate
	Surge float64
}

func NewTableEstimator() *TableEstimator {
	return &TableEstimator{
		Rates: map[string]Rate{
			"bike": {BaseFare: 15, CostPerKm: 6, CostPerMin: 1, WaitingChargePerMin: 1, NightFareMultiplier: 1.15, ServiceFee: 3, TaxPercentage: 5, MinFare: 25},
			"auto": {BaseFare: 25, CostPerKm: 9, CostPerMin: 1.2, WaitingChargePerMin: 1.5, NightFareMultiplier: 1.2, ServiceFee: 5, TaxPercentage: 5, MinFare: 40},
			"car":  {BaseFare: 45, CostPerKm: 13, CostPerMin: 1.5, WaitingChargePerMin: 2, NightFareMultiplier: 1.25, ServiceFee: 8, TaxPercentage: 5, MinFare: 80},
		},
		Surge: 1.0,
	}
}

func (t *TableEstimator) Estimate(_ context.Context, vehicleType string, distanceKm, durationMin, waitingMin float64, isNight bool) (Breakdown, error) {
	rate, ok := t.Rates[vehicleType]
	if !ok {
		return Breakdown{}, fmt.Errorf("no fare data for vehicle type %q", vehicleType)
	}
	surge := t.Surge
	if surge <= 0 {
		surge = 1.0
	}

	b := Breakdown{
		BaseFare:        rate.BaseFare,
		DistanceCharge:  distanceKm * rate.CostPerKm,
		TimeCharge:      durationMin * rate.CostPerMin,
		SurgeMultiplier: surge,
		NightMultiplier: 1,
		TollCharges:     rate.TollCharges,
		ServiceFee:      rate.ServiceFee,
	}
	total := b.BaseFare + b.DistanceCharge + b.TimeCharge
	if waitingMin > 0 {
		b.WaitingCharge = waitingMin * rate.WaitingChargePerMin
		total += b.WaitingCharge
	}
	if isNight {
		b.NightMultiplier = rate.NightFareMultiplier
		total *= rate.NightFareMultiplier
	}
	total *= surge
	total += rate.TollCharges + rate.ServiceFee
	b.Tax = total * rate.TaxPercentage / 100
	total += b.Tax
	if total < rate.MinFare {
		total = rate.MinFare
	}
	b.TotalFare = total
	return b, nil
}
