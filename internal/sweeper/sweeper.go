// Package sweeper reaps pending requests whose expiry time has passed.
// Correctness rides on the expiryTime comparison, not the tick interval.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/store"
)

type Sweeper struct {
	Store    store.RideStore
	Offers   *dispatch.OfferBoard
	Notifier notify.Notifier
	Logger   *slog.Logger
	Interval time.Duration

	now func() time.Time
}

func New(st store.RideStore, offers *dispatch.OfferBoard, n notify.Notifier, logger *slog.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{Store: st, Offers: offers, Notifier: n, Logger: logger, Interval: interval, now: time.Now}
}

// SetClock overrides the time source for tests.
func (s *Sweeper) SetClock(now func() time.Time) { s.now = now }

// Run ticks until the context is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reaped, err := s.SweepOnce(ctx)
			if err != nil {
				s.Logger.Error("expiry sweep failed", "error", err)
				continue
			}
			if reaped > 0 {
				s.Logger.Info("expiry sweep", "reaped", reaped)
			}
		}
	}
}

// SweepOnce reaps every request past its expiry: notify drivers still
// holding the offer, discard the set, delete the request. No Booking is
// archived for an expired request. A failure on one request never aborts
// the rest of the sweep.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	start := s.now()
	defer func() {
		observability.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	expired, err := s.Store.ExpiredRequests(ctx, start)
	if err != nil {
		return 0, err
	}
	reaped := 0
	for _, req := range expired {
		for _, driverID := range s.Offers.Holders(req.ID) {
			_ = s.Notifier.NotifyDriver(driverID, notify.EventRemoveRideRequest, dispatch.RemovedPayload{RideID: req.ID})
		}
		s.Offers.Clear(req.ID)
		if err := s.Store.DeleteRequest(ctx, req.ID); err != nil {
			s.Logger.Error("expired request delete failed", "ride_id", req.ID, "error", err)
			continue
		}
		observability.RequestsExpired.Inc()
		reaped++
	}
	return reaped, nil
}
