package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/presence"
	"github.com/example/ride-dispatch/internal/ridehail"
	"github.com/example/ride-dispatch/internal/store"
)

type sentEvent struct {
	To    string
	Event string
	Data  any
}

// recNotifier records every delivery and can simulate missing connections.
type recNotifier struct {
	mu          sync.Mutex
	riders      []sentEvent
	drivers     []sentEvent
	unreachable map[string]bool
}

func (n *recNotifier) NotifyRider(id, event string, data any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.unreachable[id] {
		return ridehail.ErrNoConnection
	}
	n.riders = append(n.riders, sentEvent{To: id, Event: event, Data: data})
	return nil
}

func (n *recNotifier) NotifyDriver(id, event string, data any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.unreachable[id] {
		return ridehail.ErrNoConnection
	}
	n.drivers = append(n.drivers, sentEvent{To: id, Event: event, Data: data})
	return nil
}

func (n *recNotifier) driverEvents(id string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, e := range n.drivers {
		if e.To == id {
			out = append(out, e.Event)
		}
	}
	return out
}

func (n *recNotifier) riderEvents(id string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, e := range n.riders {
		if e.To == id {
			out = append(out, e.Event)
		}
	}
	return out
}

type recPublisher struct {
	mu      sync.Mutex
	updates []models.LocationUpdate
}

func (p *recPublisher) PublishLocation(u models.LocationUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, u)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(n *recNotifier) (*Engine, *store.MemoryStore, *presence.MemoryIndex) {
	st := store.NewMemoryStore()
	idx := presence.NewMemoryIndex()
	e := NewEngine(st, idx, n, testLogger())
	return e, st, idx
}

func trip() models.TripDetails {
	return models.TripDetails{
		Pickup:        models.Place{Lat: 12.97, Lon: 77.59, Address: "MG Road"},
		Drop:          models.Place{Lat: 12.93, Lon: 77.62, Address: "Koramangala"},
		EstimatedFare: 180,
		VehicleType:   "car",
		PaymentMethod: models.PaymentCash,
		DistanceKm:    6.2,
		DurationMin:   24,
	}
}

func TestSubmitRequestFansOut(t *testing.T) {
	n := &recNotifier{unreachable: map[string]bool{"ghost": true}}
	e, st, idx := newTestEngine(n)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e.SetClock(func() time.Time { return base })

	_ = idx.UpsertLocation(ctx, "driverA", 12.975, 77.595)
	_ = idx.UpsertLocation(ctx, "driverB", 12.971, 77.591)
	_ = idx.UpsertLocation(ctx, "ghost", 12.972, 77.592)
	_ = idx.UpsertLocation(ctx, "tooFar", 13.09, 77.59)

	req, err := e.SubmitRequest(ctx, "rider1", trip())
	if err != nil {
		t.Fatal(err)
	}
	if req.Status != models.RequestPending {
		t.Fatalf("expected pending, got %s", req.Status)
	}
	if !req.ExpiryTime.Equal(base.Add(100 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", req.ExpiryTime)
	}
	if _, err := st.GetRequest(ctx, req.ID); err != nil {
		t.Fatalf("request not persisted: %v", err)
	}

	holders := e.Offers.Holders(req.ID)
	if len(holders) != 2 {
		t.Fatalf("expected 2 offer holders, got %v", holders)
	}
	for _, id := range []string{"driverA", "driverB"} {
		evs := n.driverEvents(id)
		if len(evs) != 1 || evs[0] != "getNewRideRequest" {
			t.Fatalf("driver %s events: %v", id, evs)
		}
	}
	if evs := n.driverEvents("tooFar"); len(evs) != 0 {
		t.Fatalf("out-of-radius driver got offered: %v", evs)
	}
	if evs := n.driverEvents("ghost"); len(evs) != 0 {
		t.Fatalf("unreachable driver recorded events: %v", evs)
	}
}

func TestSubmitRequestNoDriversStillPersists(t *testing.T) {
	n := &recNotifier{}
	e, st, _ := newTestEngine(n)
	req, err := e.SubmitRequest(context.Background(), "rider1", trip())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.GetRequest(context.Background(), req.ID); err != nil {
		t.Fatalf("request must persist with zero candidates: %v", err)
	}
}

func TestSubmitRequestValidation(t *testing.T) {
	n := &recNotifier{}
	e, _, _ := newTestEngine(n)
	bad := trip()
	bad.VehicleType = ""
	if _, err := e.SubmitRequest(context.Background(), "rider1", bad); !errors.Is(err, ridehail.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := e.SubmitRequest(context.Background(), "", trip()); !errors.Is(err, ridehail.ErrValidation) {
		t.Fatalf("expected validation error for empty rider, got %v", err)
	}
	unknown := trip()
	unknown.PaymentMethod = "barter"
	if _, err := e.SubmitRequest(context.Background(), "rider1", unknown); !errors.Is(err, ridehail.ErrValidation) {
		t.Fatalf("expected validation error for payment method, got %v", err)
	}
}

func TestAcceptOfferWinsAndStandsDownOthers(t *testing.T) {
	n := &recNotifier{}
	e, st, idx := newTestEngine(n)
	ctx := context.Background()

	_ = idx.UpsertLocation(ctx, "driverA", 12.975, 77.595)
	_ = idx.UpsertLocation(ctx, "driverB", 12.971, 77.591)

	req, err := e.SubmitRequest(ctx, "rider1", trip())
	if err != nil {
		t.Fatal(err)
	}

	tb, err := e.AcceptOffer(ctx, "driverA", req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if tb.Status != models.BookingAccepted || tb.DriverID != "driverA" {
		t.Fatalf("unexpected booking %+v", tb)
	}
	if len(tb.OTP) != 4 {
		t.Fatalf("expected 4-digit otp, got %q", tb.OTP)
	}

	if _, err := st.GetRequest(ctx, req.ID); !errors.Is(err, ridehail.ErrNotFound) {
		t.Fatal("request must be consumed by accept")
	}
	if evs := n.riderEvents("rider1"); len(evs) != 1 || evs[0] != "rideAccepted" {
		t.Fatalf("rider events: %v", evs)
	}
	evsB := n.driverEvents("driverB")
	if len(evsB) != 2 || evsB[1] != "removeRideRequest" {
		t.Fatalf("losing driver events: %v", evsB)
	}
	for _, ev := range n.driverEvents("driverA") {
		if ev == "removeRideRequest" {
			t.Fatal("winner must not receive a stale-offer notice")
		}
	}

	d, err := idx.Get(ctx, "driverA")
	if err != nil {
		t.Fatal(err)
	}
	if !d.IsOnRide || d.IsAvailableForRide {
		t.Fatalf("winner presence not updated: %+v", d)
	}
	if len(e.Offers.Holders(req.ID)) != 0 {
		t.Fatal("offer set must be cleared after accept")
	}
}

func TestAcceptOfferLoserGetsConflict(t *testing.T) {
	n := &recNotifier{}
	e, _, idx := newTestEngine(n)
	ctx := context.Background()
	_ = idx.UpsertLocation(ctx, "driverA", 12.975, 77.595)
	_ = idx.UpsertLocation(ctx, "driverB", 12.971, 77.591)

	req, _ := e.SubmitRequest(ctx, "rider1", trip())
	if _, err := e.AcceptOffer(ctx, "driverA", req.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AcceptOffer(ctx, "driverB", req.ID); !errors.Is(err, ridehail.ErrConflict) {
		t.Fatalf("expected conflict for second accept, got %v", err)
	}
}

func TestRejectOfferLeavesRequestPending(t *testing.T) {
	n := &recNotifier{}
	e, st, idx := newTestEngine(n)
	ctx := context.Background()
	_ = idx.UpsertLocation(ctx, "driverA", 12.975, 77.595)
	_ = idx.UpsertLocation(ctx, "driverB", 12.971, 77.591)
	_ = idx.UpsertLocation(ctx, "driverC", 12.973, 77.593)

	req, _ := e.SubmitRequest(ctx, "rider1", trip())
	for _, d := range []string{"driverA", "driverB", "driverC"} {
		if err := e.RejectOffer(ctx, d, req.ID); err != nil {
			t.Fatal(err)
		}
	}

	// every driver rejected, the request still waits for the sweeper
	got, err := st.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.RequestPending {
		t.Fatalf("expected pending, got %s", got.Status)
	}
	if len(e.Offers.Holders(req.ID)) != 0 {
		t.Fatal("offer set should be empty after all rejects")
	}
}

func TestCancelRequest(t *testing.T) {
	n := &recNotifier{}
	e, st, idx := newTestEngine(n)
	ctx := context.Background()
	_ = idx.UpsertLocation(ctx, "driverA", 12.975, 77.595)

	req, _ := e.SubmitRequest(ctx, "rider1", trip())

	if _, err := e.CancelRequest(ctx, "rider2", req.ID, "nope"); !errors.Is(err, ridehail.ErrForbidden) {
		t.Fatalf("expected forbidden for non-owner, got %v", err)
	}

	b, err := e.CancelRequest(ctx, "rider1", req.ID, "changed plans")
	if err != nil {
		t.Fatal(err)
	}
	if b.Status != models.BookingCanceled || b.CanceledBy != models.RoleRider {
		t.Fatalf("unexpected archive %+v", b)
	}
	if _, err := st.GetBooking(ctx, req.ID); err != nil {
		t.Fatalf("canceled request must be archived: %v", err)
	}
	evs := n.driverEvents("driverA")
	if evs[len(evs)-1] != "removeRideRequest" {
		t.Fatalf("holding driver not stood down: %v", evs)
	}
}

func TestCancelRequestAfterAcceptIsConflict(t *testing.T) {
	n := &recNotifier{}
	e, _, idx := newTestEngine(n)
	ctx := context.Background()
	_ = idx.UpsertLocation(ctx, "driverA", 12.975, 77.595)

	req, _ := e.SubmitRequest(ctx, "rider1", trip())
	if _, err := e.AcceptOffer(ctx, "driverA", req.ID); err != nil {
		t.Fatal(err)
	}

	// the pending row is gone, but the ride is live; cancel must report
	// Conflict rather than NotFound
	if _, err := e.CancelRequest(ctx, "rider1", req.ID, "late"); !errors.Is(err, ridehail.ErrConflict) {
		t.Fatalf("cancel of an accepted request: want Conflict, got %v", err)
	}
	if _, err := e.CancelRequest(ctx, "rider1", "ghost", "late"); !errors.Is(err, ridehail.ErrNotFound) {
		t.Fatalf("cancel of an unknown request: want NotFound, got %v", err)
	}
}

func TestUpdateDriverLocationRelaysToRider(t *testing.T) {
	n := &recNotifier{}
	e, _, idx := newTestEngine(n)
	pub := &recPublisher{}
	e.Publisher = pub
	ctx := context.Background()
	_ = idx.UpsertLocation(ctx, "driverA", 12.975, 77.595)

	req, _ := e.SubmitRequest(ctx, "rider1", trip())
	if _, err := e.AcceptOffer(ctx, "driverA", req.ID); err != nil {
		t.Fatal(err)
	}

	if err := e.UpdateDriverLocation(ctx, "driverA", 12.973, 77.592); err != nil {
		t.Fatal(err)
	}
	evs := n.riderEvents("rider1")
	if evs[len(evs)-1] != "getDriverLocationForActiveRide" {
		t.Fatalf("rider events: %v", evs)
	}
	if len(pub.updates) != 1 || pub.updates[0].DriverID != "driverA" {
		t.Fatalf("publisher updates: %+v", pub.updates)
	}
}

func TestNearbyDriversExcludesBusy(t *testing.T) {
	n := &recNotifier{}
	e, _, idx := newTestEngine(n)
	ctx := context.Background()
	_ = idx.UpsertLocation(ctx, "free", 12.975, 77.595)
	_ = idx.UpsertLocation(ctx, "busy", 12.971, 77.591)
	_ = idx.SetAvailability(ctx, "busy", true, false, true)

	got, err := e.NearbyDrivers(ctx, 12.97, 77.59, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].DriverID != "free" {
		t.Fatalf("expected [free], got %+v", got)
	}
}

func TestSetDriverAvailabilityPreservesOnRide(t *testing.T) {
	n := &recNotifier{}
	e, _, idx := newTestEngine(n)
	ctx := context.Background()
	_ = idx.UpsertLocation(ctx, "driverA", 12.975, 77.595)
	_ = idx.SetAvailability(ctx, "driverA", true, false, true)

	if err := e.SetDriverAvailability(ctx, "driverA", true, true); err != nil {
		t.Fatal(err)
	}
	d, _ := idx.Get(ctx, "driverA")
	if !d.IsOnRide {
		t.Fatal("availability toggle must not clear the on-ride flag")
	}
	if d.IsAvailableForRide {
		t.Fatal("on-ride driver cannot become available")
	}
}

func TestOfferBoard(t *testing.T) {
	b := NewOfferBoard()
	b.Create("r1")
	b.Add("r1", "d1")
	b.Add("r1", "d2")
	b.Add("unknown", "d9") // no set, dropped

	b.Remove("r1", "d1")
	if got := b.Holders("r1"); len(got) != 1 || got[0] != "d2" {
		t.Fatalf("holders after remove: %v", got)
	}
	b.Remove("r1", "d2")
	if got := b.Holders("r1"); got != nil {
		t.Fatalf("emptied set must be deleted, got %v", got)
	}

	b.Create("r2")
	b.Add("r2", "d1")
	cleared := b.Clear("r2")
	if len(cleared) != 1 || cleared[0] != "d1" {
		t.Fatalf("clear returned %v", cleared)
	}
	if b.Clear("r2") != nil {
		t.Fatal("second clear must return nil")
	}
}
