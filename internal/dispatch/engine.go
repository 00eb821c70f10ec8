// Package dispatch runs the request -> offer -> accept/reject protocol:
// fan a new request out to nearby online drivers, let exactly one accept,
// tell everyone else to stand down.
package dispatch

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-dispatch/internal/eta"
	"github.com/example/ride-dispatch/internal/fare"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/payments"
	"github.com/example/ride-dispatch/internal/presence"
	"github.com/example/ride-dispatch/internal/ridehail"
	"github.com/example/ride-dispatch/internal/store"
)

// LocationPublisher is the optional ingest side-channel for location
// updates (kafka in production).
type LocationPublisher interface {
	PublishLocation(u models.LocationUpdate) error
}

type Engine struct {
	Store    store.RideStore
	Presence presence.Index
	Notifier notify.Notifier
	Logger   *slog.Logger

	// optional collaborators
	Fare      fare.Estimator
	Payments  payments.Gateway
	Publisher LocationPublisher
	ETAClient eta.Client

	DispatchRadiusMeters float64
	NearbyRadiusMeters   float64
	RequestTTL           time.Duration
	DefaultSpeedMps      float64

	Offers *OfferBoard

	now   func() time.Time
	newID func() string
}

func NewEngine(st store.RideStore, idx presence.Index, n notify.Notifier, logger *slog.Logger) *Engine {
	return &Engine{
		Store:                st,
		Presence:             idx,
		Notifier:             n,
		Logger:               logger,
		DispatchRadiusMeters: 5000,
		NearbyRadiusMeters:   10000,
		RequestTTL:           100 * time.Minute,
		DefaultSpeedMps:      10,
		Offers:               NewOfferBoard(),
		now:                  time.Now,
		newID:                uuid.NewString,
	}
}

// SetClock overrides the time source for tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// OfferPayload is what each candidate driver receives.
type OfferPayload struct {
	RiderID string              `json:"rider_id"`
	Lat     float64             `json:"lat"`
	Lon     float64             `json:"lon"`
	Request *models.RideRequest `json:"request"`
}

// AcceptedPayload is what the rider receives when a driver wins.
type AcceptedPayload struct {
	DriverID      string `json:"driver_id"`
	RideID        string `json:"ride_id"`
	TempBookingID string `json:"temp_booking_id"`
}

type RemovedPayload struct {
	RideID string `json:"ride_id"`
}

// SubmitRequest persists a pending request and fans the offer out to every
// online driver within the dispatch radius. Candidates without a live
// connection are skipped silently; with zero reachable candidates the
// request still persists and waits for the sweeper. The rider's own
// connection is never checked; delivery back to the rider is best-effort.
func (e *Engine) SubmitRequest(ctx context.Context, riderID string, trip models.TripDetails) (*models.RideRequest, error) {
	if err := validateTrip(riderID, trip); err != nil {
		return nil, err
	}
	e.fillTrip(ctx, &trip)

	now := e.now()
	req := &models.RideRequest{
		ID:            e.newID(),
		RiderID:       riderID,
		Pickup:        trip.Pickup,
		Drop:          trip.Drop,
		EstimatedFare: trip.EstimatedFare,
		VehicleType:   trip.VehicleType,
		PaymentMethod: trip.PaymentMethod,
		Status:        models.RequestPending,
		DistanceKm:    trip.DistanceKm,
		DurationMin:   trip.DurationMin,
		Note:          trip.Note,
		RequestTime:   now,
		ExpiryTime:    now.Add(e.RequestTTL),
	}
	if err := e.Store.CreateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	observability.RequestsSubmitted.Inc()

	candidates, err := e.Presence.QueryNearby(ctx, trip.Pickup.Lat, trip.Pickup.Lon, e.DispatchRadiusMeters, presence.Filter{OnlineOnly: true})
	if err != nil {
		// the request is already durable; a presence outage just means
		// nobody gets offered until the rider retries or the sweep fires
		e.Logger.Error("nearby query failed", "ride_id", req.ID, "error", err)
		candidates = nil
	}

	e.Offers.Create(req.ID)
	payload := OfferPayload{RiderID: riderID, Lat: trip.Pickup.Lat, Lon: trip.Pickup.Lon, Request: req}
	offered := 0
	for _, d := range candidates {
		if err := e.Notifier.NotifyDriver(d.DriverID, notify.EventNewRideRequest, payload); err != nil {
			continue
		}
		e.Offers.Add(req.ID, d.DriverID)
		offered++
	}
	observability.OffersFannedOut.Add(float64(offered))
	e.Logger.Info("ride request dispatched", "ride_id", req.ID, "rider_id", riderID, "candidates", len(candidates), "offered", offered)
	return req, nil
}

// AcceptOffer resolves the accept race. The store's conditional consume is
// the linearization point: exactly one driver can move the request to a
// TempBooking, every later attempt gets Conflict.
func (e *Engine) AcceptOffer(ctx context.Context, driverID, requestID string) (*models.TempBooking, error) {
	tb, err := e.Store.AcceptRequest(ctx, requestID, driverID, e.newID(), newOTP(), e.now())
	if err != nil {
		if errors.Is(err, ridehail.ErrConflict) {
			observability.AcceptConflicts.Inc()
		}
		return nil, err
	}
	observability.RequestsAccepted.Inc()

	if err := e.Presence.SetAvailability(ctx, driverID, true, false, true); err != nil {
		e.Logger.Warn("presence update failed", "driver_id", driverID, "error", err)
	}

	if e.Payments != nil && tb.PaymentMethod == models.PaymentOnline {
		ref, err := e.Payments.Hold(ctx, toMinorUnits(tb.Fare), "inr", "")
		if err != nil {
			e.Logger.Error("payment hold failed", "booking_id", tb.ID, "error", err)
		} else if err := e.Store.SetBookingPaymentRef(ctx, tb.ID, ref); err != nil {
			e.Logger.Error("payment ref persist failed", "booking_id", tb.ID, "error", err)
		} else {
			tb.PaymentRef = ref
		}
	}

	// rider first, then stand down the losing drivers
	_ = e.Notifier.NotifyRider(tb.RiderID, notify.EventRideAccepted, AcceptedPayload{
		DriverID: driverID, RideID: requestID, TempBookingID: tb.ID,
	})
	for _, other := range e.Offers.Clear(requestID) {
		if other == driverID {
			continue
		}
		_ = e.Notifier.NotifyDriver(other, notify.EventRemoveRideRequest, RemovedPayload{RideID: requestID})
	}
	e.Logger.Info("ride accepted", "ride_id", requestID, "booking_id", tb.ID, "driver_id", driverID)
	return tb, nil
}

// RejectOffer removes the driver from the offer set. The request itself is
// untouched: even a fully rejected request stays pending until it expires
// or is canceled.
func (e *Engine) RejectOffer(ctx context.Context, driverID, requestID string) error {
	e.Offers.Remove(requestID, driverID)
	_ = e.Notifier.NotifyDriver(driverID, notify.EventRemoveRideRequest, RemovedPayload{RideID: requestID})
	e.Logger.Info("ride rejected", "ride_id", requestID, "driver_id", driverID)
	return nil
}

// CancelRequest lets the owning rider withdraw a still-pending request.
// The canceled request is archived as a Booking (unlike expiry, which
// deletes silently). A request a driver already won yields Conflict, not
// NotFound, even though its pending row is gone.
func (e *Engine) CancelRequest(ctx context.Context, riderID, requestID, reason string) (*models.Booking, error) {
	req, err := e.Store.GetRequest(ctx, requestID)
	switch {
	case err == nil:
		if req.RiderID != riderID {
			return nil, ridehail.ErrForbidden
		}
	case errors.Is(err, ridehail.ErrNotFound):
		// the row may have been consumed by an accept; ArchiveRequest
		// tells that apart from a request that never existed
	default:
		return nil, err
	}
	b, err := e.Store.ArchiveRequest(ctx, requestID, e.now(), models.RoleRider, reason)
	if err != nil {
		return nil, err
	}
	observability.RequestsCanceled.Inc()
	for _, driverID := range e.Offers.Clear(requestID) {
		_ = e.Notifier.NotifyDriver(driverID, notify.EventRemoveRideRequest, RemovedPayload{RideID: requestID})
	}
	e.Logger.Info("ride request canceled", "ride_id", requestID, "rider_id", riderID)
	return b, nil
}

// UpdateDriverLocation feeds the presence index, publishes to the ingest
// pipeline when configured, and relays the position to the rider of the
// driver's active booking.
func (e *Engine) UpdateDriverLocation(ctx context.Context, driverID string, lat, lon float64) error {
	if driverID == "" {
		return fmt.Errorf("%w: driver id required", ridehail.ErrValidation)
	}
	if err := e.Presence.UpsertLocation(ctx, driverID, lat, lon); err != nil {
		return err
	}
	if e.Publisher != nil {
		if err := e.Publisher.PublishLocation(models.LocationUpdate{DriverID: driverID, Lat: lat, Lon: lon, At: e.now()}); err != nil {
			e.Logger.Warn("location publish failed", "driver_id", driverID, "error", err)
		}
	}
	if tb, err := e.Store.ActiveBookingForDriver(ctx, driverID); err == nil {
		_ = e.Notifier.NotifyRider(tb.RiderID, notify.EventDriverLocation, map[string]any{
			"ride_id":   tb.ID,
			"driver_id": driverID,
			"lat":       lat,
			"lon":       lon,
		})
	}
	return nil
}

// NearbyDrivers is the generic rider-facing query: wider default radius
// than dispatch, and only drivers actually free to take a ride.
func (e *Engine) NearbyDrivers(ctx context.Context, lat, lon, radiusMeters float64) ([]models.DriverPresence, error) {
	if radiusMeters <= 0 {
		radiusMeters = e.NearbyRadiusMeters
	}
	return e.Presence.QueryNearby(ctx, lat, lon, radiusMeters, presence.Filter{OnlineOnly: true, AvailableOnly: true})
}

// SetDriverAvailability flips the online/available flags while preserving
// the on-ride state, which only accept/complete/cancel may change.
func (e *Engine) SetDriverAvailability(ctx context.Context, driverID string, online, available bool) error {
	onRide := false
	if cur, err := e.Presence.Get(ctx, driverID); err == nil {
		onRide = cur.IsOnRide
	}
	return e.Presence.SetAvailability(ctx, driverID, online, available, onRide)
}

func validateTrip(riderID string, trip models.TripDetails) error {
	switch {
	case riderID == "":
		return fmt.Errorf("%w: rider id required", ridehail.ErrValidation)
	case trip.Pickup.Lat == 0 && trip.Pickup.Lon == 0:
		return fmt.Errorf("%w: pickup location required", ridehail.ErrValidation)
	case trip.Drop.Lat == 0 && trip.Drop.Lon == 0:
		return fmt.Errorf("%w: drop location required", ridehail.ErrValidation)
	case trip.VehicleType == "":
		return fmt.Errorf("%w: vehicle type required", ridehail.ErrValidation)
	}
	switch trip.PaymentMethod {
	case models.PaymentCash, models.PaymentWallet, models.PaymentOnline:
	default:
		return fmt.Errorf("%w: unknown payment method %q", ridehail.ErrValidation, trip.PaymentMethod)
	}
	return nil
}

// fillTrip completes distance, duration and fare when the client left them
// out. Estimation failures are non-fatal; the request just carries zeros.
func (e *Engine) fillTrip(ctx context.Context, trip *models.TripDetails) {
	if trip.DistanceKm == 0 || trip.DurationMin == 0 {
		est := eta.Straight(trip.Pickup.Coord(), trip.Drop.Coord(), e.DefaultSpeedMps)
		if e.ETAClient != nil {
			if secs, err := e.ETAClient.EstimateSeconds(trip.Pickup.Coord(), trip.Drop.Coord()); err == nil {
				est.DurationMin = secs / 60
			}
		}
		if trip.DistanceKm == 0 {
			trip.DistanceKm = est.DistanceKm
		}
		if trip.DurationMin == 0 {
			trip.DurationMin = est.DurationMin
		}
	}
	if trip.EstimatedFare == 0 && e.Fare != nil {
		if b, err := e.Fare.Estimate(ctx, trip.VehicleType, trip.DistanceKm, trip.DurationMin, 0, isNight(e.now())); err == nil {
			trip.EstimatedFare = b.TotalFare
		} else {
			e.Logger.Warn("fare estimate failed", "vehicle_type", trip.VehicleType, "error", err)
		}
	}
}

// isNight reports whether the 22:00-06:00 surcharge window applies. The
// hour is read in the process timezone; deployments pin TZ to the city
// the service dispatches for.
func isNight(t time.Time) bool {
	h := t.Hour()
	return h >= 22 || h < 6
}

// newOTP returns the 4-digit pickup code in [1000, 9999].
func newOTP() string {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		// crypto/rand failing means the process is in a bad way; a
		// constant is still a valid OTP
		return "1000"
	}
	return strconv.FormatInt(1000+n.Int64(), 10)
}

func toMinorUnits(fare float64) int64 {
	return int64(fare*100 + 0.5)
}
