// Package lifecycle drives an accepted TempBooking through
// arrived/started/completed, or down the cancel branch, archiving the
// terminal snapshot and releasing the driver either way.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/payments"
	"github.com/example/ride-dispatch/internal/presence"
	"github.com/example/ride-dispatch/internal/ridehail"
	"github.com/example/ride-dispatch/internal/store"
)

type Controller struct {
	Store    store.RideStore
	Presence presence.Index
	Notifier notify.Notifier
	Logger   *slog.Logger

	// Payments is optional; only online-payment rides carry a ref.
	Payments payments.Gateway

	// AllowStartFromArrived admits started from arrived as well as from
	// accepted. Off, only accepted bookings can start.
	AllowStartFromArrived bool

	now func() time.Time
}

func NewController(st store.RideStore, idx presence.Index, n notify.Notifier, logger *slog.Logger) *Controller {
	return &Controller{
		Store:                 st,
		Presence:              idx,
		Notifier:              n,
		Logger:                logger,
		AllowStartFromArrived: true,
		now:                   time.Now,
	}
}

// SetClock overrides the time source for tests.
func (c *Controller) SetClock(now func() time.Time) { c.now = now }

// MarkArrived records the driver at the pickup point and tells the rider.
func (c *Controller) MarkArrived(ctx context.Context, bookingID, driverID string) (*models.TempBooking, error) {
	if err := c.guardDriver(ctx, bookingID, driverID); err != nil {
		return nil, err
	}
	tb, err := c.Store.TransitionBooking(ctx, bookingID,
		[]models.BookingStatus{models.BookingAccepted}, models.BookingArrived, c.now())
	if err != nil {
		return nil, err
	}
	_ = c.Notifier.NotifyRider(tb.RiderID, notify.EventDriverArrived, map[string]any{
		"temp_booking_id": tb.ID,
		"driver_id":       driverID,
		"message":         "Your driver has arrived at the pickup location.",
	})
	return tb, nil
}

// StartRide verifies the pickup OTP and moves the booking to started.
func (c *Controller) StartRide(ctx context.Context, bookingID, driverID, otp string) (*models.TempBooking, error) {
	tb, err := c.Store.GetTempBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if tb.DriverID != driverID {
		return nil, ridehail.ErrForbidden
	}
	from := []models.BookingStatus{models.BookingAccepted}
	if c.AllowStartFromArrived {
		from = append(from, models.BookingArrived)
	}
	if !statusIn(tb.Status, from) {
		return nil, fmt.Errorf("%w: ride cannot be started from %q", ridehail.ErrConflict, tb.Status)
	}
	if tb.OTP != otp {
		return nil, ridehail.ErrInvalidOTP
	}
	tb, err = c.Store.TransitionBooking(ctx, bookingID, from, models.BookingStarted, c.now())
	if err != nil {
		return nil, err
	}
	_ = c.Notifier.NotifyRider(tb.RiderID, notify.EventRideStarted, map[string]any{
		"temp_booking_id": tb.ID,
		"pickup_time":     tb.PickupTime,
	})
	c.Logger.Info("ride started", "booking_id", tb.ID, "driver_id", driverID)
	return tb, nil
}

// CompleteRide ends a started ride: archive the Booking, capture any held
// payment, free the driver, tell the rider the fare.
func (c *Controller) CompleteRide(ctx context.Context, bookingID, driverID string) (*models.Booking, error) {
	if err := c.guardDriver(ctx, bookingID, driverID); err != nil {
		return nil, err
	}
	tb, err := c.Store.TransitionBooking(ctx, bookingID,
		[]models.BookingStatus{models.BookingStarted}, models.BookingCompleted, c.now())
	if err != nil {
		return nil, err
	}
	b, err := c.Store.ArchiveTempBooking(ctx, bookingID, models.BookingCompleted, tb.Fare)
	if err != nil {
		return nil, err
	}
	observability.RidesCompleted.Inc()

	if c.Payments != nil && tb.PaymentRef != "" {
		if err := c.Payments.Capture(ctx, tb.PaymentRef); err != nil {
			c.Logger.Error("payment capture failed", "booking_id", bookingID, "ref", tb.PaymentRef, "error", err)
		}
	}
	if err := c.Presence.SetAvailability(ctx, driverID, true, true, false); err != nil {
		c.Logger.Warn("presence reset failed", "driver_id", driverID, "error", err)
	}
	_ = c.Notifier.NotifyRider(b.RiderID, notify.EventRideCompleted, map[string]any{
		"booking_id": b.ID,
		"total_fare": b.TotalFare,
	})
	c.Logger.Info("ride completed", "booking_id", b.ID, "driver_id", driverID, "fare", b.TotalFare)
	return b, nil
}

// CancelRide lets the rider or the assigned driver abort before pickup.
// A started ride cannot be canceled.
func (c *Controller) CancelRide(ctx context.Context, bookingID, actorID string, actorRole models.Role, reason string) (*models.Booking, error) {
	tb, err := c.Store.GetTempBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	switch actorRole {
	case models.RoleRider:
		if tb.RiderID != actorID {
			return nil, ridehail.ErrForbidden
		}
	case models.RoleDriver:
		if tb.DriverID != actorID {
			return nil, ridehail.ErrForbidden
		}
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ridehail.ErrValidation, actorRole)
	}

	tb, err = c.Store.CancelTempBooking(ctx, bookingID,
		[]models.BookingStatus{models.BookingAccepted, models.BookingArrived},
		c.now(), actorRole, reason)
	if err != nil {
		return nil, err
	}
	b, err := c.Store.ArchiveTempBooking(ctx, bookingID, models.BookingCanceled, tb.Fare)
	if err != nil {
		return nil, err
	}
	observability.RidesCanceled.Inc()

	if c.Payments != nil && tb.PaymentRef != "" {
		if err := c.Payments.Release(ctx, tb.PaymentRef); err != nil {
			c.Logger.Error("payment release failed", "booking_id", bookingID, "ref", tb.PaymentRef, "error", err)
		}
	}
	if err := c.Presence.SetAvailability(ctx, tb.DriverID, true, true, false); err != nil {
		c.Logger.Warn("presence reset failed", "driver_id", tb.DriverID, "error", err)
	}

	payload := map[string]any{
		"booking_id":    b.ID,
		"canceled_by":   string(actorRole),
		"cancel_reason": reason,
	}
	// notify the party that did not cancel
	if actorRole == models.RoleRider {
		_ = c.Notifier.NotifyDriver(tb.DriverID, notify.EventRideCanceled, payload)
	} else {
		_ = c.Notifier.NotifyRider(tb.RiderID, notify.EventRideCanceled, payload)
	}
	c.Logger.Info("ride canceled", "booking_id", b.ID, "by", actorRole, "reason", reason)
	return b, nil
}

func (c *Controller) guardDriver(ctx context.Context, bookingID, driverID string) error {
	tb, err := c.Store.GetTempBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if tb.DriverID != driverID {
		return ridehail.ErrForbidden
	}
	return nil
}

func statusIn(s models.BookingStatus, set []models.BookingStatus) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
