// Package store persists the three ride record kinds: pending requests,
// in-flight temp bookings and historical bookings. Every mutation is
// state-guarded; the accept and archive operations move a record between
// collections as one atomic unit so a logical ride is never live in two
// collections at once.
package store

import (
	"context"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

type RideStore interface {
	CreateRequest(ctx context.Context, req *models.RideRequest) error
	GetRequest(ctx context.Context, id string) (*models.RideRequest, error)
	DeleteRequest(ctx context.Context, id string) error
	// ExpiredRequests returns every pending request whose expiry time is
	// strictly before now.
	ExpiredRequests(ctx context.Context, now time.Time) ([]*models.RideRequest, error)

	// AcceptRequest is the linearization point of the dispatch protocol:
	// a conditional "consume the request while it is still pending". On
	// success the request is deleted and the returned TempBooking inserted
	// in the same unit. Fails with ridehail.ErrNotFound if the request
	// does not exist and ridehail.ErrConflict if it is no longer pending.
	AcceptRequest(ctx context.Context, requestID, driverID, bookingID, otp string, at time.Time) (*models.TempBooking, error)

	// ArchiveRequest writes a canceled Booking snapshot of a still-pending
	// request and deletes the request. ErrConflict if not pending.
	ArchiveRequest(ctx context.Context, requestID string, at time.Time, by models.Role, reason string) (*models.Booking, error)

	GetTempBooking(ctx context.Context, id string) (*models.TempBooking, error)

	// ActiveBookingForDriver returns the driver's current non-terminal
	// booking, if any. Used to relay live driver locations to the rider.
	ActiveBookingForDriver(ctx context.Context, driverID string) (*models.TempBooking, error)

	// SetBookingPaymentRef records the payment-gateway reference taken out
	// when an online-payment ride was accepted.
	SetBookingPaymentRef(ctx context.Context, id, ref string) error

	// TransitionBooking moves a temp booking from one of the given states
	// to the target state, stamping the timestamp column that belongs to
	// the target. ErrConflict if the current status is not in from.
	TransitionBooking(ctx context.Context, id string, from []models.BookingStatus, to models.BookingStatus, at time.Time) (*models.TempBooking, error)

	// CancelTempBooking is TransitionBooking to canceled plus the
	// who/why fields.
	CancelTempBooking(ctx context.Context, id string, from []models.BookingStatus, at time.Time, by models.Role, reason string) (*models.TempBooking, error)

	// ArchiveTempBooking writes the immutable Booking for a terminal temp
	// booking and deletes the source record in the same unit.
	ArchiveTempBooking(ctx context.Context, id string, final models.BookingStatus, totalFare float64) (*models.Booking, error)

	GetBooking(ctx context.Context, id string) (*models.Booking, error)
}

// timestampFor routes a transition target to the field it stamps.
func stampBooking(tb *models.TempBooking, to models.BookingStatus, at time.Time) {
	switch to {
	case models.BookingArrived:
		tb.ArrivedTime = &at
	case models.BookingStarted:
		tb.PickupTime = &at
	case models.BookingCompleted:
		tb.DropTime = &at
	case models.BookingCanceled:
		tb.CancelTime = &at
	}
	tb.Status = to
}

func bookingFromTemp(tb *models.TempBooking, final models.BookingStatus, totalFare float64) *models.Booking {
	at := tb.AcceptTime
	return &models.Booking{
		ID:            tb.ID,
		RiderID:       tb.RiderID,
		DriverID:      tb.DriverID,
		Pickup:        tb.Pickup,
		Drop:          tb.Drop,
		TotalFare:     totalFare,
		VehicleType:   tb.VehicleType,
		PaymentMethod: tb.PaymentMethod,
		Status:        final,
		DistanceKm:    tb.DistanceKm,
		DurationMin:   tb.DurationMin,
		RequestTime:   tb.RequestTime,
		AcceptTime:    &at,
		PickupTime:    tb.PickupTime,
		DropTime:      tb.DropTime,
		CancelTime:    tb.CancelTime,
		CanceledBy:    tb.CanceledBy,
		CancelReason:  tb.CancelReason,
	}
}

func bookingFromRequest(req *models.RideRequest, at time.Time, by models.Role, reason string) *models.Booking {
	return &models.Booking{
		ID:            req.ID,
		RiderID:       req.RiderID,
		Pickup:        req.Pickup,
		Drop:          req.Drop,
		TotalFare:     req.EstimatedFare,
		VehicleType:   req.VehicleType,
		PaymentMethod: req.PaymentMethod,
		Status:        models.BookingCanceled,
		DistanceKm:    req.DistanceKm,
		DurationMin:   req.DurationMin,
		RequestTime:   req.RequestTime,
		CancelTime:    &at,
		CanceledBy:    by,
		CancelReason:  reason,
	}
}

func tempFromRequest(req *models.RideRequest, driverID, bookingID, otp string, at time.Time) *models.TempBooking {
	return &models.TempBooking{
		ID:            bookingID,
		RequestID:     req.ID,
		RiderID:       req.RiderID,
		DriverID:      driverID,
		Pickup:        req.Pickup,
		Drop:          req.Drop,
		Fare:          req.EstimatedFare,
		VehicleType:   req.VehicleType,
		PaymentMethod: req.PaymentMethod,
		OTP:           otp,
		Status:        models.BookingAccepted,
		DistanceKm:    req.DistanceKm,
		DurationMin:   req.DurationMin,
		Note:          req.Note,
		RequestTime:   req.RequestTime,
		AcceptTime:    at,
	}
}
