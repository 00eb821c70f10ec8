// Package notify is the best-effort event channel back to riders and
// drivers. Delivery is fire-and-forget: a dead or missing connection is
// logged and swallowed, never allowed to fail the state transition that
// triggered the notification.
package notify

import (
	"log/slog"

	"github.com/example/ride-dispatch/internal/registry"
	"github.com/example/ride-dispatch/internal/ridehail"
)

// Wire event names. Clients key their handlers on these.
const (
	EventNewRideRequest    = "getNewRideRequest"
	EventRemoveRideRequest = "removeRideRequest"
	EventRideAccepted      = "rideAccepted"
	EventDriverArrived     = "driverArrived"
	EventRideStarted       = "rideStarted"
	EventRideCompleted     = "rideCompleted"
	EventRideCanceled      = "rideCanceled"
	EventDriverLocation    = "getDriverLocationForActiveRide"
	EventNearbyDrivers     = "nearbyDrivers"
	EventError             = "error"
)

// Envelope is the wire frame for every socket event.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type Notifier interface {
	NotifyRider(riderID, event string, data any) error
	NotifyDriver(driverID, event string, data any) error
}

// SocketNotifier resolves identities through the two connection registries
// and writes envelopes to the live session.
type SocketNotifier struct {
	Riders  *registry.Registry
	Drivers *registry.Registry
	Logger  *slog.Logger
}

func NewSocketNotifier(riders, drivers *registry.Registry, logger *slog.Logger) *SocketNotifier {
	return &SocketNotifier{Riders: riders, Drivers: drivers, Logger: logger}
}

func (n *SocketNotifier) NotifyRider(riderID, event string, data any) error {
	return n.send(n.Riders, "rider", riderID, event, data)
}

func (n *SocketNotifier) NotifyDriver(driverID, event string, data any) error {
	return n.send(n.Drivers, "driver", driverID, event, data)
}

func (n *SocketNotifier) send(reg *registry.Registry, role, id, event string, data any) error {
	c, ok := reg.Lookup(id)
	if !ok {
		return ridehail.ErrNoConnection
	}
	if err := c.Send(Envelope{Event: event, Data: data}); err != nil {
		n.Logger.Warn("socket send failed", "role", role, "id", id, "event", event, "error", err)
		return err
	}
	return nil
}
