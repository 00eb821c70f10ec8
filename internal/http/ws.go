package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/registry"
)

// inbound socket frame; mirrors the notify.Envelope shape on the way out
type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// handleRiderWS upgrades and registers the rider's channel. Riders only
// receive events; inbound frames are drained and ignored until the
// connection drops, at which point the registry entry is removed. Nothing
// else is reconciled on disconnect.
func (s *Server) handleRiderWS(w http.ResponseWriter, r *http.Request) {
	id, err := s.identityFromRequest(r)
	if err != nil || id.Role != models.RoleRider {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sess := registry.NewSession(conn)
	s.Riders.Register(id.ID, sess)
	observability.RiderSockets.Inc()
	s.logger.Info("rider connected", "rider_id", id.ID)

	defer func() {
		if gone, ok := s.Riders.UnregisterConn(sess); ok {
			s.logger.Info("rider disconnected", "rider_id", gone)
		}
		observability.RiderSockets.Dec()
		_ = sess.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// handleDriverWS upgrades, registers the driver's channel and serves the
// driver-side events: location updates, the nearby query and availability
// toggles.
func (s *Server) handleDriverWS(w http.ResponseWriter, r *http.Request) {
	id, err := s.identityFromRequest(r)
	if err != nil || id.Role != models.RoleDriver {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sess := registry.NewSession(conn)
	s.Drivers.Register(id.ID, sess)
	observability.DriverSockets.Inc()
	s.logger.Info("driver connected", "driver_id", id.ID)

	defer func() {
		if gone, ok := s.Drivers.UnregisterConn(sess); ok {
			s.logger.Info("driver disconnected", "driver_id", gone)
		}
		observability.DriverSockets.Dec()
		_ = sess.Close()
	}()

	for {
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		s.handleDriverFrame(r, id.ID, sess, frame)
	}
}

func (s *Server) handleDriverFrame(r *http.Request, driverID string, sess *registry.Session, frame wsFrame) {
	ctx := r.Context()
	switch frame.Event {
	case "updateLocation":
		var d struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		}
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			s.sendWSError(sess, "invalid updateLocation payload")
			return
		}
		if err := s.Engine.UpdateDriverLocation(ctx, driverID, d.Lat, d.Lon); err != nil {
			s.sendWSError(sess, "failed to update location")
		}

	case "getNearbyDrivers":
		var d struct {
			Lat     float64 `json:"lat"`
			Lon     float64 `json:"lon"`
			RadiusM float64 `json:"radius_m"`
		}
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			s.sendWSError(sess, "invalid getNearbyDrivers payload")
			return
		}
		drivers, err := s.Engine.NearbyDrivers(ctx, d.Lat, d.Lon, d.RadiusM)
		if err != nil {
			s.sendWSError(sess, "failed to fetch nearby drivers")
			return
		}
		_ = sess.Send(notify.Envelope{Event: notify.EventNearbyDrivers, Data: map[string]any{"drivers": drivers}})

	case "setAvailability":
		var d struct {
			Online    bool `json:"online"`
			Available bool `json:"available"`
		}
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			s.sendWSError(sess, "invalid setAvailability payload")
			return
		}
		if err := s.Engine.SetDriverAvailability(ctx, driverID, d.Online, d.Available); err != nil {
			s.sendWSError(sess, "failed to update availability")
		}

	default:
		s.sendWSError(sess, "unknown event "+frame.Event)
	}
}

func (s *Server) sendWSError(sess *registry.Session, msg string) {
	_ = sess.Send(notify.Envelope{Event: notify.EventError, Data: map[string]any{"message": msg}})
}
