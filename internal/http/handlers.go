// Package httpapi is the thin adapter between the wire and the dispatch
// core: request decoding, identity extraction, error mapping. No dispatch
// semantics live here.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-dispatch/internal/auth"
	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/lifecycle"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/registry"
	"github.com/example/ride-dispatch/internal/ridehail"
)

type Server struct {
	Engine    *dispatch.Engine
	Lifecycle *lifecycle.Controller
	Auth      *auth.Manager
	Riders    *registry.Registry
	Drivers   *registry.Registry

	logger   *slog.Logger
	mux      *mux.Router
	upgrader websocket.Upgrader
}

func NewServer(engine *dispatch.Engine, lc *lifecycle.Controller, am *auth.Manager, riders, drivers *registry.Registry, logger *slog.Logger) *Server {
	s := &Server{
		Engine:    engine,
		Lifecycle: lc,
		Auth:      am,
		Riders:    riders,
		Drivers:   drivers,
		logger:    logger,
		mux:       mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authMiddleware)
	api.HandleFunc("/rides/request", s.requireRole(models.RoleRider, s.handleSubmitRequest)).Methods("POST")
	api.HandleFunc("/rides/{id}/accept", s.requireRole(models.RoleDriver, s.handleAcceptOffer)).Methods("POST")
	api.HandleFunc("/rides/{id}/reject", s.requireRole(models.RoleDriver, s.handleRejectOffer)).Methods("POST")
	api.HandleFunc("/rides/{id}/cancel", s.requireRole(models.RoleRider, s.handleCancelRequest)).Methods("POST")
	api.HandleFunc("/bookings/{id}/arrived", s.requireRole(models.RoleDriver, s.handleMarkArrived)).Methods("POST")
	api.HandleFunc("/bookings/{id}/start", s.requireRole(models.RoleDriver, s.handleStartRide)).Methods("POST")
	api.HandleFunc("/bookings/{id}/complete", s.requireRole(models.RoleDriver, s.handleCompleteRide)).Methods("POST")
	api.HandleFunc("/bookings/{id}/cancel", s.handleCancelRide).Methods("POST")
	api.HandleFunc("/drivers/nearby", s.handleNearbyDrivers).Methods("GET")

	s.mux.HandleFunc("/ws/riders", s.handleRiderWS)
	s.mux.HandleFunc("/ws/drivers", s.handleDriverWS)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	var trip models.TripDetails
	if err := json.NewDecoder(r.Body).Decode(&trip); err != nil {
		s.writeError(w, r, ridehail.ErrValidation)
		return
	}
	req, err := s.Engine.SubmitRequest(r.Context(), id.ID, trip)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"request": req})
}

func (s *Server) handleAcceptOffer(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	tb, err := s.Engine.AcceptOffer(r.Context(), id.ID, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"temp_booking": tb})
}

func (s *Server) handleRejectOffer(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	if err := s.Engine.RejectOffer(r.Context(), id.ID, mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"rejected": true})
}

func (s *Server) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	b, err := s.Engine.CancelRequest(r.Context(), id.ID, mux.Vars(r)["id"], body.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"booking": b})
}

func (s *Server) handleMarkArrived(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	tb, err := s.Lifecycle.MarkArrived(r.Context(), mux.Vars(r)["id"], id.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"temp_booking": tb})
}

func (s *Server) handleStartRide(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	var body struct {
		OTP string `json:"otp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, ridehail.ErrValidation)
		return
	}
	tb, err := s.Lifecycle.StartRide(r.Context(), mux.Vars(r)["id"], id.ID, body.OTP)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"temp_booking": tb})
}

func (s *Server) handleCompleteRide(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	b, err := s.Lifecycle.CompleteRide(r.Context(), mux.Vars(r)["id"], id.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"booking": b})
}

func (s *Server) handleCancelRide(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	b, err := s.Lifecycle.CancelRide(r.Context(), mux.Vars(r)["id"], id.ID, id.Role, body.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"booking": b})
}

func (s *Server) handleNearbyDrivers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lon, err2 := strconv.ParseFloat(q.Get("lon"), 64)
	if err1 != nil || err2 != nil {
		s.writeError(w, r, ridehail.ErrValidation)
		return
	}
	radius := 0.0
	if v := q.Get("radius_m"); v != "" {
		radius, _ = strconv.ParseFloat(v, 64)
	}
	drivers, err := s.Engine.NearbyDrivers(r.Context(), lat, lon, radius)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"drivers": drivers})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ridehail.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ridehail.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, ridehail.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, ridehail.ErrInvalidOTP), errors.Is(err, ridehail.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, ridehail.ErrNoConnection):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	s.writeJSON(w, status, map[string]any{"error": err.Error()})
}
