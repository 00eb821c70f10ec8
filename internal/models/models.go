package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Place is a coordinate plus the human-readable address riders see.
type Place struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Address string  `json:"address,omitempty"`
}

func (p Place) Coord() Coord { return Coord{Lat: p.Lat, Lon: p.Lon} }

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentWallet PaymentMethod = "wallet"
	PaymentOnline PaymentMethod = "online"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestExpired  RequestStatus = "expired"
)

type BookingStatus string

const (
	BookingAccepted  BookingStatus = "accepted"
	BookingArrived   BookingStatus = "arrived"
	BookingStarted   BookingStatus = "started"
	BookingCompleted BookingStatus = "completed"
	BookingCanceled  BookingStatus = "canceled"
)

type Role string

const (
	RoleRider  Role = "rider"
	RoleDriver Role = "driver"
)

// TripDetails is what a rider submits: where to get picked up, where to go,
// and how they intend to pay. Fare, distance and duration may be zero, in
// which case the dispatch engine fills them in before persisting.
type TripDetails struct {
	Pickup        Place         `json:"pickup"`
	Drop          Place         `json:"drop"`
	EstimatedFare float64       `json:"estimated_fare,omitempty"`
	VehicleType   string        `json:"vehicle_type"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	DistanceKm    float64       `json:"distance_km,omitempty"`
	DurationMin   float64       `json:"duration_min,omitempty"`
	Note          string        `json:"note,omitempty"`
}

// RideRequest is the pending record: created on submission, destroyed on
// accept (converted to a TempBooking), explicit cancel, or expiry sweep.
type RideRequest struct {
	ID            string        `json:"id"`
	RiderID       string        `json:"rider_id"`
	Pickup        Place         `json:"pickup"`
	Drop          Place         `json:"drop"`
	EstimatedFare float64       `json:"estimated_fare"`
	VehicleType   string        `json:"vehicle_type"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Status        RequestStatus `json:"status"`
	DistanceKm    float64       `json:"distance_km"`
	DurationMin   float64       `json:"duration_min"`
	Note          string        `json:"note,omitempty"`
	RequestTime   time.Time     `json:"request_time"`
	ExpiryTime    time.Time     `json:"expiry_time"`
	AcceptTime    *time.Time    `json:"accept_time,omitempty"`
}

// TempBooking is the in-flight record for an accepted ride. Created
// atomically when a driver wins the accept race, mutated only through
// state-guarded transitions, destroyed when archived to a Booking.
type TempBooking struct {
	ID            string        `json:"id"`
	RequestID     string        `json:"request_id"`
	RiderID       string        `json:"rider_id"`
	DriverID      string        `json:"driver_id"`
	Pickup        Place         `json:"pickup"`
	Drop          Place         `json:"drop"`
	Fare          float64       `json:"fare"`
	VehicleType   string        `json:"vehicle_type"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	OTP           string        `json:"otp"`
	Status        BookingStatus `json:"status"`
	DistanceKm    float64       `json:"distance_km"`
	DurationMin   float64       `json:"duration_min"`
	Note          string        `json:"note,omitempty"`
	PaymentRef    string        `json:"payment_ref,omitempty"`
	RequestTime   time.Time     `json:"request_time"`
	AcceptTime    time.Time     `json:"accept_time"`
	ArrivedTime   *time.Time    `json:"arrived_time,omitempty"`
	PickupTime    *time.Time    `json:"pickup_time,omitempty"`
	DropTime      *time.Time    `json:"drop_time,omitempty"`
	CancelTime    *time.Time    `json:"cancel_time,omitempty"`
	CanceledBy    Role          `json:"canceled_by,omitempty"`
	CancelReason  string        `json:"cancel_reason,omitempty"`
}

// Booking is the immutable historical record written at a terminal state.
// Only completed and canceled rides exist here; expired requests are
// deleted without an archive.
type Booking struct {
	ID            string        `json:"id"`
	RiderID       string        `json:"rider_id"`
	DriverID      string        `json:"driver_id,omitempty"`
	Pickup        Place         `json:"pickup"`
	Drop          Place         `json:"drop"`
	TotalFare     float64       `json:"total_fare"`
	VehicleType   string        `json:"vehicle_type"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Status        BookingStatus `json:"status"`
	DistanceKm    float64       `json:"distance_km"`
	DurationMin   float64       `json:"duration_min"`
	RequestTime   time.Time     `json:"request_time"`
	AcceptTime    *time.Time    `json:"accept_time,omitempty"`
	PickupTime    *time.Time    `json:"pickup_time,omitempty"`
	DropTime      *time.Time    `json:"drop_time,omitempty"`
	CancelTime    *time.Time    `json:"cancel_time,omitempty"`
	CanceledBy    Role          `json:"canceled_by,omitempty"`
	CancelReason  string        `json:"cancel_reason,omitempty"`
}

// LocationUpdate is the message a driver's location stream produces; the
// ingest pipeline carries it from the socket to the presence layer.
type LocationUpdate struct {
	DriverID string    `json:"driver_id"`
	Lat      float64   `json:"lat"`
	Lon      float64   `json:"lon"`
	At       time.Time `json:"at"`
}

// DriverPresence is a driver's live location and availability.
// Invariants: IsAvailableForRide implies IsOnline; IsOnRide implies
// !IsAvailableForRide.
type DriverPresence struct {
	DriverID           string    `json:"driver_id"`
	Loc                Coord     `json:"loc"`
	IsOnline           bool      `json:"is_online"`
	IsAvailableForRide bool      `json:"is_available_for_ride"`
	IsOnRide           bool      `json:"is_on_ride"`
	LastUpdated        time.Time `json:"last_updated"`
}
