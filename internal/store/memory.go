package store

import (
	"context"
	"time"

	"sync"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/ridehail"
)

// MemoryStore keeps all three collections under a single mutex, which makes
// every compound operation (accept, archive) trivially atomic. The default
// when no PG_DSN is configured, and the store the tests run against.
type MemoryStore struct {
	mu       sync.Mutex
	requests map[string]*models.RideRequest
	temp     map[string]*models.TempBooking
	bookings map[string]*models.Booking
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests: make(map[string]*models.RideRequest),
		temp:     make(map[string]*models.TempBooking),
		bookings: make(map[string]*models.Booking),
	}
}

func (m *MemoryStore) CreateRequest(_ context.Context, req *models.RideRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *req
	m.requests[req.ID] = &cp
	return nil
}

func (m *MemoryStore) GetRequest(_ context.Context, id string) (*models.RideRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, ridehail.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (m *MemoryStore) DeleteRequest(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[id]; !ok {
		return ridehail.ErrNotFound
	}
	delete(m.requests, id)
	return nil
}

func (m *MemoryStore) ExpiredRequests(_ context.Context, now time.Time) ([]*models.RideRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.RideRequest
	for _, req := range m.requests {
		if req.ExpiryTime.Before(now) {
			cp := *req
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) AcceptRequest(_ context.Context, requestID, driverID, bookingID, otp string, at time.Time) (*models.TempBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[requestID]
	if !ok {
		// the request row is gone the instant another driver wins the
		// race; a live booking for it means "lost", not "never existed"
		for _, tb := range m.temp {
			if tb.RequestID == requestID {
				return nil, ridehail.ErrConflict
			}
		}
		return nil, ridehail.ErrNotFound
	}
	if req.Status != models.RequestPending {
		return nil, ridehail.ErrConflict
	}
	tb := tempFromRequest(req, driverID, bookingID, otp, at)
	delete(m.requests, requestID)
	m.temp[tb.ID] = tb
	cp := *tb
	return &cp, nil
}

func (m *MemoryStore) ArchiveRequest(_ context.Context, requestID string, at time.Time, by models.Role, reason string) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[requestID]
	if !ok {
		// same disambiguation as AcceptRequest: a request that turned
		// into a live booking was accepted, not lost
		for _, tb := range m.temp {
			if tb.RequestID == requestID {
				return nil, ridehail.ErrConflict
			}
		}
		return nil, ridehail.ErrNotFound
	}
	if req.Status != models.RequestPending {
		return nil, ridehail.ErrConflict
	}
	b := bookingFromRequest(req, at, by, reason)
	delete(m.requests, requestID)
	m.bookings[b.ID] = b
	cp := *b
	return &cp, nil
}

func (m *MemoryStore) GetTempBooking(_ context.Context, id string) (*models.TempBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tb, ok := m.temp[id]
	if !ok {
		return nil, ridehail.ErrNotFound
	}
	cp := *tb
	return &cp, nil
}

func (m *MemoryStore) ActiveBookingForDriver(_ context.Context, driverID string) (*models.TempBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tb := range m.temp {
		if tb.DriverID != driverID {
			continue
		}
		if tb.Status == models.BookingCompleted || tb.Status == models.BookingCanceled {
			continue
		}
		cp := *tb
		return &cp, nil
	}
	return nil, ridehail.ErrNotFound
}

func (m *MemoryStore) SetBookingPaymentRef(_ context.Context, id, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tb, ok := m.temp[id]
	if !ok {
		return ridehail.ErrNotFound
	}
	tb.PaymentRef = ref
	return nil
}

func (m *MemoryStore) TransitionBooking(_ context.Context, id string, from []models.BookingStatus, to models.BookingStatus, at time.Time) (*models.TempBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tb, ok := m.temp[id]
	if !ok {
		return nil, ridehail.ErrNotFound
	}
	if !statusIn(tb.Status, from) {
		return nil, ridehail.ErrConflict
	}
	stampBooking(tb, to, at)
	cp := *tb
	return &cp, nil
}

func (m *MemoryStore) CancelTempBooking(_ context.Context, id string, from []models.BookingStatus, at time.Time, by models.Role, reason string) (*models.TempBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tb, ok := m.temp[id]
	if !ok {
		return nil, ridehail.ErrNotFound
	}
	if !statusIn(tb.Status, from) {
		return nil, ridehail.ErrConflict
	}
	stampBooking(tb, models.BookingCanceled, at)
	tb.CanceledBy = by
	tb.CancelReason = reason
	cp := *tb
	return &cp, nil
}

func (m *MemoryStore) ArchiveTempBooking(_ context.Context, id string, final models.BookingStatus, totalFare float64) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tb, ok := m.temp[id]
	if !ok {
		return nil, ridehail.ErrNotFound
	}
	b := bookingFromTemp(tb, final, totalFare)
	delete(m.temp, id)
	m.bookings[b.ID] = b
	cp := *b
	return &cp, nil
}

func (m *MemoryStore) GetBooking(_ context.Context, id string) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ridehail.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func statusIn(s models.BookingStatus, set []models.BookingStatus) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
