package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/ridehail"
)

// PostgresStore is the durable record store. Compound moves between
// collections run inside a transaction; the accept guard is a
// SELECT ... FOR UPDATE so only one driver can consume a pending request.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) DB() *sql.DB { return p.db }

const requestCols = `id, rider_id, pickup_lat, pickup_lon, pickup_address, drop_lat, drop_lon, drop_address,
	estimated_fare, vehicle_type, payment_method, status, distance_km, duration_min, note, request_time, expiry_time, accept_time`

func (p *PostgresStore) CreateRequest(ctx context.Context, req *models.RideRequest) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO ride_requests(`+requestCols+`)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		req.ID, req.RiderID, req.Pickup.Lat, req.Pickup.Lon, req.Pickup.Address,
		req.Drop.Lat, req.Drop.Lon, req.Drop.Address,
		req.EstimatedFare, req.VehicleType, string(req.PaymentMethod), string(req.Status),
		req.DistanceKm, req.DurationMin, req.Note, req.RequestTime, req.ExpiryTime, req.AcceptTime)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.RideRequest, error) {
	var req models.RideRequest
	var status, method string
	err := row.Scan(&req.ID, &req.RiderID, &req.Pickup.Lat, &req.Pickup.Lon, &req.Pickup.Address,
		&req.Drop.Lat, &req.Drop.Lon, &req.Drop.Address,
		&req.EstimatedFare, &req.VehicleType, &method, &status,
		&req.DistanceKm, &req.DurationMin, &req.Note, &req.RequestTime, &req.ExpiryTime, &req.AcceptTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ridehail.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	req.Status = models.RequestStatus(status)
	req.PaymentMethod = models.PaymentMethod(method)
	return &req, nil
}

func (p *PostgresStore) GetRequest(ctx context.Context, id string) (*models.RideRequest, error) {
	return scanRequest(p.db.QueryRowContext(ctx, `SELECT `+requestCols+` FROM ride_requests WHERE id=$1`, id))
}

func (p *PostgresStore) DeleteRequest(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM ride_requests WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ridehail.ErrNotFound
	}
	return nil
}

func (p *PostgresStore) ExpiredRequests(ctx context.Context, now time.Time) ([]*models.RideRequest, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+requestCols+` FROM ride_requests WHERE expiry_time < $1 AND status='pending'`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.RideRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

const tempCols = `id, request_id, rider_id, driver_id, pickup_lat, pickup_lon, pickup_address, drop_lat, drop_lon, drop_address,
	fare, vehicle_type, payment_method, otp, status, distance_km, duration_min, note, payment_ref,
	request_time, accept_time, arrived_time, pickup_time, drop_time, cancel_time, canceled_by, cancel_reason`

func insertTempBooking(ctx context.Context, tx *sql.Tx, tb *models.TempBooking) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO temp_bookings(`+tempCols+`)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27)`,
		tb.ID, tb.RequestID, tb.RiderID, tb.DriverID,
		tb.Pickup.Lat, tb.Pickup.Lon, tb.Pickup.Address, tb.Drop.Lat, tb.Drop.Lon, tb.Drop.Address,
		tb.Fare, tb.VehicleType, string(tb.PaymentMethod), tb.OTP, string(tb.Status),
		tb.DistanceKm, tb.DurationMin, tb.Note, tb.PaymentRef,
		tb.RequestTime, tb.AcceptTime, tb.ArrivedTime, tb.PickupTime, tb.DropTime, tb.CancelTime,
		nullRole(tb.CanceledBy), nullString(tb.CancelReason))
	return err
}

func scanTempBooking(row rowScanner) (*models.TempBooking, error) {
	var tb models.TempBooking
	var status, method string
	var canceledBy, cancelReason sql.NullString
	err := row.Scan(&tb.ID, &tb.RequestID, &tb.RiderID, &tb.DriverID,
		&tb.Pickup.Lat, &tb.Pickup.Lon, &tb.Pickup.Address, &tb.Drop.Lat, &tb.Drop.Lon, &tb.Drop.Address,
		&tb.Fare, &tb.VehicleType, &method, &tb.OTP, &status,
		&tb.DistanceKm, &tb.DurationMin, &tb.Note, &tb.PaymentRef,
		&tb.RequestTime, &tb.AcceptTime, &tb.ArrivedTime, &tb.PickupTime, &tb.DropTime, &tb.CancelTime,
		&canceledBy, &cancelReason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ridehail.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	tb.Status = models.BookingStatus(status)
	tb.PaymentMethod = models.PaymentMethod(method)
	tb.CanceledBy = models.Role(canceledBy.String)
	tb.CancelReason = cancelReason.String
	return &tb, nil
}

func (p *PostgresStore) AcceptRequest(ctx context.Context, requestID, driverID, bookingID, otp string, at time.Time) (*models.TempBooking, error) {
	var tb *models.TempBooking
	err := p.withTx(ctx, func(tx *sql.Tx) error {
		req, err := scanRequest(tx.QueryRowContext(ctx, `SELECT `+requestCols+` FROM ride_requests WHERE id=$1 FOR UPDATE`, requestID))
		if errors.Is(err, ridehail.ErrNotFound) {
			// consumed by another driver already?
			var exists bool
			if qerr := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM temp_bookings WHERE request_id=$1)`, requestID).Scan(&exists); qerr != nil {
				return qerr
			}
			if exists {
				return ridehail.ErrConflict
			}
			return ridehail.ErrNotFound
		}
		if err != nil {
			return err
		}
		if req.Status != models.RequestPending {
			return ridehail.ErrConflict
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM ride_requests WHERE id=$1`, requestID); err != nil {
			return err
		}
		tb = tempFromRequest(req, driverID, bookingID, otp, at)
		return insertTempBooking(ctx, tx, tb)
	})
	if err != nil {
		return nil, err
	}
	return tb, nil
}

func (p *PostgresStore) ArchiveRequest(ctx context.Context, requestID string, at time.Time, by models.Role, reason string) (*models.Booking, error) {
	var b *models.Booking
	err := p.withTx(ctx, func(tx *sql.Tx) error {
		req, err := scanRequest(tx.QueryRowContext(ctx, `SELECT `+requestCols+` FROM ride_requests WHERE id=$1 FOR UPDATE`, requestID))
		if errors.Is(err, ridehail.ErrNotFound) {
			// same disambiguation as AcceptRequest: a request that
			// turned into a live booking was accepted, not lost
			var exists bool
			if qerr := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM temp_bookings WHERE request_id=$1)`, requestID).Scan(&exists); qerr != nil {
				return qerr
			}
			if exists {
				return ridehail.ErrConflict
			}
			return ridehail.ErrNotFound
		}
		if err != nil {
			return err
		}
		if req.Status != models.RequestPending {
			return ridehail.ErrConflict
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM ride_requests WHERE id=$1`, requestID); err != nil {
			return err
		}
		b = bookingFromRequest(req, at, by, reason)
		return insertBooking(ctx, tx, b)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (p *PostgresStore) GetTempBooking(ctx context.Context, id string) (*models.TempBooking, error) {
	return scanTempBooking(p.db.QueryRowContext(ctx, `SELECT `+tempCols+` FROM temp_bookings WHERE id=$1`, id))
}

func (p *PostgresStore) ActiveBookingForDriver(ctx context.Context, driverID string) (*models.TempBooking, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+tempCols+` FROM temp_bookings WHERE driver_id=$1 AND status NOT IN ('completed','canceled') ORDER BY accept_time DESC LIMIT 1`,
		driverID)
	return scanTempBooking(row)
}

func (p *PostgresStore) SetBookingPaymentRef(ctx context.Context, id, ref string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE temp_bookings SET payment_ref=$1 WHERE id=$2`, ref, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ridehail.ErrNotFound
	}
	return nil
}

func (p *PostgresStore) TransitionBooking(ctx context.Context, id string, from []models.BookingStatus, to models.BookingStatus, at time.Time) (*models.TempBooking, error) {
	col, err := stampColumn(to)
	if err != nil {
		return nil, err
	}
	row := p.db.QueryRowContext(ctx,
		`UPDATE temp_bookings SET status=$1, `+col+`=$2 WHERE id=$3 AND status = ANY($4) RETURNING `+tempCols,
		string(to), at, id, statusArray(from))
	tb, err := scanTempBooking(row)
	if errors.Is(err, ridehail.ErrNotFound) {
		return nil, p.bookingGuardErr(ctx, id)
	}
	return tb, err
}

func (p *PostgresStore) CancelTempBooking(ctx context.Context, id string, from []models.BookingStatus, at time.Time, by models.Role, reason string) (*models.TempBooking, error) {
	row := p.db.QueryRowContext(ctx,
		`UPDATE temp_bookings SET status='canceled', cancel_time=$1, canceled_by=$2, cancel_reason=$3
		 WHERE id=$4 AND status = ANY($5) RETURNING `+tempCols,
		at, string(by), reason, id, statusArray(from))
	tb, err := scanTempBooking(row)
	if errors.Is(err, ridehail.ErrNotFound) {
		return nil, p.bookingGuardErr(ctx, id)
	}
	return tb, err
}

// bookingGuardErr distinguishes "no such booking" from "guard failed" after
// a conditional update matched nothing.
func (p *PostgresStore) bookingGuardErr(ctx context.Context, id string) error {
	var exists bool
	if err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM temp_bookings WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ridehail.ErrConflict
	}
	return ridehail.ErrNotFound
}

func (p *PostgresStore) ArchiveTempBooking(ctx context.Context, id string, final models.BookingStatus, totalFare float64) (*models.Booking, error) {
	var b *models.Booking
	err := p.withTx(ctx, func(tx *sql.Tx) error {
		tb, err := scanTempBooking(tx.QueryRowContext(ctx, `SELECT `+tempCols+` FROM temp_bookings WHERE id=$1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM temp_bookings WHERE id=$1`, id); err != nil {
			return err
		}
		b = bookingFromTemp(tb, final, totalFare)
		return insertBooking(ctx, tx, b)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

const bookingCols = `id, rider_id, driver_id, pickup_lat, pickup_lon, pickup_address, drop_lat, drop_lon, drop_address,
	total_fare, vehicle_type, payment_method, status, distance_km, duration_min,
	request_time, accept_time, pickup_time, drop_time, cancel_time, canceled_by, cancel_reason`

func insertBooking(ctx context.Context, tx *sql.Tx, b *models.Booking) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO bookings(`+bookingCols+`)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`,
		b.ID, b.RiderID, nullString(b.DriverID),
		b.Pickup.Lat, b.Pickup.Lon, b.Pickup.Address, b.Drop.Lat, b.Drop.Lon, b.Drop.Address,
		b.TotalFare, b.VehicleType, string(b.PaymentMethod), string(b.Status), b.DistanceKm, b.DurationMin,
		b.RequestTime, b.AcceptTime, b.PickupTime, b.DropTime, b.CancelTime,
		nullRole(b.CanceledBy), nullString(b.CancelReason))
	return err
}

func (p *PostgresStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	var status, method string
	var driverID, canceledBy, cancelReason sql.NullString
	err := p.db.QueryRowContext(ctx, `SELECT `+bookingCols+` FROM bookings WHERE id=$1`, id).Scan(
		&b.ID, &b.RiderID, &driverID,
		&b.Pickup.Lat, &b.Pickup.Lon, &b.Pickup.Address, &b.Drop.Lat, &b.Drop.Lon, &b.Drop.Address,
		&b.TotalFare, &b.VehicleType, &method, &status, &b.DistanceKm, &b.DurationMin,
		&b.RequestTime, &b.AcceptTime, &b.PickupTime, &b.DropTime, &b.CancelTime,
		&canceledBy, &cancelReason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ridehail.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b.DriverID = driverID.String
	b.Status = models.BookingStatus(status)
	b.PaymentMethod = models.PaymentMethod(method)
	b.CanceledBy = models.Role(canceledBy.String)
	b.CancelReason = cancelReason.String
	return &b, nil
}

func (p *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func stampColumn(to models.BookingStatus) (string, error) {
	switch to {
	case models.BookingArrived:
		return "arrived_time", nil
	case models.BookingStarted:
		return "pickup_time", nil
	case models.BookingCompleted:
		return "drop_time", nil
	case models.BookingCanceled:
		return "cancel_time", nil
	}
	return "", fmt.Errorf("no timestamp column for status %q", to)
}

func statusArray(set []models.BookingStatus) interface{} {
	out := make([]string, len(set))
	for i, s := range set {
		out[i] = string(s)
	}
	return pq.Array(out)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullRole(r models.Role) sql.NullString {
	return sql.NullString{String: string(r), Valid: r != ""}
}
