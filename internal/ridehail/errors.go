// Package ridehail holds the error taxonomy shared by the dispatch engine,
// the lifecycle controller and the record store. All guard failures surface
// as one of these sentinels (usually wrapped), matched with errors.Is.
package ridehail

import "errors"

var (
	// ErrNotFound: no such request or booking.
	ErrNotFound = errors.New("not found")

	// ErrConflict: a state guard was violated, e.g. accepting a request
	// another driver already won, or completing a ride that never started.
	ErrConflict = errors.New("state conflict")

	// ErrForbidden: the acting party does not own the record.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidOTP: the supplied pickup code does not match the booking.
	ErrInvalidOTP = errors.New("invalid otp")

	// ErrNoConnection: the target has no live channel. Non-fatal for
	// notifications, which are skipped rather than failed.
	ErrNoConnection = errors.New("no live connection")

	// ErrValidation: required trip fields are missing or malformed.
	ErrValidation = errors.New("validation failed")
)
