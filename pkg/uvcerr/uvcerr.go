// Package uvcerr holds the closed set of error kinds surfaced to callers of the
// driver. Lower layers wrap these so errors.Is works across package boundaries.
package uvcerr

import "errors"

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrBusy            = errors.New("device or resource busy")
	ErrNoDevice        = errors.New("no such device")
	ErrRange           = errors.New("value out of range")
	ErrIO              = errors.New("i/o error")
	ErrNotSupported    = errors.New("operation not supported")

	// ErrNotFound is returned by paged enumerations when the index is past the end.
	ErrNotFound = errors.New("not found")
)
