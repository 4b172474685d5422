package monitor

import "github.com/cockroachdb/errors"

// Errors returned by the Registry. Test with errors.Is.
var (
	ErrNotFound          = errors.New("resource not registered")
	ErrAlreadyRegistered = errors.New("resource already registered")
	ErrInvalidCapacity   = errors.New("invalid capacity")
	ErrInvalidWindow     = errors.New("invalid query window")
	ErrInsufficientData  = errors.New("insufficient data")
)
