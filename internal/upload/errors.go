package upload

import "errors"

var (
	// ErrUnknownBackend is returned for a backend name with no registration.
	ErrUnknownBackend = errors.New("unknown backend")

	// ErrDuplicateBackend is returned when a name is registered twice.
	ErrDuplicateBackend = errors.New("backend already registered")

	// ErrUnavailable is recorded for backends that fail their health probe.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrNoResult is recorded when a backend reports neither a result nor an error.
	ErrNoResult = errors.New("backend returned no result")
)
