package extract

import "errors"

var (
	// ErrNoMedia is returned by a strategy that ran cleanly but found nothing.
	ErrNoMedia = errors.New("no media found")

	// ErrUnknownStrategy is returned for a strategy name with no registration.
	ErrUnknownStrategy = errors.New("unknown strategy")

	// ErrNoTool is returned by tool-only operations when no tool strategy is
	// registered.
	ErrNoTool = errors.New("no tool strategy registered")
)
