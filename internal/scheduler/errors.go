package scheduler

import "errors"

var (
	// ErrNoValidFireTime is returned when the skip policy rejects every
	// candidate instant within the configured lookahead.
	ErrNoValidFireTime = errors.New("no valid fire time found within lookahead")

	// ErrUnknownCalendar is returned at registration for a holiday
	// calendar code without reference data.
	ErrUnknownCalendar = errors.New("unknown holiday calendar code")

	// ErrUnknownStrategy is returned for an unrecognized missed-execution
	// resolution strategy.
	ErrUnknownStrategy = errors.New("unknown resolution strategy")
)
