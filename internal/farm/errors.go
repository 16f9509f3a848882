package farm

import (
	"errors"

	"GemFarm/internal/calculator"
)

var (
	// ErrUnauthorized is returned when the acting identity may not perform the operation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is returned for a missing farm, farmer, vault or authorization.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when an entity is initialised twice.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidState is returned when a lock-state or ownership precondition fails.
	ErrInvalidState = errors.New("invalid state")

	// ErrTransferFailed is returned when a custody capability call fails.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrInvalidArgument is returned for zero amounts, zero durations and unknown currencies.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPersist is returned together with the operation's result when the change took
	// effect but the state file could not be written. The change stays in memory and
	// reaches disk with the next successful save.
	ErrPersist = errors.New("state not persisted")

	ErrOverflow  = calculator.ErrOverflow
	ErrUnderflow = calculator.ErrUnderflow
)
