package doorlock

import "errors"

// Package-level errors.
var (
	// ErrRegistryRequired is returned when Config.Registry is nil.
	ErrRegistryRequired = errors.New("doorlock: registry is required")

	// ErrSourceRequired is returned when Config.Source is nil.
	ErrSourceRequired = errors.New("doorlock: scan source is required")

	// ErrInvalidConfig is returned when a Config duration is negative.
	ErrInvalidConfig = errors.New("doorlock: invalid configuration")

	// ErrReaderFault is returned when the startup reader self-test fails.
	ErrReaderFault = errors.New("doorlock: reader fault")

	// ErrRestartRequired is returned after the master credential has been
	// reset. The controller stays halted until the process restarts.
	ErrRestartRequired = errors.New("doorlock: restart required")

	// ErrNotBootstrapped is returned by Step before Bootstrap has completed.
	ErrNotBootstrapped = errors.New("doorlock: not bootstrapped")
)
