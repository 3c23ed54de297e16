package doorlock

import (
	"fmt"
	"time"

	"github.com/backkem/cardlock/pkg/registry"
	"github.com/pion/logging"
)

// Default timings.
const (
	DefaultGrantDuration           = 3 * time.Second
	DefaultFeedbackHold            = 1 * time.Second
	DefaultPollInterval            = 50 * time.Millisecond
	DefaultFullWipeWindow          = 10 * time.Second
	DefaultResetProvisioningWindow = 5 * time.Second
	DefaultHaltInterval            = 1 * time.Second
)

// Config holds all configuration for a Controller.
type Config struct {
	// Registry is the credential table. Required.
	Registry *registry.Registry

	// Source is the card reader. Required.
	Source ScanSource

	// Sink receives outcome notifications. Optional.
	Sink Sink

	// Signals are the administrative inputs. Optional; all released if nil.
	Signals Signals

	// Clock drives polling and holds. Optional; defaults to SystemClock.
	Clock Clock

	// Timings. Zero selects the default.
	GrantDuration           time.Duration // lock pulse on grant (default: 3s)
	FeedbackHold            time.Duration // pause after deny and enrollment results (default: 1s)
	PollInterval            time.Duration // reader poll and window sampling period (default: 50ms)
	FullWipeWindow          time.Duration // startup wipe confirmation (default: 10s)
	ResetProvisioningWindow time.Duration // runtime reset confirmation (default: 5s)
	HaltInterval            time.Duration // fault notification period while halted (default: 1s)

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory

	// OnModeChanged is called after every mode transition. Optional.
	OnModeChanged func(m Mode)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Registry == nil {
		return ErrRegistryRequired
	}
	if c.Source == nil {
		return ErrSourceRequired
	}

	durations := map[string]time.Duration{
		"GrantDuration":           c.GrantDuration,
		"FeedbackHold":            c.FeedbackHold,
		"PollInterval":            c.PollInterval,
		"FullWipeWindow":          c.FullWipeWindow,
		"ResetProvisioningWindow": c.ResetProvisioningWindow,
		"HaltInterval":            c.HaltInterval,
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("%w: %s is negative", ErrInvalidConfig, name)
		}
	}
	return nil
}

// applyDefaults fills in default values for unset fields.
func (c *Config) applyDefaults() {
	if c.Sink == nil {
		c.Sink = NopSink{}
	}
	if c.Signals == nil {
		c.Signals = NoSignals{}
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}

	if c.GrantDuration == 0 {
		c.GrantDuration = DefaultGrantDuration
	}
	if c.FeedbackHold == 0 {
		c.FeedbackHold = DefaultFeedbackHold
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.FullWipeWindow == 0 {
		c.FullWipeWindow = DefaultFullWipeWindow
	}
	if c.ResetProvisioningWindow == 0 {
		c.ResetProvisioningWindow = DefaultResetProvisioningWindow
	}
	if c.HaltInterval == 0 {
		c.HaltInterval = DefaultHaltInterval
	}
}
