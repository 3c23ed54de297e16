package doorlock

import (
	"context"
	"time"

	"github.com/backkem/cardlock/pkg/credential"
)

// ScanSource produces credentials from a card reader.
type ScanSource interface {
	// TryRead polls the reader once without blocking. It returns ok=false
	// when no card is present. An error is a transient reader fault; the
	// controller treats it as "no card" and polls again.
	TryRead() (c credential.Credential, ok bool, err error)
}

// Prober is implemented by scan sources that can self-test the reader.
// A failed probe at startup halts the controller.
type Prober interface {
	Probe() error
}

// Sink receives outcome notifications. Calls are fire-and-forget and must
// not block for long; the controller owns any blocking hold.
type Sink interface {
	Granted(d time.Duration)
	Denied()
	EnterEnroll()
	ExitEnroll()
	Added()
	Removed()
	AddFailed()
	RemoveFailed()
	WipeProgress()
	WipeComplete()
	ReaderFault()
}

// Ticker is implemented by sinks with time-sliced output such as blinking
// indicators or a relay that re-locks after a pulse. The controller calls
// Tick on every poll.
type Ticker interface {
	Tick(now time.Time)
}

// ModeObserver is implemented by sinks that track the current mode.
type ModeObserver interface {
	ModeChanged(m Mode)
}

// Releaser is implemented by sinks that drive an output with an idle level,
// such as a door relay. Run calls Release once when it returns.
type Releaser interface {
	Release()
}

// Signals exposes the administrative inputs. Each method reports the
// current level of the input.
type Signals interface {
	// WipeHeld reports the full-wipe input, honoured at startup.
	WipeHeld() bool
	// ResetHeld reports the reset-provisioning input, honoured in Normal mode.
	ResetHeld() bool
	// OpenRequested reports the momentary open input, honoured in Normal mode.
	OpenRequested() bool
}

// Clock abstracts time for the control loop.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Sleep implements Clock.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NopSink discards every notification.
type NopSink struct{}

func (NopSink) Granted(time.Duration) {}
func (NopSink) Denied()               {}
func (NopSink) EnterEnroll()          {}
func (NopSink) ExitEnroll()           {}
func (NopSink) Added()                {}
func (NopSink) Removed()              {}
func (NopSink) AddFailed()            {}
func (NopSink) RemoveFailed()         {}
func (NopSink) WipeProgress()         {}
func (NopSink) WipeComplete()         {}
func (NopSink) ReaderFault()          {}

// NoSignals reports every administrative input as released.
type NoSignals struct{}

func (NoSignals) WipeHeld() bool      { return false }
func (NoSignals) ResetHeld() bool     { return false }
func (NoSignals) OpenRequested() bool { return false }

// Verify implementations.
var (
	_ Sink    = NopSink{}
	_ Signals = NoSignals{}
	_ Clock   = SystemClock{}
)
