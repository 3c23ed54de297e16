package feedback

import (
	"time"

	"github.com/backkem/cardlock/pkg/doorlock"
)

// Multi fans every notification out to its sinks in order. Tick,
// ModeChanged and Release reach the sinks that implement them.
type Multi []doorlock.Sink

func (m Multi) Granted(d time.Duration) {
	for _, s := range m {
		s.Granted(d)
	}
}

func (m Multi) Denied() {
	for _, s := range m {
		s.Denied()
	}
}

func (m Multi) EnterEnroll() {
	for _, s := range m {
		s.EnterEnroll()
	}
}

func (m Multi) ExitEnroll() {
	for _, s := range m {
		s.ExitEnroll()
	}
}

func (m Multi) Added() {
	for _, s := range m {
		s.Added()
	}
}

func (m Multi) Removed() {
	for _, s := range m {
		s.Removed()
	}
}

func (m Multi) AddFailed() {
	for _, s := range m {
		s.AddFailed()
	}
}

func (m Multi) RemoveFailed() {
	for _, s := range m {
		s.RemoveFailed()
	}
}

func (m Multi) WipeProgress() {
	for _, s := range m {
		s.WipeProgress()
	}
}

func (m Multi) WipeComplete() {
	for _, s := range m {
		s.WipeComplete()
	}
}

func (m Multi) ReaderFault() {
	for _, s := range m {
		s.ReaderFault()
	}
}

// Tick implements doorlock.Ticker.
func (m Multi) Tick(now time.Time) {
	for _, s := range m {
		if t, ok := s.(doorlock.Ticker); ok {
			t.Tick(now)
		}
	}
}

// ModeChanged implements doorlock.ModeObserver.
func (m Multi) ModeChanged(mode doorlock.Mode) {
	for _, s := range m {
		if o, ok := s.(doorlock.ModeObserver); ok {
			o.ModeChanged(mode)
		}
	}
}

// Release implements doorlock.Releaser.
func (m Multi) Release() {
	for _, s := range m {
		if r, ok := s.(doorlock.Releaser); ok {
			r.Release()
		}
	}
}

// Verify implementations.
var (
	_ doorlock.Sink         = Multi(nil)
	_ doorlock.Ticker       = Multi(nil)
	_ doorlock.ModeObserver = Multi(nil)
	_ doorlock.Releaser     = Multi(nil)
)
