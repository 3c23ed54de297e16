package feedback

import (
	"errors"
	"sync"
	"time"

	"github.com/backkem/cardlock/pkg/doorlock"
)

// ErrRelayRequired is returned when a RelaySink has no output.
var ErrRelayRequired = errors.New("feedback: relay is required")

// RelaySink unlocks the door for the granted duration and locks it again
// on the first Tick after the duration has passed. A reader fault locks
// immediately.
type RelaySink struct {
	doorlock.NopSink

	out Relay

	mu        sync.Mutex
	last      time.Time
	open      pulse
	energized bool
}

// NewRelaySink creates a RelaySink and locks the door.
func NewRelaySink(out Relay) (*RelaySink, error) {
	if out == nil {
		return nil, ErrRelayRequired
	}
	s := &RelaySink{out: out}
	out.Set(false)
	return s, nil
}

// Granted implements doorlock.Sink.
func (s *RelaySink) Granted(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.open.start(s.last, d)
	s.set(true)
}

// ReaderFault implements doorlock.Sink.
func (s *RelaySink) ReaderFault() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.open.stop()
	s.set(false)
}

// Tick implements doorlock.Ticker.
func (s *RelaySink) Tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.last = now
	if s.open.expired(now) {
		s.open.stop()
		s.set(false)
	}
}

// Release implements doorlock.Releaser by locking the door.
func (s *RelaySink) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.open.stop()
	s.set(false)
}

// Unlocked reports whether the relay is energized.
func (s *RelaySink) Unlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.energized
}

func (s *RelaySink) set(on bool) {
	if s.energized == on {
		return
	}
	s.energized = on
	s.out.Set(on)
}

// Verify implementations.
var (
	_ doorlock.Sink     = (*RelaySink)(nil)
	_ doorlock.Ticker   = (*RelaySink)(nil)
	_ doorlock.Releaser = (*RelaySink)(nil)
)
