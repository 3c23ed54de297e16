package doorlock

import (
	"context"
	"sync"
	"time"

	"github.com/backkem/cardlock/pkg/credential"
)

// FakeClock is a Clock whose Sleep returns immediately after advancing the
// fake time. Use it for deterministic tests of windows and holds.
//
// Example:
//
//	clock := doorlock.NewFakeClock(time.Unix(0, 0))
//	clock.AfterSleep = func(now time.Time) {
//	    if now.Sub(start) > 3*time.Second {
//	        signals.SetWipe(false)
//	    }
//	}
type FakeClock struct {
	mu  sync.Mutex
	now time.Time

	// AfterSleep is called with the new time after every Sleep. Optional.
	AfterSleep func(now time.Time)
}

// NewFakeClock creates a fake clock starting at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now implements Clock.
func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Sleep implements Clock.
func (f *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	hook := f.AfterSleep
	f.mu.Unlock()

	if hook != nil {
		hook(now)
	}
	return ctx.Err()
}

// Advance moves the fake time forward without calling AfterSleep.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// FakeSignals is a Signals with settable levels.
type FakeSignals struct {
	mu    sync.Mutex
	wipe  bool
	reset bool
	open  bool
}

// SetWipe sets the full-wipe input.
func (f *FakeSignals) SetWipe(held bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wipe = held
}

// SetReset sets the reset-provisioning input.
func (f *FakeSignals) SetReset(held bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset = held
}

// SetOpen sets the momentary open input.
func (f *FakeSignals) SetOpen(held bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = held
}

// WipeHeld implements Signals.
func (f *FakeSignals) WipeHeld() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wipe
}

// ResetHeld implements Signals.
func (f *FakeSignals) ResetHeld() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reset
}

// OpenRequested implements Signals.
func (f *FakeSignals) OpenRequested() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// FakeRead is one scripted reader poll result.
type FakeRead struct {
	Cred credential.Credential
	OK   bool
	Err  error
}

// FakeSource is a ScanSource replaying scripted reads. An empty script
// reports no card.
type FakeSource struct {
	mu    sync.Mutex
	reads []FakeRead
	polls int

	// ProbeErr is returned by Probe.
	ProbeErr error
}

// Present queues one successful read per credential.
func (f *FakeSource) Present(creds ...credential.Credential) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range creds {
		f.reads = append(f.reads, FakeRead{Cred: c, OK: true})
	}
}

// Script queues raw read results.
func (f *FakeSource) Script(reads ...FakeRead) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, reads...)
}

// Pending returns the number of queued reads.
func (f *FakeSource) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reads)
}

// Polls returns how many times TryRead was called.
func (f *FakeSource) Polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

// TryRead implements ScanSource.
func (f *FakeSource) TryRead() (credential.Credential, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.polls++
	if len(f.reads) == 0 {
		return credential.Credential{}, false, nil
	}
	r := f.reads[0]
	f.reads = f.reads[1:]
	return r.Cred, r.OK, r.Err
}

// Probe implements Prober.
func (f *FakeSource) Probe() error {
	return f.ProbeErr
}

// Sink event names recorded by RecordingSink.
const (
	EventGranted      = "Granted"
	EventDenied       = "Denied"
	EventEnterEnroll  = "EnterEnroll"
	EventExitEnroll   = "ExitEnroll"
	EventAdded        = "Added"
	EventRemoved      = "Removed"
	EventAddFailed    = "AddFailed"
	EventRemoveFailed = "RemoveFailed"
	EventWipeProgress = "WipeProgress"
	EventWipeComplete = "WipeComplete"
	EventReaderFault  = "ReaderFault"
)

// RecordingSink is a Sink recording every notification in order.
type RecordingSink struct {
	mu     sync.Mutex
	events []string
	grants []time.Duration
}

func (r *RecordingSink) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, name)
}

// Events returns a copy of the recorded event names.
func (r *RecordingSink) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many times name was recorded.
func (r *RecordingSink) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == name {
			n++
		}
	}
	return n
}

// Last returns the most recent event name, or "".
func (r *RecordingSink) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return ""
	}
	return r.events[len(r.events)-1]
}

// Grants returns the durations passed to Granted.
func (r *RecordingSink) Grants() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, len(r.grants))
	copy(out, r.grants)
	return out
}

// Reset clears the recorded events.
func (r *RecordingSink) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.grants = nil
}

func (r *RecordingSink) Granted(d time.Duration) {
	r.mu.Lock()
	r.grants = append(r.grants, d)
	r.mu.Unlock()
	r.record(EventGranted)
}

func (r *RecordingSink) Denied()       { r.record(EventDenied) }
func (r *RecordingSink) EnterEnroll()  { r.record(EventEnterEnroll) }
func (r *RecordingSink) ExitEnroll()   { r.record(EventExitEnroll) }
func (r *RecordingSink) Added()        { r.record(EventAdded) }
func (r *RecordingSink) Removed()      { r.record(EventRemoved) }
func (r *RecordingSink) AddFailed()    { r.record(EventAddFailed) }
func (r *RecordingSink) RemoveFailed() { r.record(EventRemoveFailed) }
func (r *RecordingSink) WipeProgress() { r.record(EventWipeProgress) }
func (r *RecordingSink) WipeComplete() { r.record(EventWipeComplete) }
func (r *RecordingSink) ReaderFault()  { r.record(EventReaderFault) }

// Verify implementations.
var (
	_ Clock      = (*FakeClock)(nil)
	_ Signals    = (*FakeSignals)(nil)
	_ ScanSource = (*FakeSource)(nil)
	_ Prober     = (*FakeSource)(nil)
	_ Sink       = (*RecordingSink)(nil)
)
