package feedback

import (
	"errors"
	"sync"
	"time"

	"github.com/backkem/cardlock/pkg/doorlock"
)

// Indicator defaults.
const (
	DefaultBlinkPeriod  = 500 * time.Millisecond
	DefaultFeedbackHold = time.Second
)

// ErrIndicatorRequired is returned when an IndicatorSink has no output.
var ErrIndicatorRequired = errors.New("feedback: indicator is required")

// enrollCycle is the color sequence shown while in enroll mode.
var enrollCycle = [...]Color{ColorBlue, ColorRed, ColorGreen}

// IndicatorConfig configures an IndicatorSink.
type IndicatorConfig struct {
	// Indicator is the light to drive. Required.
	Indicator Indicator

	// BlinkPeriod is how long each enroll-mode color is shown.
	// Default: 500ms.
	BlinkPeriod time.Duration

	// FeedbackHold is how long outcome colors are shown.
	// Default: 1s. Grants use the granted duration instead.
	FeedbackHold time.Duration
}

// IndicatorSink drives a status light from controller notifications.
//
// Normal mode shows steady blue. Enroll mode cycles blue, red and green,
// advancing every BlinkPeriod. Outcomes override the mode color for a
// while: green on grant and add, red on deny, failure and reader fault,
// blue on remove.
type IndicatorSink struct {
	doorlock.NopSink

	out    Indicator
	period time.Duration
	hold   time.Duration

	mu       sync.Mutex
	mode     doorlock.Mode
	last     time.Time
	anchor   time.Time
	override Color
	flash    pulse
	wipeOn   bool
	shown    Color
	started  bool
}

// NewIndicatorSink creates an IndicatorSink showing the Normal mode color.
func NewIndicatorSink(config IndicatorConfig) (*IndicatorSink, error) {
	if config.Indicator == nil {
		return nil, ErrIndicatorRequired
	}
	if config.BlinkPeriod <= 0 {
		config.BlinkPeriod = DefaultBlinkPeriod
	}
	if config.FeedbackHold <= 0 {
		config.FeedbackHold = DefaultFeedbackHold
	}

	s := &IndicatorSink{
		out:    config.Indicator,
		period: config.BlinkPeriod,
		hold:   config.FeedbackHold,
	}
	s.show(ColorBlue)
	return s, nil
}

// Tick implements doorlock.Ticker.
func (s *IndicatorSink) Tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.last = now
	if s.anchor.IsZero() {
		s.anchor = now
	}
	if s.flash.expired(now) {
		s.flash.stop()
	}
	s.refresh()
}

// ModeChanged implements doorlock.ModeObserver.
func (s *IndicatorSink) ModeChanged(m doorlock.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mode = m
	s.anchor = s.last
	s.refresh()
}

// Color returns the color currently shown.
func (s *IndicatorSink) Color() Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shown
}

func (s *IndicatorSink) Granted(d time.Duration) { s.flashColor(ColorGreen, d) }
func (s *IndicatorSink) Denied()                 { s.flashColor(ColorRed, s.hold) }
func (s *IndicatorSink) Added()                  { s.flashColor(ColorGreen, s.hold) }
func (s *IndicatorSink) Removed()                { s.flashColor(ColorBlue, s.hold) }
func (s *IndicatorSink) AddFailed()              { s.flashColor(ColorRed, s.hold) }
func (s *IndicatorSink) RemoveFailed()           { s.flashColor(ColorRed, s.hold) }
func (s *IndicatorSink) WipeComplete()           { s.flashColor(ColorGreen, s.hold) }
func (s *IndicatorSink) ReaderFault()            { s.flashColor(ColorRed, s.hold) }

// WipeProgress alternates red and off while storage is erased.
func (s *IndicatorSink) WipeProgress() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.wipeOn = !s.wipeOn
	if s.wipeOn {
		s.show(ColorRed)
	} else {
		s.show(ColorOff)
	}
}

func (s *IndicatorSink) flashColor(c Color, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.override = c
	s.flash.start(s.last, d)
	s.show(c)
}

// refresh shows the override color or the mode color. Caller holds mu.
func (s *IndicatorSink) refresh() {
	if s.flash.active {
		s.show(s.override)
		return
	}
	if s.mode != doorlock.ModeEnroll {
		s.show(ColorBlue)
		return
	}
	step := int64(0)
	if elapsed := s.last.Sub(s.anchor); elapsed > 0 {
		step = int64(elapsed / s.period)
	}
	s.show(enrollCycle[step%int64(len(enrollCycle))])
}

// show sets the light if it differs from what is shown. Caller holds mu.
func (s *IndicatorSink) show(c Color) {
	if s.started && c == s.shown {
		return
	}
	s.started = true
	s.shown = c
	s.out.Set(c)
}

// Verify implementations.
var (
	_ doorlock.Sink         = (*IndicatorSink)(nil)
	_ doorlock.Ticker       = (*IndicatorSink)(nil)
	_ doorlock.ModeObserver = (*IndicatorSink)(nil)
)
