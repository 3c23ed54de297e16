package feedback

import (
	"sync"

	"github.com/pion/logging"
)

// LogIndicator is an Indicator that logs color changes. It stands in for
// the light when the controller runs on a host.
type LogIndicator struct {
	log logging.LeveledLogger
}

// NewLogIndicator creates a LogIndicator. A nil factory discards output.
func NewLogIndicator(f logging.LoggerFactory) *LogIndicator {
	l := &LogIndicator{}
	if f != nil {
		l.log = f.NewLogger("indicator")
	}
	return l
}

// Set implements Indicator.
func (l *LogIndicator) Set(c Color) {
	if l.log != nil {
		l.log.Debugf("indicator %s", c)
	}
}

// LogRelay is a Relay that logs lock state changes.
type LogRelay struct {
	log logging.LeveledLogger
}

// NewLogRelay creates a LogRelay. A nil factory discards output.
func NewLogRelay(f logging.LoggerFactory) *LogRelay {
	l := &LogRelay{}
	if f != nil {
		l.log = f.NewLogger("relay")
	}
	return l
}

// Set implements Relay.
func (l *LogRelay) Set(energized bool) {
	if l.log == nil {
		return
	}
	if energized {
		l.log.Info("unlocked")
	} else {
		l.log.Info("locked")
	}
}

// RecordingIndicator records every color set. For tests.
type RecordingIndicator struct {
	mu     sync.Mutex
	colors []Color
}

// Set implements Indicator.
func (r *RecordingIndicator) Set(c Color) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.colors = append(r.colors, c)
}

// Colors returns a copy of the recorded colors.
func (r *RecordingIndicator) Colors() []Color {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Color, len(r.colors))
	copy(out, r.colors)
	return out
}

// RecordingRelay records every relay level set. For tests.
type RecordingRelay struct {
	mu     sync.Mutex
	levels []bool
}

// Set implements Relay.
func (r *RecordingRelay) Set(energized bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels = append(r.levels, energized)
}

// Levels returns a copy of the recorded levels.
func (r *RecordingRelay) Levels() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, len(r.levels))
	copy(out, r.levels)
	return out
}

// Verify implementations.
var (
	_ Indicator = (*LogIndicator)(nil)
	_ Indicator = (*RecordingIndicator)(nil)
	_ Relay     = (*LogRelay)(nil)
	_ Relay     = (*RecordingRelay)(nil)
)
