// Package feedback implements actuation sinks for the door controller:
// the indicator light, the lock relay, the operator log stream and a
// fan-out that combines them.
//
// Sinks are driven by doorlock.Controller. Time-sliced output such as
// blinking or re-locking after a pulse happens in Tick, which the
// controller calls on every poll.
package feedback

import (
	"time"
)

// Color is an indicator light color.
type Color uint8

const (
	ColorOff Color = iota
	ColorRed
	ColorGreen
	ColorBlue
)

// String returns the color name.
func (c Color) String() string {
	switch c {
	case ColorOff:
		return "off"
	case ColorRed:
		return "red"
	case ColorGreen:
		return "green"
	case ColorBlue:
		return "blue"
	default:
		return "unknown"
	}
}

// Indicator is an RGB status light.
type Indicator interface {
	Set(c Color)
}

// Relay is the lock output. Energized means unlocked.
type Relay interface {
	Set(energized bool)
}

// pulse tracks a timed output. Sinks only learn the time from Tick, so a
// pulse started before the first tick is anchored at the next one.
type pulse struct {
	active bool
	armed  bool
	length time.Duration
	until  time.Time
}

func (p *pulse) start(last time.Time, d time.Duration) {
	p.active = true
	p.length = d
	p.armed = !last.IsZero()
	p.until = last.Add(d)
}

func (p *pulse) stop() {
	*p = pulse{}
}

// expired reports whether an active pulse has run its length at now.
func (p *pulse) expired(now time.Time) bool {
	if !p.active {
		return false
	}
	if !p.armed {
		p.armed = true
		p.until = now.Add(p.length)
		return false
	}
	return !now.Before(p.until)
}
