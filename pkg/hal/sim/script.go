package sim

import "github.com/robotalks/iebus.go/pkg/hal"

// Segment is a span of the receive line held at one level.
type Segment struct {
	Level    hal.Level
	Duration int64
}

// Pulse is an active period followed by an inactive period, in microseconds.
type Pulse struct {
	High int64
	Low  int64
}

// Total returns the whole period of the pulse.
func (p Pulse) Total() int64 {
	return p.High + p.Low
}

// Script builds the level sequence of a receive line.
type Script struct {
	segments []Segment
}

// NewScript creates an empty Script.
func NewScript() *Script {
	return &Script{}
}

// Hold keeps the line at level for us microseconds.
func (s *Script) Hold(level hal.Level, us int64) *Script {
	if us <= 0 {
		return s
	}
	if n := len(s.segments); n > 0 && s.segments[n-1].Level == level {
		s.segments[n-1].Duration += us
		return s
	}
	s.segments = append(s.segments, Segment{Level: level, Duration: us})
	return s
}

// Idle keeps the line inactive for us microseconds.
func (s *Script) Idle(us int64) *Script {
	return s.Hold(hal.Low, us)
}

// Pulse appends one active/inactive pair.
func (s *Script) Pulse(high, low int64) *Script {
	return s.Hold(hal.High, high).Hold(hal.Low, low)
}

// Pulses appends recorded pulses, e.g. from Bus.Pulses for loopback.
func (s *Script) Pulses(pulses ...Pulse) *Script {
	for _, p := range pulses {
		s.Pulse(p.High, p.Low)
	}
	return s
}

// Append appends another script.
func (s *Script) Append(other *Script) *Script {
	for _, seg := range other.segments {
		s.Hold(seg.Level, seg.Duration)
	}
	return s
}

// Segments returns the built segments.
func (s *Script) Segments() []Segment {
	return s.segments
}

// Duration returns the total length of the script.
func (s *Script) Duration() (us int64) {
	for _, seg := range s.segments {
		us += seg.Duration
	}
	return
}
