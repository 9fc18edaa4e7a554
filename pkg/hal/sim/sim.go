// Package sim provides a simulated bus line implementing hal.HAL.
//
// The simulation runs on a virtual microsecond clock. Reading the receive
// pin advances both the clock and the receive script by one poll step, so
// busy-wait loops make progress without real time passing. Delays advance
// the clock only: the scripted peer is paused while the local node drives
// the line, which keeps handshake exchanges aligned with the script.
package sim

import (
	"github.com/robotalks/iebus.go/pkg/hal"
)

var _ hal.HAL = (*Bus)(nil)

// DefaultPollStep is the virtual time consumed by one read of the receive pin.
const DefaultPollStep int64 = 1

// Edge is a recorded level change on the transmit pin.
type Edge struct {
	At    int64
	Level hal.Level
}

// PinConfig is the recorded configuration of a pin.
type PinConfig struct {
	Direction hal.Direction
	Pull      hal.Pull
}

// Bus is a simulated HAL with one scripted receive line and one recorded
// transmit line. It is not safe for concurrent use, same as the hardware.
type Bus struct {
	RxPin    hal.Pin
	TxPin    hal.Pin
	PollStep int64
	// IdleLevel is the receive line level once the script is exhausted.
	IdleLevel hal.Level

	now      int64
	rxPos    int64
	segments []Segment
	segIdx   int
	segStart int64
	total    int64

	levels  map[hal.Pin]hal.Level
	configs map[hal.Pin]PinConfig
	edges   []Edge
}

// New creates a Bus with the given receive and transmit pins.
func New(rx, tx hal.Pin) *Bus {
	return &Bus{
		RxPin:     rx,
		TxPin:     tx,
		PollStep:  DefaultPollStep,
		IdleLevel: hal.Low,
		levels:    make(map[hal.Pin]hal.Level),
		configs:   make(map[hal.Pin]PinConfig),
	}
}

// Feed appends a script to the pending receive line.
func (b *Bus) Feed(s *Script) *Bus {
	for _, seg := range s.segments {
		b.segments = append(b.segments, seg)
		b.total += seg.Duration
	}
	return b
}

// ConfigurePin implements hal.HAL.
func (b *Bus) ConfigurePin(pin hal.Pin, dir hal.Direction, pull hal.Pull) error {
	b.configs[pin] = PinConfig{Direction: dir, Pull: pull}
	return nil
}

// ReadPin implements hal.HAL.
func (b *Bus) ReadPin(pin hal.Pin) hal.Level {
	if pin != b.RxPin {
		return b.levels[pin]
	}
	step := b.PollStep
	if step <= 0 {
		step = DefaultPollStep
	}
	b.now += step
	b.rxPos += step
	return b.lineLevel()
}

// WritePin implements hal.HAL.
func (b *Bus) WritePin(pin hal.Pin, level hal.Level) {
	b.levels[pin] = level
	if pin == b.TxPin {
		b.edges = append(b.edges, Edge{At: b.now, Level: level})
	}
}

// NowMicros implements hal.HAL.
func (b *Bus) NowMicros() int64 {
	return b.now
}

// DelayMicros implements hal.HAL.
func (b *Bus) DelayMicros(us int64) {
	if us > 0 {
		b.now += us
	}
}

// Level returns the last level written to an output pin.
func (b *Bus) Level(pin hal.Pin) hal.Level {
	return b.levels[pin]
}

// Config returns the recorded configuration of a pin.
func (b *Bus) Config(pin hal.Pin) (PinConfig, bool) {
	conf, ok := b.configs[pin]
	return conf, ok
}

// Remaining returns the microseconds of receive script not yet consumed.
func (b *Bus) Remaining() int64 {
	if n := b.total - b.rxPos; n > 0 {
		return n
	}
	return 0
}

// Edges returns the recorded transmit edges.
func (b *Bus) Edges() []Edge {
	return b.edges
}

// Pulses converts the recorded transmit edges into pulses. The low period
// of the last pulse extends to the current virtual time.
func (b *Bus) Pulses() []Pulse {
	var pulses []Pulse
	for i := 0; i < len(b.edges); i++ {
		if b.edges[i].Level != hal.High {
			continue
		}
		start := b.edges[i].At
		j := i + 1
		for j < len(b.edges) && b.edges[j].Level == hal.High {
			j++
		}
		if j >= len(b.edges) {
			pulses = append(pulses, Pulse{High: b.now - start})
			break
		}
		fall := b.edges[j].At
		end := b.now
		for k := j + 1; k < len(b.edges); k++ {
			if b.edges[k].Level == hal.High {
				end = b.edges[k].At
				break
			}
		}
		pulses = append(pulses, Pulse{High: fall - start, Low: end - fall})
		i = j
	}
	return pulses
}

// ResetTx clears the transmit recording.
func (b *Bus) ResetTx() {
	b.edges = nil
}

func (b *Bus) lineLevel() hal.Level {
	for b.segIdx < len(b.segments) && b.rxPos >= b.segStart+b.segments[b.segIdx].Duration {
		b.segStart += b.segments[b.segIdx].Duration
		b.segIdx++
	}
	if b.segIdx >= len(b.segments) {
		return b.IdleLevel
	}
	return b.segments[b.segIdx].Level
}
