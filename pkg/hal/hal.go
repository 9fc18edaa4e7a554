// Package hal defines the narrow hardware capability consumed by the bus
// codec: pin configuration, pin levels, a monotonic microsecond clock and
// fixed-duration delays.
package hal

import "fmt"

// Pin identifies a hardware pin. The meaning of the number is up to the
// HAL implementation.
type Pin uint8

// Level is the logic level of a pin.
type Level bool

// Pin levels.
const (
	Low  Level = false
	High Level = true
)

// String implements fmt.Stringer.
func (l Level) String() string {
	if l {
		return "high"
	}
	return "low"
}

// Direction is the pin direction.
type Direction int

// Pin directions.
const (
	Input Direction = iota
	Output
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	switch d {
	case Input:
		return "input"
	case Output:
		return "output"
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

// Pull is the pull resistor mode of a pin.
type Pull int

// Pull modes.
const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// String implements fmt.Stringer.
func (p Pull) String() string {
	switch p {
	case PullNone:
		return "none"
	case PullUp:
		return "up"
	case PullDown:
		return "down"
	}
	return fmt.Sprintf("pull(%d)", int(p))
}

// HAL is the hardware capability.
type HAL interface {
	// ConfigurePin sets the direction and pull mode of a pin.
	ConfigurePin(pin Pin, dir Direction, pull Pull) error
	// ReadPin reads the current level of an input pin.
	ReadPin(pin Pin) Level
	// WritePin drives an output pin.
	WritePin(pin Pin, level Level)
	// NowMicros returns a monotonic timestamp in microseconds.
	NowMicros() int64
	// DelayMicros blocks for the given number of microseconds.
	DelayMicros(us int64)
}
