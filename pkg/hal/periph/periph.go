// Package periph implements hal.HAL on Linux GPIO through periph.io.
package periph

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/robotalks/iebus.go/pkg/hal"
)

var _ hal.HAL = (*GPIO)(nil)

var (
	initOnce sync.Once
	initErr  error

	// epoch is the clock origin of a GPIO created without New.
	epoch = time.Now()
)

// Init loads the periph.io host drivers once.
func Init() error {
	initOnce.Do(func() {
		_, initErr = host.Init()
	})
	return initErr
}

// GPIO drives pins by their "GPIO<n>" names.
type GPIO struct {
	start time.Time
	// pins is only written by ConfigurePin, before the bus is used.
	pins map[hal.Pin]gpio.PinIO

	writeErrOnce sync.Once
}

// PinName returns the registry name of a pin.
func PinName(pin hal.Pin) string {
	return "GPIO" + strconv.Itoa(int(pin))
}

// New initializes the host and creates a GPIO.
func New() (*GPIO, error) {
	if err := Init(); err != nil {
		return nil, fmt.Errorf("periph init: %w", err)
	}
	return &GPIO{start: time.Now(), pins: make(map[hal.Pin]gpio.PinIO)}, nil
}

// ConfigurePin implements hal.HAL.
func (g *GPIO) ConfigurePin(pin hal.Pin, dir hal.Direction, pull hal.Pull) error {
	p := gpioreg.ByName(PinName(pin))
	if p == nil {
		return fmt.Errorf("unknown pin %s", PinName(pin))
	}
	var err error
	switch dir {
	case hal.Input:
		err = p.In(pullOf(pull), gpio.NoEdge)
	case hal.Output:
		if pull != hal.PullNone {
			glog.Warningf("%s: pull %v ignored on output pin", PinName(pin), pull)
		}
		err = p.Out(gpio.Low)
	default:
		err = fmt.Errorf("unknown direction %v", dir)
	}
	if err != nil {
		return fmt.Errorf("configure %s: %w", PinName(pin), err)
	}
	g.pins[pin] = p
	return nil
}

// ReadPin implements hal.HAL. Unconfigured pins read Low.
func (g *GPIO) ReadPin(pin hal.Pin) hal.Level {
	p, ok := g.pins[pin]
	if !ok {
		return hal.Low
	}
	return hal.Level(p.Read())
}

// WritePin implements hal.HAL. Unconfigured pins are ignored.
func (g *GPIO) WritePin(pin hal.Pin, level hal.Level) {
	p, ok := g.pins[pin]
	if !ok {
		return
	}
	if err := p.Out(gpio.Level(level)); err != nil {
		g.writeErrOnce.Do(func() {
			glog.Errorf("write %s: %v", PinName(pin), err)
		})
	}
}

// NowMicros implements hal.HAL with a monotonic clock.
func (g *GPIO) NowMicros() int64 {
	start := g.start
	if start.IsZero() {
		start = epoch
	}
	return int64(time.Since(start) / time.Microsecond)
}

// DelayMicros implements hal.HAL by spinning on the clock.
func (g *GPIO) DelayMicros(us int64) {
	deadline := g.NowMicros() + us
	for g.NowMicros() < deadline {
	}
}

func pullOf(pull hal.Pull) gpio.Pull {
	switch pull {
	case hal.PullUp:
		return gpio.PullUp
	case hal.PullDown:
		return gpio.PullDown
	}
	return gpio.Float
}
