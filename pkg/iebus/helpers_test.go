package iebus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/iebus.go/pkg/hal/sim"
)

const (
	testRx     = 4
	testTx     = 5
	testEnable = 6
)

// frameScript builds the receive line as a peer would drive it.
type frameScript struct {
	s *sim.Script
}

func newFrameScript() *frameScript {
	return &frameScript{s: sim.NewScript()}
}

func (f *frameScript) idle(us int64) *frameScript {
	f.s.Idle(us)
	return f
}

func (f *frameScript) start() *frameScript {
	f.s.Pulse(StartBitHighUs, StartBitLowUs)
	return f
}

func (f *frameScript) bit(b uint8) *frameScript {
	if b != 0 {
		f.s.Pulse(DataBit1HighUs, DataBit1LowUs)
	} else {
		f.s.Pulse(DataBit0HighUs, DataBit0LowUs)
	}
	return f
}

func (f *frameScript) bits(v uint16, n int) *frameScript {
	for i := n - 1; i >= 0; i-- {
		f.bit(uint8(v>>uint(i)) & 1)
	}
	return f
}

func (f *frameScript) field(v uint16, n int) *frameScript {
	return f.bits(v, n).bit(Parity(v, n))
}

func (f *frameScript) badField(v uint16, n int) *frameScript {
	return f.bits(v, n).bit(Parity(v, n) ^ 1)
}

func (f *frameScript) ack(a Ack) *frameScript {
	return f.bit(uint8(a))
}

func (f *frameScript) acks(a Ack, count int) *frameScript {
	for i := 0; i < count; i++ {
		f.ack(a)
	}
	return f
}

// header appends start, broadcast bit and the master field.
func (f *frameScript) header(bt BroadcastType, master Address) *frameScript {
	return f.start().bit(uint8(bt)).field(uint16(master), 12)
}

func (f *frameScript) script() *sim.Script {
	return f.s
}

type eventRecorder struct {
	events []Event
}

func (r *eventRecorder) LogEvent(ev Event) {
	r.events = append(r.events, ev)
}

func (r *eventRecorder) has(severity Severity) bool {
	for _, ev := range r.events {
		if ev.Severity == severity {
			return true
		}
	}
	return false
}

type controllerTestEnv struct {
	t      *testing.T
	bus    *sim.Bus
	ctl    *Controller
	events *eventRecorder
}

func newControllerTestEnv(t *testing.T, address Address, opts ...Option) *controllerTestEnv {
	env := &controllerTestEnv{
		t:      t,
		bus:    sim.New(testRx, testTx),
		events: &eventRecorder{},
	}
	ctl, err := NewController(env.bus, testRx, testTx, testEnable, address,
		append([]Option{WithEventSink(env.events)}, opts...)...)
	require.NoError(t, err)
	ctl.Enable()
	env.ctl = ctl
	return env
}

func (e *controllerTestEnv) feed(scripts ...*sim.Script) *controllerTestEnv {
	for _, s := range scripts {
		e.bus.Feed(s)
	}
	return e
}

// sentBits decodes the transmitted pulses. A start bit decodes as 's'.
func (e *controllerTestEnv) sentBits() []byte {
	var out []byte
	for _, p := range e.bus.Pulses() {
		switch {
		case isStartBitWidth(p.High):
			out = append(out, 's')
		default:
			out = append(out, '0'+decodeBit(p.High))
		}
	}
	return out
}

func bitString(v uint16, n int) string {
	b := make([]byte, n)
	for i := 0; i < n; i++ {
		b[i] = '0' + byte(v>>uint(n-1-i))&1
	}
	return string(b)
}

func fieldString(v uint16, n int) string {
	return bitString(v, n) + bitString(uint16(Parity(v, n)), 1)
}
