package iebus

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/iebus.go/pkg/hal"
	"github.com/robotalks/iebus.go/pkg/hal/sim"
)

func TestNewControllerAddressRange(t *testing.T) {
	b := sim.New(testRx, testTx)
	_, err := NewController(b, testRx, testTx, testEnable, 0x1000)
	require.Error(t, err)
	c, err := NewController(b, testRx, testTx, testEnable, MaxAddress)
	require.NoError(t, err)
	require.Equal(t, MaxAddress, c.Address())
	require.False(t, c.IsEnabled())
}

func TestReadForDeviceFrame(t *testing.T) {
	env := newControllerTestEnv(t, 0x123)
	env.feed(newFrameScript().idle(10).
		header(ForDevice, 0x456).
		field(0x123, 12).ack(ACK).
		field(0x2, 4).ack(ACK).
		field(1, 8).ack(ACK).
		field(0xab, 8).ack(ACK).
		script())

	msg, err := env.ctl.ReadMessage(context.Background())
	require.NoError(t, err)
	require.Equal(t, Message{
		Broadcast: ForDevice,
		Master:    0x456,
		Slave:     0x123,
		Control:   0x2,
		Data:      []byte{0xab},
	}, msg)
	require.Equal(t, "0000", string(env.sentBits()))
	require.Equal(t, uint64(1), env.ctl.Stats().FramesRead)
	require.True(t, env.events.has(SeverityInfo))
}

func TestReadSlaveParityError(t *testing.T) {
	env := newControllerTestEnv(t, 0x123)
	tail := newFrameScript().
		field(0x2, 4).ack(ACK).
		field(1, 8).ack(ACK).
		field(0xab, 8).ack(ACK).
		script()
	env.feed(newFrameScript().idle(10).
		header(ForDevice, 0x456).
		badField(0x123, 12).ack(ACK).
		script(), tail)

	msg, err := env.ctl.ReadMessage(context.Background())
	require.Error(t, err)
	require.Equal(t, Message{}, msg)
	require.True(t, IsParityError(err))
	var perr *ParityError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, FieldSlave, perr.Field)
	require.Equal(t, "1", string(env.sentBits()))
	require.True(t, env.bus.Remaining() >= tail.Duration())
	require.Equal(t, uint64(1), env.ctl.Stats().ParityErrors)
	require.True(t, env.events.has(SeverityWarning))
}

func TestReadLengthZeroMeans256(t *testing.T) {
	env := newControllerTestEnv(t, 0x123)
	f := newFrameScript().idle(10).
		header(ForDevice, 0x456).
		field(0x123, 12).ack(ACK).
		field(0x2, 4).ack(ACK).
		field(0, 8).ack(ACK)
	for i := 0; i < MaxDataLength; i++ {
		f.field(uint16(i), 8).ack(ACK)
	}
	env.feed(f.script())

	msg, err := env.ctl.ReadMessage(context.Background())
	require.NoError(t, err)
	require.Equal(t, MaxDataLength, msg.DataLength())
	for i, b := range msg.Data {
		require.Equal(t, byte(i), b)
	}
	require.Equal(t, strings.Repeat("0", 3+MaxDataLength), string(env.sentBits()))
}

func TestReadAddressingFilter(t *testing.T) {
	testCases := []struct {
		name      string
		broadcast BroadcastType
		slave     Address
		request   Ack
	}{
		{"other-slave", ForDevice, 0x124, ACK},
		{"broadcast", Broadcast, 0x123, ACK},
		{"no-request", ForDevice, 0x123, NAK},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newControllerTestEnv(t, 0x123)
			env.feed(newFrameScript().idle(10).
				header(tc.broadcast, 0x456).
				field(uint16(tc.slave), 12).ack(tc.request).
				field(0x2, 4).ack(tc.request).
				field(2, 8).ack(tc.request).
				field(0x11, 8).ack(tc.request).
				field(0x22, 8).ack(tc.request).
				script())
			msg, err := env.ctl.ReadMessage(context.Background())
			require.NoError(t, err)
			require.Equal(t, tc.slave, msg.Slave)
			require.Equal(t, []byte{0x11, 0x22}, msg.Data)
			require.Empty(t, env.bus.Pulses())
		})
	}
}

func TestReadAbortsOnParityFailure(t *testing.T) {
	type field struct {
		value uint16
		width int
	}
	fields := []field{
		{0x456, 12}, // master
		{0x123, 12}, // slave
		{0x2, 4},    // control
		{2, 8},      // length
		{0x11, 8},   // data[0]
		{0x22, 8},   // data[1]
	}
	expected := []struct {
		field Field
		index int
	}{
		{FieldMaster, 0},
		{FieldSlave, 0},
		{FieldControl, 0},
		{FieldLength, 0},
		{FieldData, 0},
		{FieldData, 1},
	}
	for bad := range fields {
		t.Run(expected[bad].field.describe(expected[bad].index), func(t *testing.T) {
			env := newControllerTestEnv(t, 0x123)
			head := newFrameScript().idle(10).start().bit(uint8(ForDevice))
			tail := newFrameScript()
			for i, f := range fields {
				s := head
				if i > bad {
					s = tail
				}
				if i == bad {
					s.badField(f.value, f.width)
				} else {
					s.field(f.value, f.width)
				}
				if i > 0 {
					s.ack(ACK)
				}
			}
			env.feed(head.script(), tail.script())

			_, err := env.ctl.ReadMessage(context.Background())
			var perr *ParityError
			require.True(t, errors.As(err, &perr))
			require.Equal(t, expected[bad].field, perr.Field)
			require.Equal(t, expected[bad].index, perr.Index)

			remaining := env.bus.Remaining()
			require.True(t, remaining >= tail.script().Duration())
			require.True(t, remaining < tail.script().Duration()+DataBitTotalUs)

			sent := string(env.sentBits())
			if bad == 0 {
				require.Empty(t, sent)
			} else {
				require.Equal(t, strings.Repeat("0", bad-1)+"1", sent)
			}
		})
	}
}

func TestReadPreconditions(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		env := newControllerTestEnv(t, 0x123)
		s := newFrameScript().idle(10).header(ForDevice, 0x456).script()
		env.feed(s)
		env.ctl.Disable()
		_, err := env.ctl.ReadMessage(context.Background())
		require.Equal(t, ErrDisabled, err)
		require.Equal(t, s.Duration(), env.bus.Remaining())
		require.Empty(t, env.bus.Pulses())
		require.True(t, env.events.has(SeverityError))
	})
	t.Run("not-a-start-bit", func(t *testing.T) {
		env := newControllerTestEnv(t, 0x123)
		env.feed(newFrameScript().idle(10).bit(0).script())
		_, err := env.ctl.ReadMessage(context.Background())
		require.Equal(t, ErrNotStartBit, err)
		require.Empty(t, env.bus.Pulses())
	})
	t.Run("idle-bus", func(t *testing.T) {
		env := newControllerTestEnv(t, 0x123)
		_, err := env.ctl.ReadMessage(context.Background())
		require.Equal(t, ErrTimeout, err)
		require.Equal(t, uint64(0), env.ctl.Stats().Timeouts)
	})
	t.Run("truncated-frame", func(t *testing.T) {
		env := newControllerTestEnv(t, 0x123)
		env.feed(newFrameScript().idle(10).header(ForDevice, 0x456).script())
		_, err := env.ctl.ReadMessage(context.Background())
		require.Equal(t, ErrTimeout, err)
		require.Equal(t, uint64(1), env.ctl.Stats().Timeouts)
	})
	t.Run("canceled", func(t *testing.T) {
		env := newControllerTestEnv(t, 0x123)
		env.feed(newFrameScript().idle(10).header(ForDevice, 0x456).
			field(0x123, 12).ack(ACK).script())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := env.ctl.ReadMessage(ctx)
		require.Equal(t, context.Canceled, err)
		require.Empty(t, env.bus.Pulses())
	})
}

func TestReadNextFrameAfterError(t *testing.T) {
	env := newControllerTestEnv(t, 0x123)
	env.feed(newFrameScript().idle(10).
		header(ForDevice, 0x456).
		badField(0x123, 12).ack(ACK).
		idle(200).
		header(Broadcast, 0x456).
		field(0xfff, 12).ack(NAK).
		field(0x0, 4).ack(NAK).
		field(1, 8).ack(NAK).
		field(0x7f, 8).ack(NAK).
		script())

	_, err := env.ctl.ReadMessage(context.Background())
	require.True(t, IsParityError(err))
	msg, err := env.ctl.ReadMessage(context.Background())
	require.NoError(t, err)
	require.Equal(t, "B M0x0456 S0x0fff C0x00 L1 [7F]", msg.String())
}

// writeHeader is the expected transmission up to and including the master field.
func writeHeader(bt BroadcastType, master Address) string {
	return "s" + bitString(uint16(bt), 1) + fieldString(uint16(master), 12)
}

func TestWriteMessage(t *testing.T) {
	env := newControllerTestEnv(t, 0x456)
	env.feed(newFrameScript().idle(50).acks(ACK, 4).script())
	msg := Message{Broadcast: ForDevice, Master: 0x456, Slave: 0x123, Control: 0x2, Data: []byte{0xab}}

	require.NoError(t, env.ctl.WriteMessage(context.Background(), msg))
	require.Equal(t,
		writeHeader(ForDevice, 0x456)+
			fieldString(0x123, 12)+
			fieldString(0x2, 4)+
			fieldString(1, 8)+
			fieldString(0xab, 8),
		string(env.sentBits()))
	require.Equal(t, uint64(1), env.ctl.Stats().FramesWritten)
}

func TestWriteMaxLengthEncodesZero(t *testing.T) {
	env := newControllerTestEnv(t, 0x456)
	env.feed(newFrameScript().idle(50).acks(ACK, 3+MaxDataLength).script())
	data := make([]byte, MaxDataLength)
	for i := range data {
		data[i] = byte(i)
	}
	msg := Message{Broadcast: ForDevice, Master: 0x456, Slave: 0x123, Control: 0xf, Data: data}

	require.NoError(t, env.ctl.WriteMessage(context.Background(), msg))
	sent := string(env.sentBits())
	offset := len(writeHeader(ForDevice, 0x456)) + 13 + 5
	require.Equal(t, "000000000", sent[offset:offset+9])

	var expected strings.Builder
	expected.WriteString(writeHeader(ForDevice, 0x456))
	expected.WriteString(fieldString(0x123, 12))
	expected.WriteString(fieldString(0xf, 4))
	expected.WriteString(fieldString(0, 8))
	for _, b := range data {
		expected.WriteString(fieldString(uint16(b), 8))
	}
	require.Equal(t, expected.String(), sent)
}

func TestWriteControlRejected(t *testing.T) {
	env := newControllerTestEnv(t, 0x456)
	rest := newFrameScript().acks(ACK, 2).script()
	env.feed(newFrameScript().idle(50).ack(ACK).ack(NAK).script(), rest)
	msg := Message{Broadcast: ForDevice, Master: 0x456, Slave: 0x123, Control: 0x2, Data: []byte{0xab}}

	err := env.ctl.WriteMessage(context.Background(), msg)
	require.True(t, IsHandshakeError(err))
	var herr *HandshakeError
	require.True(t, errors.As(err, &herr))
	require.Equal(t, FieldControl, herr.Field)

	sent := string(env.sentBits())
	require.Equal(t, writeHeader(ForDevice, 0x456)+fieldString(0x123, 12)+fieldString(0x2, 4), sent)
	require.Equal(t, 1+1+13+13+5, len(sent))
	require.True(t, env.bus.Remaining() >= rest.Duration())
	require.Equal(t, uint64(1), env.ctl.Stats().Rejected)
	require.True(t, env.events.has(SeverityError))
}

func TestWriteAbortsOnReject(t *testing.T) {
	msg := Message{Broadcast: ForDevice, Master: 0x456, Slave: 0x123, Control: 0x2, Data: []byte{0x11, 0x22}}
	fields := []string{
		fieldString(0x123, 12),
		fieldString(0x2, 4),
		fieldString(2, 8),
		fieldString(0x11, 8),
		fieldString(0x22, 8),
	}
	expected := []struct {
		field Field
		index int
	}{
		{FieldSlave, 0},
		{FieldControl, 0},
		{FieldLength, 0},
		{FieldData, 0},
		{FieldData, 1},
	}
	for rejected := range fields {
		t.Run(expected[rejected].field.describe(expected[rejected].index), func(t *testing.T) {
			env := newControllerTestEnv(t, 0x456)
			env.feed(newFrameScript().idle(50).acks(ACK, rejected).ack(NAK).script())

			err := env.ctl.WriteMessage(context.Background(), msg)
			var herr *HandshakeError
			require.True(t, errors.As(err, &herr))
			require.Equal(t, expected[rejected].field, herr.Field)
			require.Equal(t, expected[rejected].index, herr.Index)
			require.Equal(t,
				writeHeader(ForDevice, 0x456)+strings.Join(fields[:rejected+1], ""),
				string(env.sentBits()))
		})
	}
}

func TestWritePreconditions(t *testing.T) {
	valid := Message{Broadcast: ForDevice, Master: 0x456, Slave: 0x123, Control: 0x2, Data: []byte{1}}

	t.Run("disabled", func(t *testing.T) {
		env := newControllerTestEnv(t, 0x456)
		env.ctl.Disable()
		require.Equal(t, ErrDisabled, env.ctl.WriteMessage(context.Background(), valid))
		require.Empty(t, env.bus.Pulses())
		require.Equal(t, hal.Low, env.bus.Level(testEnable))
	})
	t.Run("invalid", func(t *testing.T) {
		env := newControllerTestEnv(t, 0x456)
		err := env.ctl.WriteMessage(context.Background(), Message{Master: 0x456, Slave: 0x123})
		require.True(t, errors.Is(err, ErrInvalidMessage))
		require.Empty(t, env.bus.Pulses())
	})
	t.Run("bus-busy", func(t *testing.T) {
		env := newControllerTestEnv(t, 0x456, WithBusFreeTimeout(300))
		env.bus.IdleLevel = hal.High
		require.Equal(t, ErrBusBusy, env.ctl.WriteMessage(context.Background(), valid))
		require.Empty(t, env.bus.Pulses())
		require.Equal(t, uint64(1), env.ctl.Stats().BusBusy)
	})
	t.Run("no-acknowledge", func(t *testing.T) {
		env := newControllerTestEnv(t, 0x456, WithWaitTimeout(100))
		require.Equal(t, ErrTimeout, env.ctl.WriteMessage(context.Background(), valid))
		require.Equal(t, writeHeader(ForDevice, 0x456)+fieldString(0x123, 12), string(env.sentBits()))
		require.Equal(t, uint64(1), env.ctl.Stats().Timeouts)
	})
	t.Run("canceled", func(t *testing.T) {
		env := newControllerTestEnv(t, 0x456)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.Equal(t, context.Canceled, env.ctl.WriteMessage(ctx, valid))
		require.Empty(t, env.bus.Pulses())
	})
}
