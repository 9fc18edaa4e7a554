package iebus

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/robotalks/iebus.go/pkg/hal"
)

// TagController is the event tag used by Controller.
const TagController = "iebus.controller"

// Stats counts controller transactions.
type Stats struct {
	FramesRead    uint64
	FramesWritten uint64
	ParityErrors  uint64
	Rejected      uint64
	Timeouts      uint64
	BusBusy       uint64
}

// Controller is the link-layer framer. It owns a Driver and runs whole
// read and write transactions over it.
type Controller struct {
	address          Address
	driver           *Driver
	sink             EventSink
	busFreeTimeoutUs int64
	stats            Stats
}

// Option configures a Controller.
type Option func(*Controller)

// WithEventSink sets the receiver of diagnostic events.
func WithEventSink(sink EventSink) Option {
	return func(c *Controller) { c.sink = sink }
}

// WithWaitTimeout bounds each wait for a bus level transition.
func WithWaitTimeout(us int64) Option {
	return func(c *Controller) {
		if us > 0 {
			c.driver.WaitTimeoutUs = us
		}
	}
}

// WithBusFreeTimeout bounds the wait for an idle bus before writing.
func WithBusFreeTimeout(us int64) Option {
	return func(c *Controller) {
		if us > 0 {
			c.busFreeTimeoutUs = us
		}
	}
}

// NewController creates a Controller on the given pins, answering for
// the local unit address.
func NewController(h hal.HAL, rx, tx, enable hal.Pin, address Address, opts ...Option) (*Controller, error) {
	if address > MaxAddress {
		return nil, fmt.Errorf("local address %#x out of range", uint16(address))
	}
	driver, err := NewDriver(h, rx, tx, enable)
	if err != nil {
		return nil, err
	}
	c := &Controller{
		address:          address,
		driver:           driver,
		sink:             GlogSink{},
		busFreeTimeoutUs: DefaultBusFreeTimeoutUs,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Address returns the local unit address.
func (c *Controller) Address() Address {
	return c.address
}

// Driver returns the underlying bit codec.
func (c *Controller) Driver() *Driver {
	return c.driver
}

// Enable opens the transceiver gate.
func (c *Controller) Enable() { c.driver.Enable() }

// Disable closes the transceiver gate.
func (c *Controller) Disable() { c.driver.Disable() }

// IsEnabled reports the transceiver gate state.
func (c *Controller) IsEnabled() bool { return c.driver.IsEnabled() }

// Stats returns a snapshot of the counters. Safe to call from any goroutine.
func (c *Controller) Stats() Stats {
	return Stats{
		FramesRead:    atomic.LoadUint64(&c.stats.FramesRead),
		FramesWritten: atomic.LoadUint64(&c.stats.FramesWritten),
		ParityErrors:  atomic.LoadUint64(&c.stats.ParityErrors),
		Rejected:      atomic.LoadUint64(&c.stats.Rejected),
		Timeouts:      atomic.LoadUint64(&c.stats.Timeouts),
		BusBusy:       atomic.LoadUint64(&c.stats.BusBusy),
	}
}

// ReadMessage receives one frame. Any error means no message: the frame
// is dropped whole and the controller is ready for the next one.
// ctx is checked between fields only.
func (c *Controller) ReadMessage(ctx context.Context) (Message, error) {
	msg, started, err := c.readMessage(ctx)
	if err != nil {
		if started {
			c.account(err)
		}
		return Message{}, err
	}
	atomic.AddUint64(&c.stats.FramesRead, 1)
	c.logf(SeverityInfo, "received %s", msg)
	return msg, nil
}

// readMessage reports started once a start bit has been seen.
func (c *Controller) readMessage(ctx context.Context) (msg Message, started bool, err error) {
	if !c.IsEnabled() {
		c.logf(SeverityError, "Controller is disabled")
		return msg, false, ErrDisabled
	}
	isStart, err := c.driver.ReceiveStartBit()
	if err != nil {
		return msg, false, err
	}
	if !isStart {
		return msg, false, ErrNotStartBit
	}
	started = true

	bit, err := c.driver.ReceiveBit()
	if err != nil {
		return msg, started, err
	}
	msg.Broadcast = BroadcastType(bit)

	if err = ctx.Err(); err != nil {
		return msg, started, err
	}
	master, err := c.receiveValue(FieldMaster, 0)
	if err != nil {
		return msg, started, err
	}
	msg.Master = Address(master)

	slave, err := c.exchangeField(ctx, &msg, FieldSlave, 0)
	if err != nil {
		return msg, started, err
	}
	msg.Slave = Address(slave)

	control, err := c.exchangeField(ctx, &msg, FieldControl, 0)
	if err != nil {
		return msg, started, err
	}
	msg.Control = uint8(control)

	length, err := c.exchangeField(ctx, &msg, FieldLength, 0)
	if err != nil {
		return msg, started, err
	}
	msg.Data = make([]byte, dataLengthFromWire(length))

	for i := range msg.Data {
		b, err := c.exchangeField(ctx, &msg, FieldData, i)
		if err != nil {
			return msg, started, err
		}
		msg.Data[i] = byte(b)
	}
	return msg, started, nil
}

// receiveValue receives a field value and its parity bit.
func (c *Controller) receiveValue(f Field, index int) (uint16, error) {
	value, err := c.driver.ReceiveBits(f.Width())
	if err != nil {
		return 0, err
	}
	parity, err := c.driver.ReceiveBit()
	if err != nil {
		return 0, err
	}
	if !CheckParity(value, f.Width(), parity) {
		perr := &ParityError{Field: f, Index: index}
		c.logf(SeverityWarning, "%s", perr)
		return value, perr
	}
	return value, nil
}

// exchangeField receives a handshake-eligible field and answers the
// acknowledge slot when the frame is addressed to this unit and the peer
// requested an answer.
func (c *Controller) exchangeField(ctx context.Context, msg *Message, f Field, index int) (uint16, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	value, valueErr := c.receiveValue(f, index)
	if valueErr != nil && !IsParityError(valueErr) {
		return 0, valueErr
	}
	request, err := c.driver.ReceiveAck()
	if err != nil {
		return 0, err
	}
	slave := msg.Slave
	if f == FieldSlave {
		slave = Address(value)
	}
	owed := request == ACK && msg.Broadcast == ForDevice && slave == c.address
	if valueErr != nil {
		if owed {
			c.driver.SendAck(NAK)
		}
		return 0, valueErr
	}
	if owed {
		c.driver.SendAck(ACK)
	}
	return value, nil
}

// WriteMessage transmits one frame. It fails without bus activity when
// the controller is disabled or the message is invalid, and aborts at the
// first field the peer rejects. There is no retry.
// ctx is checked between fields only.
func (c *Controller) WriteMessage(ctx context.Context, msg Message) error {
	err := c.writeMessage(ctx, msg)
	if err != nil {
		c.account(err)
		return err
	}
	atomic.AddUint64(&c.stats.FramesWritten, 1)
	c.logf(SeverityInfo, "sent %s", msg)
	return nil
}

func (c *Controller) writeMessage(ctx context.Context, msg Message) error {
	if !c.IsEnabled() {
		c.logf(SeverityError, "Controller is disabled")
		return ErrDisabled
	}
	if err := msg.Validate(); err != nil {
		c.logf(SeverityError, "%v", err)
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.driver.WaitBusFree(c.busFreeTimeoutUs); err != nil {
		c.logf(SeverityWarning, "bus not free after %dus", c.busFreeTimeoutUs)
		return err
	}

	c.driver.TransmitStartBit()
	c.driver.TransmitBit(uint8(msg.Broadcast))
	c.transmitValue(FieldMaster, uint16(msg.Master))

	if err := c.sendField(ctx, FieldSlave, 0, uint16(msg.Slave)); err != nil {
		return err
	}
	if err := c.sendField(ctx, FieldControl, 0, uint16(msg.Control)); err != nil {
		return err
	}
	if err := c.sendField(ctx, FieldLength, 0, dataLengthToWire(len(msg.Data))); err != nil {
		return err
	}
	for i, b := range msg.Data {
		if err := c.sendField(ctx, FieldData, i, uint16(b)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) transmitValue(f Field, value uint16) {
	c.driver.TransmitBits(value, f.Width())
	c.driver.TransmitBit(Parity(value, f.Width()))
}

// sendField transmits a field with parity and waits for the acknowledge.
func (c *Controller) sendField(ctx context.Context, f Field, index int, value uint16) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.transmitValue(f, value)
	ack, err := c.driver.ReceiveAck()
	if err != nil {
		return err
	}
	if ack == NAK {
		herr := &HandshakeError{Field: f, Index: index}
		c.logf(SeverityError, "%s", herr)
		return herr
	}
	return nil
}

func (c *Controller) account(err error) {
	switch {
	case IsParityError(err):
		atomic.AddUint64(&c.stats.ParityErrors, 1)
	case IsHandshakeError(err):
		atomic.AddUint64(&c.stats.Rejected, 1)
	case err == ErrTimeout:
		atomic.AddUint64(&c.stats.Timeouts, 1)
		c.logf(SeverityWarning, "%v", err)
	case err == ErrBusBusy:
		atomic.AddUint64(&c.stats.BusBusy, 1)
	}
}

func (c *Controller) logf(severity Severity, format string, args ...interface{}) {
	if c.sink != nil {
		c.sink.LogEvent(Event{Severity: severity, Tag: TagController, Text: fmt.Sprintf(format, args...)})
	}
}

// dataLengthFromWire maps the 8-bit wire length to 1..256.
func dataLengthFromWire(v uint16) int {
	if v == 0 {
		return MaxDataLength
	}
	return int(v)
}

// dataLengthToWire is the inverse of dataLengthFromWire.
func dataLengthToWire(n int) uint16 {
	if n == MaxDataLength {
		return 0
	}
	return uint16(n)
}
