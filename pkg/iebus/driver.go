package iebus

import (
	"fmt"

	"github.com/robotalks/iebus.go/pkg/hal"
)

// Driver is the physical bit codec. It drives the transmit and enable
// pins and times pulses on the receive pin.
//
// Receive timing busy-polls the HAL clock; transmit timing uses fixed
// delays. Every wait for a level change is bounded by WaitTimeoutUs.
type Driver struct {
	// WaitTimeoutUs bounds a single wait for a level transition.
	WaitTimeoutUs int64

	hal     hal.HAL
	rxPin   hal.Pin
	txPin   hal.Pin
	enPin   hal.Pin
	enabled bool
}

// NewDriver configures the pins and creates a Driver.
func NewDriver(h hal.HAL, rx, tx, enable hal.Pin) (*Driver, error) {
	if err := h.ConfigurePin(rx, hal.Input, hal.PullNone); err != nil {
		return nil, fmt.Errorf("configure rx pin %d: %w", rx, err)
	}
	if err := h.ConfigurePin(tx, hal.Output, hal.PullDown); err != nil {
		return nil, fmt.Errorf("configure tx pin %d: %w", tx, err)
	}
	if err := h.ConfigurePin(enable, hal.Output, hal.PullDown); err != nil {
		return nil, fmt.Errorf("configure enable pin %d: %w", enable, err)
	}
	h.WritePin(tx, hal.Low)
	h.WritePin(enable, hal.Low)
	return &Driver{
		WaitTimeoutUs: DefaultWaitTimeoutUs,
		hal:           h,
		rxPin:         rx,
		txPin:         tx,
		enPin:         enable,
	}, nil
}

// IsEnabled reports the transceiver gate state.
func (d *Driver) IsEnabled() bool {
	return d.enabled
}

// Enable opens the transceiver gate.
func (d *Driver) Enable() {
	d.enabled = true
	d.hal.WritePin(d.enPin, hal.High)
}

// Disable closes the transceiver gate.
func (d *Driver) Disable() {
	d.enabled = false
	d.hal.WritePin(d.enPin, hal.Low)
}

func (d *Driver) isBusHigh() bool {
	return d.hal.ReadPin(d.rxPin) == hal.High
}

// IsBusFree reports whether the line is idle now and stays idle for a
// whole data bit period.
func (d *Driver) IsBusFree() bool {
	if d.isBusHigh() {
		return false
	}
	start := d.hal.NowMicros()
	for !d.isBusHigh() {
		if d.hal.NowMicros()-start >= DataBitTotalUs {
			return true
		}
	}
	return false
}

// WaitBusFree polls IsBusFree until it succeeds or timeoutUs elapses.
func (d *Driver) WaitBusFree(timeoutUs int64) error {
	start := d.hal.NowMicros()
	for !d.IsBusFree() {
		if d.hal.NowMicros()-start >= timeoutUs {
			return ErrBusBusy
		}
		d.hal.DelayMicros(1)
	}
	return nil
}

func (d *Driver) waitLevel(level hal.Level) error {
	start := d.hal.NowMicros()
	for d.hal.ReadPin(d.rxPin) != level {
		if d.hal.NowMicros()-start > d.WaitTimeoutUs {
			return ErrTimeout
		}
	}
	return nil
}

// receivePulse measures the width of the next active pulse.
func (d *Driver) receivePulse() (int64, error) {
	if err := d.waitLevel(hal.High); err != nil {
		return 0, err
	}
	start := d.hal.NowMicros()
	if err := d.waitLevel(hal.Low); err != nil {
		return 0, err
	}
	return d.hal.NowMicros() - start, nil
}

// ReceiveStartBit reports whether the next pulse is a start bit.
func (d *Driver) ReceiveStartBit() (bool, error) {
	width, err := d.receivePulse()
	if err != nil {
		return false, err
	}
	return isStartBitWidth(width), nil
}

// ReceiveBit receives a single data bit.
func (d *Driver) ReceiveBit() (uint8, error) {
	width, err := d.receivePulse()
	if err != nil {
		return 0, err
	}
	return decodeBit(width), nil
}

// ReceiveBits receives n bits, most significant first.
func (d *Driver) ReceiveBits(n int) (uint16, error) {
	var value uint16
	for i := 0; i < n; i++ {
		bit, err := d.ReceiveBit()
		if err != nil {
			return value, err
		}
		value = value<<1 | uint16(bit)
	}
	return value, nil
}

// ReceiveAck receives an acknowledge slot. Symbol 0 is ACK.
func (d *Driver) ReceiveAck() (Ack, error) {
	bit, err := d.ReceiveBit()
	if err != nil {
		return NAK, err
	}
	if bit == 0 {
		return ACK, nil
	}
	return NAK, nil
}

func (d *Driver) transmitPulse(highUs, lowUs int64) {
	d.hal.WritePin(d.txPin, hal.High)
	d.hal.DelayMicros(highUs)
	d.hal.WritePin(d.txPin, hal.Low)
	d.hal.DelayMicros(lowUs)
}

// TransmitStartBit sends a start bit.
func (d *Driver) TransmitStartBit() {
	d.transmitPulse(StartBitHighUs, StartBitLowUs)
}

// TransmitBit sends a single data bit.
func (d *Driver) TransmitBit(bit uint8) {
	if bit&1 != 0 {
		d.transmitPulse(DataBit1HighUs, DataBit1LowUs)
	} else {
		d.transmitPulse(DataBit0HighUs, DataBit0LowUs)
	}
}

// TransmitBits sends the low n bits of value, most significant first.
func (d *Driver) TransmitBits(value uint16, n int) {
	for i := n - 1; i >= 0; i-- {
		d.TransmitBit(uint8(value>>uint(i)) & 1)
	}
}

// SendAck sends an acknowledge slot.
func (d *Driver) SendAck(ack Ack) {
	if ack == ACK {
		d.TransmitBit(0)
	} else {
		d.TransmitBit(1)
	}
}
