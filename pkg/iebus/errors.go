package iebus

import (
	"errors"
	"fmt"
)

var (
	// ErrDisabled indicates a read or write on a disabled controller.
	ErrDisabled = errors.New("controller disabled")
	// ErrNotStartBit indicates the first pulse was not a start bit.
	ErrNotStartBit = errors.New("not a start bit")
	// ErrTimeout indicates no level transition within the wait deadline.
	ErrTimeout = errors.New("timeout waiting for bus transition")
	// ErrBusBusy indicates the bus never became free before a write.
	ErrBusBusy = errors.New("bus busy")
	// ErrInvalidMessage indicates a message with out of range fields.
	ErrInvalidMessage = errors.New("invalid message")
)

// ParityError is a parity mismatch on a received field.
type ParityError struct {
	Field Field
	// Index is the data byte index, only meaningful for FieldData.
	Index int
}

// Error implements error.
func (e *ParityError) Error() string {
	return e.Field.describe(e.Index) + " parity error"
}

// HandshakeError is a NAK from the peer for a transmitted field.
type HandshakeError struct {
	Field Field
	Index int
}

// Error implements error.
func (e *HandshakeError) Error() string {
	return "no ACK for " + e.Field.describe(e.Index)
}

// IsParityError reports whether err is a ParityError.
func IsParityError(err error) bool {
	var pe *ParityError
	return errors.As(err, &pe)
}

// IsHandshakeError reports whether err is a HandshakeError.
func IsHandshakeError(err error) bool {
	var he *HandshakeError
	return errors.As(err, &he)
}

func invalidMessage(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidMessage}, args...)...)
}
