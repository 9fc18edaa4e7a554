// Package iebus implements an IEBus node: a pulse-level bit codec (Driver)
// and a link-layer framer (Controller) on top of it.
package iebus

// IEBus is a single-wire master/slave bus. Every bit is an active pulse
// whose width encodes the symbol, and every field after the master address
// may be acknowledged by the addressed slave. Frames are
//
//	start | broadcast | master(12)+P | slave(12)+P+A | control(4)+P+A |
//	length(8)+P+A | data(8)+P+A ...
//
// where P is the field parity and A the acknowledge slot.
//
// The Controller is not safe for concurrent use. A single goroutine should
// own it, see package node.
