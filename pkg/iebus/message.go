package iebus

import (
	"fmt"
	"strconv"
	"strings"
)

// Address is a 12-bit unit address.
type Address uint16

// Field limits.
const (
	MaxAddress    Address = 0xfff
	MaxControl    uint8   = 0xf
	MaxDataLength         = 256
)

// BroadcastType tells whether a frame targets every unit or one unit.
type BroadcastType uint8

// Broadcast types, values are the wire bit.
const (
	Broadcast BroadcastType = 0
	ForDevice BroadcastType = 1
)

// String implements fmt.Stringer.
func (t BroadcastType) String() string {
	switch t {
	case Broadcast:
		return "B"
	case ForDevice:
		return "D"
	}
	return "U"
}

// Ack is the value of an acknowledge slot.
type Ack uint8

// Acknowledge values, values are the wire bit.
const (
	ACK Ack = 0
	NAK Ack = 1
)

// String implements fmt.Stringer.
func (a Ack) String() string {
	if a == ACK {
		return "ACK"
	}
	return "NAK"
}

// Message is one bus frame.
type Message struct {
	Broadcast BroadcastType
	Master    Address
	Slave     Address
	Control   uint8
	Data      []byte
}

// DataLength returns the logical data length.
func (m Message) DataLength() int {
	return len(m.Data)
}

// Validate checks all fields are in range.
func (m Message) Validate() error {
	if m.Broadcast != Broadcast && m.Broadcast != ForDevice {
		return invalidMessage("broadcast type %d", m.Broadcast)
	}
	if m.Master > MaxAddress {
		return invalidMessage("master address %#x out of range", uint16(m.Master))
	}
	if m.Slave > MaxAddress {
		return invalidMessage("slave address %#x out of range", uint16(m.Slave))
	}
	if m.Control > MaxControl {
		return invalidMessage("control %#x out of range", m.Control)
	}
	if n := len(m.Data); n < 1 || n > MaxDataLength {
		return invalidMessage("data length %d out of range", n)
	}
	return nil
}

// String renders the frame as "D M0x0456 S0x0123 C0x02 L1 [AB]".
func (m Message) String() string {
	hex := make([]string, len(m.Data))
	for i, b := range m.Data {
		hex[i] = fmt.Sprintf("%02X", b)
	}
	return fmt.Sprintf("%s M0x%04x S0x%04x C0x%02x L%d [%s]",
		m.Broadcast, uint16(m.Master), uint16(m.Slave), m.Control, len(m.Data), strings.Join(hex, " "))
}

// ParseMessage parses the format produced by String. M, S and C values and
// the data bytes are hex with an optional 0x prefix, L is decimal. The L
// token is optional; when present it must match the payload length.
func ParseMessage(s string) (Message, error) {
	var msg Message
	head, payload := s, ""
	if open := strings.IndexByte(s, '['); open >= 0 {
		end := strings.LastIndexByte(s, ']')
		if end < open {
			return msg, fmt.Errorf("unterminated payload in %q", s)
		}
		head, payload = s[:open], s[open+1:end]
	}
	tokens := strings.Fields(head)
	if len(tokens) == 0 {
		return msg, fmt.Errorf("empty message")
	}
	switch strings.ToUpper(tokens[0]) {
	case "B":
		msg.Broadcast = Broadcast
	case "D":
		msg.Broadcast = ForDevice
	default:
		return msg, fmt.Errorf("unknown broadcast type %q", tokens[0])
	}
	length := -1
	for _, tok := range tokens[1:] {
		if len(tok) < 2 {
			return msg, fmt.Errorf("bad token %q", tok)
		}
		val, err := parseTokenValue(tok)
		if err != nil {
			return msg, fmt.Errorf("bad token %q: %v", tok, err)
		}
		switch tok[0] {
		case 'M', 'm':
			msg.Master = Address(val)
		case 'S', 's':
			msg.Slave = Address(val)
		case 'C', 'c':
			if val > uint64(MaxControl) {
				return msg, fmt.Errorf("control %q out of range", tok)
			}
			msg.Control = uint8(val)
		case 'L', 'l':
			length = int(val)
		default:
			return msg, fmt.Errorf("unknown token %q", tok)
		}
	}
	for _, tok := range strings.Fields(payload) {
		val, err := parseHex(tok, 8)
		if err != nil {
			return msg, fmt.Errorf("bad data byte %q: %v", tok, err)
		}
		msg.Data = append(msg.Data, byte(val))
	}
	if length >= 0 && length != len(msg.Data) {
		return msg, fmt.Errorf("length %d does not match %d data bytes", length, len(msg.Data))
	}
	return msg, msg.Validate()
}

// parseTokenValue parses the value of an M, S, C or L token.
func parseTokenValue(tok string) (uint64, error) {
	switch tok[0] {
	case 'L', 'l':
		return strconv.ParseUint(tok[1:], 10, 16)
	}
	return parseHex(tok[1:], 16)
}

func parseHex(s string, bitSize int) (uint64, error) {
	s = strings.ToLower(s)
	if !strings.HasPrefix(s, "0x") {
		return strconv.ParseUint(s, 16, bitSize)
	}
	return strconv.ParseUint(s[2:], 16, bitSize)
}
