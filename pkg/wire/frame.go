// Package wire defines the serialized forms of bus frames exchanged with
// bridges, monitors and capture files. Messages are protobuf encoded, see
// frame.proto.
package wire

import (
	"fmt"
	"time"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/iebus.go/pkg/iebus"
)

// Frame is one bus frame.
type Frame struct {
	Broadcast bool   `protobuf:"varint,1,opt,name=broadcast,proto3" json:"broadcast,omitempty"`
	Master    uint32 `protobuf:"varint,2,opt,name=master,proto3" json:"master,omitempty"`
	Slave     uint32 `protobuf:"varint,3,opt,name=slave,proto3" json:"slave,omitempty"`
	Control   uint32 `protobuf:"varint,4,opt,name=control,proto3" json:"control,omitempty"`
	Data      []byte `protobuf:"bytes,5,opt,name=data,proto3" json:"data,omitempty"`
	Timestamp int64  `protobuf:"varint,6,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
}

func (m *Frame) Reset()         { *m = Frame{} }
func (m *Frame) String() string { return proto.CompactTextString(m) }
func (*Frame) ProtoMessage()    {}

// TxRequest asks a node to transmit a frame.
type TxRequest struct {
	Seq   uint32 `protobuf:"varint,1,opt,name=seq,proto3" json:"seq,omitempty"`
	Frame *Frame `protobuf:"bytes,2,opt,name=frame,proto3" json:"frame,omitempty"`
}

func (m *TxRequest) Reset()         { *m = TxRequest{} }
func (m *TxRequest) String() string { return proto.CompactTextString(m) }
func (*TxRequest) ProtoMessage()    {}

// TxResult reports the outcome of a TxRequest.
type TxResult struct {
	Seq   uint32 `protobuf:"varint,1,opt,name=seq,proto3" json:"seq,omitempty"`
	Ok    bool   `protobuf:"varint,2,opt,name=ok,proto3" json:"ok,omitempty"`
	Error string `protobuf:"bytes,3,opt,name=error,proto3" json:"error,omitempty"`
}

func (m *TxResult) Reset()         { *m = TxResult{} }
func (m *TxResult) String() string { return proto.CompactTextString(m) }
func (*TxResult) ProtoMessage()    {}

// FrameFromMessage converts a bus message. A zero ts leaves Timestamp unset.
func FrameFromMessage(msg iebus.Message, ts time.Time) *Frame {
	f := &Frame{
		Broadcast: msg.Broadcast == iebus.Broadcast,
		Master:    uint32(msg.Master),
		Slave:     uint32(msg.Slave),
		Control:   uint32(msg.Control),
		Data:      append([]byte(nil), msg.Data...),
	}
	if !ts.IsZero() {
		f.Timestamp = ts.UnixNano()
	}
	return f
}

// Message converts back to a validated bus message.
func (m *Frame) Message() (iebus.Message, error) {
	if m.Master > uint32(iebus.MaxAddress) || m.Slave > uint32(iebus.MaxAddress) {
		return iebus.Message{}, fmt.Errorf("%w: address out of range", iebus.ErrInvalidMessage)
	}
	if m.Control > uint32(iebus.MaxControl) {
		return iebus.Message{}, fmt.Errorf("%w: control out of range", iebus.ErrInvalidMessage)
	}
	msg := iebus.Message{
		Broadcast: iebus.ForDevice,
		Master:    iebus.Address(m.Master),
		Slave:     iebus.Address(m.Slave),
		Control:   uint8(m.Control),
		Data:      append([]byte(nil), m.Data...),
	}
	if m.Broadcast {
		msg.Broadcast = iebus.Broadcast
	}
	return msg, msg.Validate()
}

// Time returns the receive time, zero if unknown.
func (m *Frame) Time() time.Time {
	if m.Timestamp == 0 {
		return time.Time{}
	}
	return time.Unix(0, m.Timestamp)
}

// EncodeFrame marshals a bus message.
func EncodeFrame(msg iebus.Message, ts time.Time) ([]byte, error) {
	return proto.Marshal(FrameFromMessage(msg, ts))
}

// DecodeFrame unmarshals a Frame.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := proto.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// NewTxResult builds the result for a write error.
func NewTxResult(seq uint32, err error) *TxResult {
	res := &TxResult{Seq: seq, Ok: err == nil}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// Err converts the result back to an error.
func (m *TxResult) Err() error {
	if m.Ok {
		return nil
	}
	return &RemoteError{Message: m.Error}
}

// RemoteError is a write failure reported by a remote node.
type RemoteError struct {
	Message string
}

// Error implements error.
func (e *RemoteError) Error() string {
	return e.Message
}
