package wire

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/iebus.go/pkg/iebus"
)

var testMsg = iebus.Message{
	Broadcast: iebus.ForDevice,
	Master:    0x456,
	Slave:     0x123,
	Control:   0x2,
	Data:      []byte{0xab, 0xcd},
}

func TestFrameConversion(t *testing.T) {
	ts := time.Unix(1500000000, 42)
	f := FrameFromMessage(testMsg, ts)
	require.False(t, f.Broadcast)
	require.Equal(t, uint32(0x456), f.Master)
	require.Equal(t, ts.UnixNano(), f.Timestamp)
	require.True(t, f.Time().Equal(ts))

	data, err := proto.Marshal(f)
	require.NoError(t, err)
	decoded, err := DecodeFrame(data)
	require.NoError(t, err)
	msg, err := decoded.Message()
	require.NoError(t, err)
	require.Equal(t, testMsg, msg)

	bcast := FrameFromMessage(iebus.Message{Broadcast: iebus.Broadcast, Data: []byte{1}}, time.Time{})
	require.True(t, bcast.Broadcast)
	require.Equal(t, int64(0), bcast.Timestamp)
	require.True(t, bcast.Time().IsZero())
}

func TestFrameMessageValidates(t *testing.T) {
	testCases := []*Frame{
		{Master: 0x1000, Data: []byte{1}},
		{Slave: 0x1000, Data: []byte{1}},
		{Control: 0x10, Data: []byte{1}},
		{},
		{Data: make([]byte, iebus.MaxDataLength+1)},
	}
	for _, f := range testCases {
		_, err := f.Message()
		require.True(t, errors.Is(err, iebus.ErrInvalidMessage), "frame %v", f)
	}
}

func TestTxResult(t *testing.T) {
	ok := NewTxResult(7, nil)
	require.True(t, ok.Ok)
	require.NoError(t, ok.Err())

	failed := NewTxResult(8, &iebus.HandshakeError{Field: iebus.FieldSlave})
	data, err := proto.Marshal(failed)
	require.NoError(t, err)
	var res TxResult
	require.NoError(t, proto.Unmarshal(data, &res))
	require.Equal(t, uint32(8), res.Seq)
	require.False(t, res.Ok)
	require.Equal(t, "no ACK for slave address", res.Err().Error())
	require.IsType(t, &RemoteError{}, res.Err())
}

func TestTxRequestEncoding(t *testing.T) {
	req := &TxRequest{Seq: 3, Frame: FrameFromMessage(testMsg, time.Time{})}
	data, err := proto.Marshal(req)
	require.NoError(t, err)
	var decoded TxRequest
	require.NoError(t, proto.Unmarshal(data, &decoded))
	require.Equal(t, uint32(3), decoded.Seq)
	require.NotNil(t, decoded.Frame)
	msg, err := decoded.Frame.Message()
	require.NoError(t, err)
	require.Equal(t, testMsg, msg)
}

func TestStream(t *testing.T) {
	var buf bytes.Buffer
	s := NewStream(&buf)
	require.NoError(t, s.WritePacket([]byte{1, 2, 3}))
	require.NoError(t, s.WritePacket(nil))
	require.Equal(t, []byte{3, 0, 0, 0, 1, 2, 3, 0, 0, 0, 0}, buf.Bytes())

	pkt, err := s.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, pkt)
	pkt, err = s.ReadPacket()
	require.NoError(t, err)
	require.Empty(t, pkt)
	_, err = s.ReadPacket()
	require.Equal(t, io.EOF, err)
}

func TestStreamTruncated(t *testing.T) {
	s := NewStream(bytes.NewBuffer([]byte{4, 0, 0, 0, 1, 2}))
	_, err := s.ReadPacket()
	require.Equal(t, io.ErrUnexpectedEOF, err)
}

func TestRecorder(t *testing.T) {
	var buf bytes.Buffer
	ts := time.Unix(1600000000, 0)
	r := NewRecorder(&buf)
	r.now = func() time.Time { return ts }
	require.NoError(t, r.HandleFrame(context.Background(), testMsg))
	require.NoError(t, r.HandleFrame(context.Background(), testMsg))

	s := NewStream(&buf)
	for i := 0; i < 2; i++ {
		f, err := s.ReadFrame()
		require.NoError(t, err)
		require.Equal(t, ts.UnixNano(), f.Timestamp)
		msg, err := f.Message()
		require.NoError(t, err)
		require.Equal(t, testMsg, msg)
	}
	_, err := s.ReadFrame()
	require.Equal(t, io.EOF, err)
}
