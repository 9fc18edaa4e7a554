package wire

import (
	"context"
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/iebus.go/pkg/iebus"
)

// Stream reads and writes packets on a byte stream. Each packet is
// prefixed by its length as 4 bytes little-endian.
type Stream struct {
	rw io.ReadWriter
}

// NewStream creates a Stream.
func NewStream(rw io.ReadWriter) *Stream {
	return &Stream{rw: rw}
}

// ReadPacket reads one packet.
func (s *Stream) ReadPacket() ([]byte, error) {
	var size uint32
	if err := binary.Read(s.rw, binary.LittleEndian, &size); err != nil {
		return nil, err
	}
	pkt := make([]byte, size)
	if _, err := io.ReadFull(s.rw, pkt); err != nil {
		return nil, err
	}
	return pkt, nil
}

// WritePacket writes one packet.
func (s *Stream) WritePacket(pkt []byte) error {
	if err := binary.Write(s.rw, binary.LittleEndian, uint32(len(pkt))); err != nil {
		return err
	}
	_, err := s.rw.Write(pkt)
	return err
}

// ReadFrame reads one Frame packet.
func (s *Stream) ReadFrame() (*Frame, error) {
	pkt, err := s.ReadPacket()
	if err != nil {
		return nil, err
	}
	return DecodeFrame(pkt)
}

// WriteFrame writes one Frame packet.
func (s *Stream) WriteFrame(f *Frame) error {
	pkt, err := proto.Marshal(f)
	if err != nil {
		return err
	}
	return s.WritePacket(pkt)
}

// Recorder appends received frames to a capture stream.
type Recorder struct {
	lock   sync.Mutex
	stream *Stream
	now    func() time.Time
}

// NewRecorder creates a Recorder writing to w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{stream: NewStream(writeOnly{w}), now: time.Now}
}

// HandleFrame records msg with the current time.
func (r *Recorder) HandleFrame(_ context.Context, msg iebus.Message) error {
	f := FrameFromMessage(msg, r.now())
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.stream.WriteFrame(f)
}

type writeOnly struct {
	io.Writer
}

func (writeOnly) Read([]byte) (int, error) {
	return 0, io.EOF
}
