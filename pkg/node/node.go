package node

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/iebus.go/pkg/iebus"
)

// Default settings of a Node.
const (
	DefaultQueueSize    = 16
	DefaultIdleInterval = 10 * time.Millisecond
)

// Node is the single worker owning a Bus. Frames are read continuously
// and dispatched to the handler; writes queued with Send are performed
// in between reads.
type Node struct {
	// IdleInterval is the pause between polls while the bus is disabled.
	IdleInterval time.Duration
	// TimeoutBackoff is the pause after a read times out on an idle bus.
	// Zero polls again immediately.
	TimeoutBackoff time.Duration

	bus     Bus
	handler FrameHandler
	txCh    chan *Request

	lock   sync.Mutex
	closed bool
}

// Request is a queued write waiting for its result.
type Request struct {
	msg      iebus.Message
	resultCh chan error
}

// Message returns the frame to be written.
func (r *Request) Message() iebus.Message {
	return r.msg
}

// ResultChan returns the chan delivering the write result, nil on success.
// Exactly one result is delivered.
func (r *Request) ResultChan() <-chan error {
	return r.resultCh
}

// Wait blocks until the result is available or ctx is done.
func (r *Request) Wait(ctx context.Context) error {
	select {
	case err := <-r.resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Request) done(err error) {
	r.resultCh <- err
}

// New creates a Node. handler may be nil to discard received frames.
func New(bus Bus, handler FrameHandler) *Node {
	return NewWithQueueSize(bus, handler, DefaultQueueSize)
}

// NewWithQueueSize creates a Node with a specific transmit queue size.
func NewWithQueueSize(bus Bus, handler FrameHandler, queueSize int) *Node {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Node{
		IdleInterval: DefaultIdleInterval,
		bus:          bus,
		handler:      handler,
		txCh:         make(chan *Request, queueSize),
	}
}

// Name implements Named.
func (n *Node) Name() string {
	return "node"
}

// Send queues a frame for transmission. It never blocks: a full queue or a
// stopped worker is reported through the Request.
func (n *Node) Send(msg iebus.Message) *Request {
	req := &Request{msg: msg, resultCh: make(chan error, 1)}
	n.lock.Lock()
	defer n.lock.Unlock()
	if n.closed {
		req.done(ErrClosed)
		return req
	}
	select {
	case n.txCh <- req:
	default:
		req.done(ErrQueueFull)
	}
	return req
}

// Run implements Runnable. It is the only goroutine touching the bus.
func (n *Node) Run(ctx context.Context) error {
	defer n.close()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case req := <-n.txCh:
			n.write(ctx, req)
			continue
		default:
		}

		if !n.bus.IsEnabled() {
			n.idle(ctx)
			continue
		}

		msg, err := n.bus.ReadMessage(ctx)
		if err != nil {
			n.logReadError(err)
			if err == iebus.ErrTimeout && n.TimeoutBackoff > 0 {
				n.pause(ctx, n.TimeoutBackoff)
			}
			continue
		}
		if n.handler != nil {
			if err := n.handler.HandleFrame(ctx, msg); err != nil {
				glog.Errorf("handle frame %s: %v", msg, err)
			}
		}
	}
}

// idle waits while the bus is disabled, still serving writes so they fail
// promptly instead of sitting in the queue.
func (n *Node) idle(ctx context.Context) {
	interval := n.IdleInterval
	if interval <= 0 {
		interval = DefaultIdleInterval
	}
	n.pause(ctx, interval)
}

// pause waits for interval, serving at most one queued write.
func (n *Node) pause(ctx context.Context, interval time.Duration) {
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case req := <-n.txCh:
		n.write(ctx, req)
	case <-timer.C:
	}
}

func (n *Node) write(ctx context.Context, req *Request) {
	err := n.bus.WriteMessage(ctx, req.msg)
	if err != nil {
		glog.V(2).Infof("write %s: %v", req.msg, err)
	}
	req.done(err)
}

func (n *Node) logReadError(err error) {
	switch {
	case err == iebus.ErrTimeout, err == iebus.ErrNotStartBit, err == context.Canceled, err == context.DeadlineExceeded:
		glog.V(4).Infof("read: %v", err)
	case iebus.IsParityError(err):
		glog.V(2).Infof("read: %v", err)
	default:
		glog.Warningf("read: %v", err)
	}
}

func (n *Node) close() {
	n.lock.Lock()
	n.closed = true
	n.lock.Unlock()
	for {
		select {
		case req := <-n.txCh:
			req.done(ErrClosed)
		default:
			return
		}
	}
}
