package mqtt

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"github.com/golang/protobuf/proto"

	"github.com/robotalks/iebus.go/pkg/iebus"
	"github.com/robotalks/iebus.go/pkg/wire"
)

// Client talks to a remote node through the broker.
type Client struct {
	Queue  *Queue
	NodeID string
	// Timeout bounds Send when ctx has no deadline.
	Timeout time.Duration

	seq       uint32
	lock      sync.Mutex
	pending   map[uint32]chan *wire.TxResult
	resultSub *Subscription
	publish   func(topic string, payload []byte) error
}

// DefaultClientTimeout is the default bound of Send.
const DefaultClientTimeout = 3 * time.Second

// NewClient creates a Client on q for node nodeID. Call Connect first.
func NewClient(q *Queue, nodeID string) *Client {
	c := &Client{
		Queue:   q,
		NodeID:  nodeID,
		Timeout: DefaultClientTimeout,
		pending: make(map[uint32]chan *wire.TxResult),
	}
	c.publish = func(topic string, payload []byte) error {
		token := c.Queue.Pub(topic, payload)
		token.Wait()
		return token.Error()
	}
	return c
}

// Connect subscribes to transmit results and connects the queue.
func (c *Client) Connect() error {
	c.resultSub = c.Queue.Sub(TxResultTopic(c.NodeID), c.handleResult)
	return c.Queue.ConnectAndWait()
}

// Close implements io.Closer.
func (c *Client) Close() error {
	if c.resultSub != nil {
		c.resultSub.Close()
	}
	return c.Queue.Close()
}

// Send transmits msg on the remote bus and waits for the result.
func (c *Client) Send(ctx context.Context, msg iebus.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if _, ok := ctx.Deadline(); !ok {
		timeout := c.Timeout
		if timeout <= 0 {
			timeout = DefaultClientTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	seq := atomic.AddUint32(&c.seq, 1)
	resCh := make(chan *wire.TxResult, 1)
	c.lock.Lock()
	c.pending[seq] = resCh
	c.lock.Unlock()
	defer func() {
		c.lock.Lock()
		delete(c.pending, seq)
		c.lock.Unlock()
	}()

	data, err := proto.Marshal(&wire.TxRequest{Seq: seq, Frame: wire.FrameFromMessage(msg, time.Time{})})
	if err != nil {
		return err
	}
	if err := c.publish(TxTopic(c.NodeID), data); err != nil {
		return err
	}
	select {
	case res := <-resCh:
		return res.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe calls fn for every frame the remote node receives.
func (c *Client) Subscribe(fn func(*wire.Frame)) *Subscription {
	return c.Queue.Sub(RxTopic(c.NodeID), FrameHandler(fn))
}

func (c *Client) handleResult(_ string, payload []byte) {
	var res wire.TxResult
	if err := proto.Unmarshal(payload, &res); err != nil {
		glog.Warningf("bad tx result: %v", err)
		return
	}
	c.lock.Lock()
	resCh := c.pending[res.Seq]
	c.lock.Unlock()
	if resCh == nil {
		// result of another client or an expired request.
		return
	}
	select {
	case resCh <- &res:
	default:
	}
}

// FrameHandler adapts a frame callback to a Handler, dropping undecodable
// payloads.
func FrameHandler(fn func(*wire.Frame)) Handler {
	return func(topic string, payload []byte) {
		f, err := wire.DecodeFrame(payload)
		if err != nil {
			glog.Warningf("%s: bad frame: %v", topic, err)
			return
		}
		fn(f)
	}
}

// DefaultDiscoverTimeout is how long Discover collects retained metadata.
const DefaultDiscoverTimeout = 500 * time.Millisecond

// Discover lists nodes with retained metadata on a connected queue.
func Discover(ctx context.Context, q *Queue, timeout time.Duration) ([]NodeMeta, error) {
	if timeout <= 0 {
		timeout = DefaultDiscoverTimeout
	}
	metaCh := make(chan NodeMeta, 16)
	sub := q.Sub("+"+SuffixMeta, func(topic string, payload []byte) {
		meta, ok, err := ParseNodeMeta(payload)
		if err != nil {
			glog.Warningf("%s: bad meta: %v", topic, err)
			return
		}
		if !ok {
			return
		}
		if meta.ID == "" {
			meta.ID, _ = NodeIDFromTopic(topic)
		}
		select {
		case metaCh <- meta:
		case <-time.After(timeout):
		}
	})
	defer sub.Close()

	var nodes []NodeMeta
	expire := time.After(timeout)
	for {
		select {
		case meta := <-metaCh:
			nodes = append(nodes, meta)
		case <-expire:
			return nodes, nil
		case <-ctx.Done():
			return nodes, ctx.Err()
		}
	}
}
