package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/golang/glog"
	"github.com/golang/protobuf/proto"

	"github.com/robotalks/iebus.go/pkg/iebus"
	"github.com/robotalks/iebus.go/pkg/node"
	"github.com/robotalks/iebus.go/pkg/wire"
)

// Sender queues frames for transmission. *node.Node implements it.
type Sender interface {
	Send(iebus.Message) *node.Request
}

// Bridge exposes a node on the broker. It is a node.FrameHandler for
// received frames and a node.Runnable serving transmit requests.
type Bridge struct {
	Queue *Queue
	Meta  NodeMeta
	// TxTimeout bounds the wait for a queued write.
	TxTimeout time.Duration

	sender   Sender
	metaJSON []byte
	publish  func(topic string, payload []byte, retain bool)
	now      func() time.Time
}

// DefaultTxTimeout is the default bound of a remote write.
const DefaultTxTimeout = 2 * time.Second

// NewBridge creates a Bridge for the node described by meta.
func NewBridge(brokerURL string, meta NodeMeta, sender Sender) (*Bridge, error) {
	metaJSON, err := json.Marshal(&meta)
	if err != nil {
		return nil, err
	}
	opts, prefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(prefix+MetaTopic(meta.ID), nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("iebus:" + meta.ID)
	}
	b := &Bridge{
		Queue:     NewQueue(opts, prefix),
		Meta:      meta,
		TxTimeout: DefaultTxTimeout,
		sender:    sender,
		metaJSON:  metaJSON,
		now:       time.Now,
	}
	b.publish = func(topic string, payload []byte, retain bool) {
		var qos byte
		if retain {
			qos = 1
		}
		b.Queue.PubWith(topic, payload, qos, retain)
	}
	b.Queue.OnConnect = func(*Queue) { b.publishMeta() }
	return b, nil
}

// Name implements node.Named.
func (b *Bridge) Name() string {
	return "mqtt-bridge"
}

// HandleFrame implements node.FrameHandler. Publishing is asynchronous.
func (b *Bridge) HandleFrame(_ context.Context, msg iebus.Message) error {
	data, err := wire.EncodeFrame(msg, b.now())
	if err != nil {
		return err
	}
	b.publish(RxTopic(b.Meta.ID), data, false)
	return nil
}

// Run implements node.Runnable.
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.Queue.Sub(TxTopic(b.Meta.ID), b.handleTx)
	b.Queue.Connect()
	<-ctx.Done()
	sub.Close()
	b.Queue.PubWith(MetaTopic(b.Meta.ID), nil, 1, true).WaitTimeout(time.Second)
	b.Queue.Close()
	return ctx.Err()
}

func (b *Bridge) publishMeta() {
	b.publish(MetaTopic(b.Meta.ID), b.metaJSON, true)
}

func (b *Bridge) handleTx(_ string, payload []byte) {
	var req wire.TxRequest
	if err := proto.Unmarshal(payload, &req); err != nil {
		glog.Warningf("bad tx request: %v", err)
		return
	}
	if req.Frame == nil {
		b.reply(req.Seq, iebus.ErrInvalidMessage)
		return
	}
	msg, err := req.Frame.Message()
	if err != nil {
		b.reply(req.Seq, err)
		return
	}
	pending := b.sender.Send(msg)
	go func() {
		timeout := b.TxTimeout
		if timeout <= 0 {
			timeout = DefaultTxTimeout
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		b.reply(req.Seq, pending.Wait(ctx))
	}()
}

func (b *Bridge) reply(seq uint32, err error) {
	if err != nil {
		glog.V(2).Infof("tx %d failed: %v", seq, err)
	}
	data, merr := proto.Marshal(wire.NewTxResult(seq, err))
	if merr != nil {
		glog.Errorf("encode tx result: %v", merr)
		return
	}
	b.publish(TxResultTopic(b.Meta.ID), data, false)
}
