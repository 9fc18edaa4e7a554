package node

import (
	"context"

	"github.com/robotalks/iebus.go/pkg/iebus"
)

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable is a background worker.
type Runnable interface {
	Run(context.Context) error
}

// Bus is the transaction surface of a link-layer controller.
// *iebus.Controller implements it.
type Bus interface {
	IsEnabled() bool
	ReadMessage(context.Context) (iebus.Message, error)
	WriteMessage(context.Context, iebus.Message) error
}

// FrameHandler processes a received frame. It runs on the bus worker and
// must not block.
type FrameHandler interface {
	HandleFrame(context.Context, iebus.Message) error
}

// HandleFrameFunc is the func form of FrameHandler.
type HandleFrameFunc func(context.Context, iebus.Message) error

// HandleFrame implements FrameHandler.
func (f HandleFrameFunc) HandleFrame(ctx context.Context, msg iebus.Message) error {
	return f(ctx, msg)
}
