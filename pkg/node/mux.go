package node

import (
	"context"
	"sync"

	"github.com/robotalks/iebus.go/pkg/iebus"
)

// HandlerMux fans a frame out to every registered handler.
type HandlerMux struct {
	lock     sync.RWMutex
	handlers []FrameHandler
}

// NewHandlerMux creates a HandlerMux.
func NewHandlerMux(handlers ...FrameHandler) *HandlerMux {
	return (&HandlerMux{}).Add(handlers...)
}

// Add registers handlers, nil is skipped.
func (m *HandlerMux) Add(handlers ...FrameHandler) *HandlerMux {
	m.lock.Lock()
	for _, h := range handlers {
		if h != nil {
			m.handlers = append(m.handlers, h)
		}
	}
	m.lock.Unlock()
	return m
}

// HandleFrame implements FrameHandler. Every handler sees the frame even
// if an earlier one fails.
func (m *HandlerMux) HandleFrame(ctx context.Context, msg iebus.Message) error {
	m.lock.RLock()
	handlers := m.handlers
	m.lock.RUnlock()
	var errs AggregatedError
	for _, h := range handlers {
		errs.Add(h.HandleFrame(ctx, msg))
	}
	return errs.Aggregate()
}
