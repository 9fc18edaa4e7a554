// Package websocket streams received frames to websocket clients, for
// live bus monitors.
package websocket

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/iebus.go/pkg/iebus"
	"github.com/robotalks/iebus.go/pkg/node"
	"github.com/robotalks/iebus.go/pkg/wire"
)

// DefaultClientQueueSize is the number of frames buffered per client.
const DefaultClientQueueSize = 64

// Hub broadcasts protobuf encoded wire.Frame messages to every connected
// client. A client that can't keep up loses frames; the bus worker is
// never blocked.
type Hub struct {
	ClientQueueSize int

	lock    sync.Mutex
	clients map[*client]struct{}
	dropped uint64
	now     func() time.Time
}

type client struct {
	conn   *websocket.Conn
	sendCh chan []byte
}

// NewHub creates a Hub.
func NewHub() *Hub {
	return &Hub{
		ClientQueueSize: DefaultClientQueueSize,
		clients:         make(map[*client]struct{}),
		now:             time.Now,
	}
}

// ServeHTTP implements http.Handler.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(h.serveConn).ServeHTTP(w, r)
}

// HandleFrame implements node.FrameHandler.
func (h *Hub) HandleFrame(_ context.Context, msg iebus.Message) error {
	data, err := wire.EncodeFrame(msg, h.now())
	if err != nil {
		return err
	}
	h.lock.Lock()
	defer h.lock.Unlock()
	for c := range h.clients {
		select {
		case c.sendCh <- data:
		default:
			atomic.AddUint64(&h.dropped, 1)
		}
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}

// Dropped returns the number of frames dropped for slow clients.
func (h *Hub) Dropped() uint64 {
	return atomic.LoadUint64(&h.dropped)
}

func (h *Hub) add(conn *websocket.Conn) *client {
	size := h.ClientQueueSize
	if size <= 0 {
		size = DefaultClientQueueSize
	}
	c := &client{conn: conn, sendCh: make(chan []byte, size)}
	h.lock.Lock()
	h.clients[c] = struct{}{}
	h.lock.Unlock()
	return c
}

func (h *Hub) remove(c *client) {
	h.lock.Lock()
	delete(h.clients, c)
	h.lock.Unlock()
}

func (h *Hub) serveConn(conn *websocket.Conn) {
	c := h.add(conn)
	defer h.remove(c)
	glog.V(2).Infof("monitor %s connected", conn.Request().RemoteAddr)

	// Clients only listen. Reading detects the close.
	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		var discard []byte
		for {
			if err := websocket.Message.Receive(conn, &discard); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case data := <-c.sendCh:
			if err := websocket.Message.Send(conn, data); err != nil {
				glog.V(2).Infof("monitor %s: %v", conn.Request().RemoteAddr, err)
				return
			}
		case <-doneCh:
			glog.V(2).Infof("monitor %s disconnected", conn.Request().RemoteAddr)
			return
		}
	}
}

// Server serves a Hub on an HTTP address at Path.
type Server struct {
	Addr string
	Path string
	Hub  *Hub
}

// Name implements node.Named.
func (s *Server) Name() string {
	return "monitor"
}

// Run implements node.Runnable.
func (s *Server) Run(ctx context.Context) error {
	path := s.Path
	if path == "" {
		path = "/"
	}
	mux := http.NewServeMux()
	mux.Handle(path, s.Hub)
	server := &http.Server{Addr: s.Addr, Handler: mux}
	glog.Infof("monitor listening on %s%s", s.Addr, path)
	return node.RunWithContextCloser(ctx, server, server.ListenAndServe)
}
