package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/robotalks/iebus.go/pkg/iebus"
	"github.com/robotalks/iebus.go/pkg/wire"
)

var testMsg = iebus.Message{
	Broadcast: iebus.Broadcast,
	Master:    0x100,
	Slave:     0xfff,
	Control:   0xa,
	Data:      []byte{1, 2, 3},
}

func waitClients(t *testing.T, h *Hub, n int) {
	deadline := time.Now().Add(time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expect %d clients, got %d", n, h.ClientCount())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub()
	ts := time.Unix(1600000000, 0)
	hub.now = func() time.Time { return ts }
	server := httptest.NewServer(hub)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	var conns []*websocket.Conn
	for i := 0; i < 2; i++ {
		conn, err := websocket.Dial(url, "", server.URL)
		require.NoError(t, err)
		defer conn.Close()
		conns = append(conns, conn)
	}
	waitClients(t, hub, 2)

	require.NoError(t, hub.HandleFrame(context.Background(), testMsg))
	for _, conn := range conns {
		var data []byte
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		require.NoError(t, websocket.Message.Receive(conn, &data))
		f, err := wire.DecodeFrame(data)
		require.NoError(t, err)
		require.Equal(t, ts.UnixNano(), f.Timestamp)
		msg, err := f.Message()
		require.NoError(t, err)
		require.Equal(t, testMsg, msg)
	}

	conns[0].Close()
	waitClients(t, hub, 1)
}

func TestHubDropsForSlowClients(t *testing.T) {
	hub := NewHub()
	c := &client{sendCh: make(chan []byte, 1)}
	hub.clients[c] = struct{}{}

	require.NoError(t, hub.HandleFrame(context.Background(), testMsg))
	require.NoError(t, hub.HandleFrame(context.Background(), testMsg))
	require.Equal(t, uint64(1), hub.Dropped())
	require.Len(t, c.sendCh, 1)
}

func TestServerStops(t *testing.T) {
	s := &Server{Addr: "127.0.0.1:0", Hub: NewHub()}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		require.Equal(t, context.Canceled, err)
	case <-time.After(time.Second):
		t.Fatal("server did not stop")
	}
}
