package dashboard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meilidex/searchcore/internal/scheduler"
	"github.com/meilidex/searchcore/internal/store"
)

var upgrader = websocket.Upgrader{}

func newTestServer(t *testing.T, hub *Hub) (*httptest.Server, context.CancelFunc) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		hub.Register(conn)
	})
	srv := httptest.NewServer(mux)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() { srv.Close() })
	return srv, cancel
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestHubBroadcastsSnapshotToConnectedClients(t *testing.T) {
	sched := scheduler.New(store.NewMemoryStore(), scheduler.DefaultConfig())
	hub := New(sched, 10*time.Millisecond)
	srv, cancel := newTestServer(t, hub)
	defer cancel()

	conn := dial(t, srv)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snap scheduler.Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("expected a broadcast snapshot, got error: %v", err)
	}
	if !snap.QueueEmpty {
		t.Fatalf("expected an empty-queue snapshot, got %+v", snap)
	}
}

func TestHubClientCountTracksRegister(t *testing.T) {
	sched := scheduler.New(store.NewMemoryStore(), scheduler.DefaultConfig())
	hub := New(sched, time.Hour)
	srv, cancel := newTestServer(t, hub)
	defer cancel()

	conn := dial(t, srv)

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 registered client, got %d", hub.ClientCount())
	}

	conn.Close()
}
