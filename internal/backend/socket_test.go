package backend

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestSocketDeliversFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/delivery/ws/7" {
			t.Errorf("path: %s", r.URL.Path)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"NEW_ORDER_REQUEST"}`))
		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer ts.Close()

	frames := make(chan []byte, 1)
	wsBase := "ws" + strings.TrimPrefix(ts.URL, "http")
	s := NewSocket(wsBase, 7, func(data []byte) { frames <- data }, slog.Default())
	s.Start()
	defer s.Close()

	select {
	case data := <-frames:
		if string(data) != `{"type":"NEW_ORDER_REQUEST"}` {
			t.Fatalf("frame: %s", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no frame received")
	}
}

func TestSocketCloseIdempotent(t *testing.T) {
	s := NewSocket("ws://127.0.0.1:1", 7, func([]byte) {}, slog.Default())
	s.Start()
	s.Start() // no-op on a running socket
	s.Close()
	s.Close()
}
