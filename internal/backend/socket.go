package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"driverhub/internal/metrics"
)

// Socket is the push half of the offer feed: one WebSocket keyed by the
// driver's user id. Frames are handed to the callback as raw bytes; the
// consumer owns parsing. The connection is best-effort — on read errors it
// redials with a pause until Close, and the poll path covers any gap.
type Socket struct {
	url     string
	onFrame func([]byte)
	log     *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	conn   *websocket.Conn
	done   chan struct{}
}

// NewSocket prepares a feed for ws{s}://host/delivery/ws/{driverID}.
func NewSocket(wsBase string, driverID int64, onFrame func([]byte), log *slog.Logger) *Socket {
	return &Socket{
		url:     fmt.Sprintf("%s/delivery/ws/%d", wsBase, driverID),
		onFrame: onFrame,
		log:     log,
	}
}

// Start opens the feed and keeps it open until Close. Calling Start on a
// running socket is a no-op.
func (s *Socket) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
}

// Close tears the feed down and waits for the read loop to exit. Idempotent.
func (s *Socket) Close() {
	s.mu.Lock()
	cancel := s.cancel
	conn := s.conn
	done := s.done
	s.cancel = nil
	s.conn = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if conn != nil {
		_ = conn.Close()
	}
	if done != nil {
		<-done
	}
}

func (s *Socket) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
		if err != nil {
			s.log.Warn("offer feed dial failed", "url", s.url, "err", err)
			metrics.SocketRestarts.Inc()
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
			continue
		}
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		s.log.Info("offer feed connected", "url", s.url)

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				_ = conn.Close()
				if ctx.Err() != nil {
					return
				}
				s.log.Warn("offer feed read failed", "err", err)
				metrics.SocketRestarts.Inc()
				break
			}
			s.onFrame(data)
		}
	}
}
