// Package monitor subscribes to the live trade-event stream and scores
// each event as it arrives, trading the Analyze Pipeline's batched
// candidate narrowing for a session-local cache and a bounded
// idle-time backfill pass (spec §4.11).
package monitor

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// transport wraps one gorilla/websocket connection with a mutex-guarded
// writer and a cancelable ping goroutine, the same shape as the
// teacher's websocket.Client adapted from a binary protobuf wire to the
// stream's plain JSON text frames.
type transport struct {
	conn       *websocket.Conn
	writeMu    sync.Mutex
	pingCancel context.CancelFunc
}

func dial(ctx context.Context, url string, header http.Header) (*transport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &transport{conn: conn}, nil
}

// writeJSON sends one JSON text frame, thread-safely.
func (t *transport) writeJSON(v any) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteJSON(v)
}

// startPing starts a periodic ping frame on its own goroutine, stopped
// by close.
func (t *transport) startPing(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	t.pingCancel = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.writeMu.Lock()
				err := t.conn.WriteMessage(websocket.PingMessage, nil)
				t.writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()
}

// readMessage blocks for the next text frame.
func (t *transport) readMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *transport) close() error {
	if t.pingCancel != nil {
		t.pingCancel()
	}
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}
