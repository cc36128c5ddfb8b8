package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"dash0.com/otlp-json-emitter/internal/jsonout"
)

const defaultWSWriteTimeout = 10 * time.Second

// WebSocketSink publishes each batch as one text message on a WebSocket
// connection. The JSON is streamed straight into the message writer.
type WebSocketSink struct {
	conn         *websocket.Conn
	mu           sync.Mutex
	writeTimeout time.Duration
}

// DialWebSocket connects to url (ws:// or wss://).
func DialWebSocket(ctx context.Context, url string) (*WebSocketSink, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	return &WebSocketSink{conn: conn, writeTimeout: defaultWSWriteTimeout}, nil
}

// Publish sends b as a single message. The write is bounded by the context
// deadline or the sink's write timeout, whichever is earlier.
func (s *WebSocketSink) Publish(ctx context.Context, b Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := time.Now().Add(s.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}

	w, err := s.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}

	e := jsonout.NewEmitter(jsonout.NewStream(w))
	writeBatch(e, b)

	if err := e.Err(); err != nil {
		_ = w.Close()
		return err
	}

	return w.Close()
}

// Close sends a normal close frame and closes the connection.
func (s *WebSocketSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))

	return errors.Join(err, s.conn.Close())
}
