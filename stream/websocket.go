package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ps2assistant/mergetracker/census"
	"github.com/ps2assistant/mergetracker/journal"
)

const (
	writeWait         = 10 * time.Second
	defaultReadLimit  = 1 << 20
	closeGracePeriod  = time.Second
	handshakeDeadline = 15 * time.Second
)

// Conn is one open feed connection.
type Conn interface {
	// ReadMessage blocks until the next message arrives.
	ReadMessage() ([]byte, error)
	// WriteMessage sends one text message.
	WriteMessage(data []byte) error
	// Close ends the connection. It is safe to call concurrently with ReadMessage and more
	// than once.
	Close() error
}

// Dialer opens feed connections.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// WebsocketDialer dials the Census push endpoint.
type WebsocketDialer struct {
	URL    string
	Header http.Header
	// IdleTimeout closes a connection that has been silent this long. Census sends a
	// heartbeat every few seconds, so silence means a dead connection. Zero disables it.
	IdleTimeout time.Duration
	// ReadLimit caps a single message; zero means 1 MiB. It is clamped so every accepted
	// message can be replayed from the journal.
	ReadLimit int64
	// Dialer overrides websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// Dial opens a websocket to d.URL.
func (d *WebsocketDialer) Dial(ctx context.Context) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeDeadline,
		}
	}
	c, resp, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil {
			return nil, &HandshakeError{StatusCode: resp.StatusCode, Err: err}
		}
		return nil, fmt.Errorf("dial %s: %w", census.MaskURL(d.URL), err)
	}
	c.SetReadLimit(readLimit(d.ReadLimit))
	return &wsConn{c: c, idle: d.IdleTimeout}, nil
}

// readLimit applies the default and keeps messages within what the journal can replay.
func readLimit(n int64) int64 {
	switch {
	case n <= 0:
		return defaultReadLimit
	case n > journal.MaxLineBytes-1:
		return journal.MaxLineBytes - 1
	}
	return n
}

type wsConn struct {
	c    *websocket.Conn
	idle time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	if w.idle > 0 {
		if err := w.c.SetReadDeadline(time.Now().Add(w.idle)); err != nil {
			return nil, err
		}
	}
	_, data, err := w.c.ReadMessage()
	return data, err
}

func (w *wsConn) WriteMessage(data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.c.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return w.c.WriteMessage(websocket.TextMessage, data)
}

// Close sends a normal-closure frame before closing the socket.
func (w *wsConn) Close() error {
	w.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "collection stopped")
		_ = w.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		w.closeErr = w.c.Close()
	})
	return w.closeErr
}
