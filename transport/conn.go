// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// ErrConnClosed is returned when writing to a closed connection.
var ErrConnClosed = errors.New("connection closed")

// Conn is a message oriented connection that reports how many bytes it has
// accepted but not yet put on the wire.
type Conn interface {
	WriteMessage(data []byte) error
	ReadMessage() ([]byte, error)
	BufferedAmount() int
	Close() error
}

// Dialer opens a Conn to url.
type Dialer func(ctx context.Context, url string) (Conn, error)

// WebsocketDialer dials with d, or websocket.DefaultDialer when d is nil.
func WebsocketDialer(d *websocket.Dialer) Dialer {
	if d == nil {
		d = websocket.DefaultDialer
	}

	return func(ctx context.Context, url string) (Conn, error) {
		ws, resp, err := d.DialContext(ctx, url, http.Header{})
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			return nil, err
		}

		return NewWebsocketConn(ws), nil
	}
}

// WebsocketConn adapts a gorilla websocket connection to Conn. Writes are
// queued and sent by a single pump goroutine, so WriteMessage never blocks on
// the network and BufferedAmount reflects the queued bytes.
type WebsocketConn struct {
	ws *websocket.Conn

	mu       sync.Mutex
	cond     *sync.Cond
	queue    [][]byte
	buffered int
	closed   bool
	err      error

	closeOnce sync.Once
	pumpDone  chan struct{}
}

// NewWebsocketConn wraps ws and starts its write pump.
func NewWebsocketConn(ws *websocket.Conn) *WebsocketConn {
	c := &WebsocketConn{
		ws:       ws,
		pumpDone: make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	go c.writePump()

	return c
}

// WriteMessage queues data as one text message.
func (c *WebsocketConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnClosed
	}
	if c.err != nil {
		return c.err
	}
	c.queue = append(c.queue, data)
	c.buffered += len(data)
	c.cond.Signal()

	return nil
}

// BufferedAmount returns the bytes queued but not yet written.
func (c *WebsocketConn) BufferedAmount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.buffered
}

// ReadMessage blocks for the next data message.
func (c *WebsocketConn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()

	return data, err
}

// Close sends a close frame and releases the connection. Queued messages
// that were not written yet are discarded.
func (c *WebsocketConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.cond.Broadcast()
		c.mu.Unlock()
		<-c.pumpDone

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		err = c.ws.Close()
	})

	return err
}

func (c *WebsocketConn) writePump() {
	defer close(c.pumpDone)

	for {
		c.mu.Lock()
		for len(c.queue) == 0 && !c.closed {
			c.cond.Wait()
		}
		if c.closed {
			c.mu.Unlock()

			return
		}
		msg := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		c.mu.Unlock()

		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		err := c.ws.WriteMessage(websocket.TextMessage, msg)

		c.mu.Lock()
		c.buffered -= len(msg)
		if err != nil {
			c.err = err
			c.buffered = 0
			c.queue = nil
			c.mu.Unlock()

			return
		}
		c.mu.Unlock()
	}
}
