package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// DefaultSendQueue is the number of frames buffered per websocket observer.
	DefaultSendQueue = 16

	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	readLimit  = 4096
)

// WSConn adapts a websocket to Conn. Frames are queued and written by a
// dedicated goroutine, so a frame is never interleaved with another and
// frames reach the socket in the order they were sent.
type WSConn struct {
	id   string
	ws   *websocket.Conn
	out  chan []byte
	done chan struct{}
	once sync.Once
}

// NewWSConn wraps ws and starts its writer. queue <= 0 uses DefaultSendQueue.
func NewWSConn(ws *websocket.Conn, queue int) *WSConn {
	if queue <= 0 {
		queue = DefaultSendQueue
	}
	c := &WSConn{
		id:   uuid.New().String(),
		ws:   ws,
		out:  make(chan []byte, queue),
		done: make(chan struct{}),
	}
	go c.writePump()
	return c
}

// ID implements Conn.
func (c *WSConn) ID() string { return c.id }

// Send implements Conn. It blocks only while the queue is full.
func (c *WSConn) Send(ctx context.Context, frame []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.out <- frame:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the connection is closed.
func (c *WSConn) Done() <-chan struct{} { return c.done }

// Close implements Conn. It is safe to call more than once.
func (c *WSConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

// ReadPump discards inbound messages until the peer goes away, then closes
// the connection and calls onClose. It blocks; run it on the handler goroutine.
func (c *WSConn) ReadPump(onClose func()) {
	defer func() {
		_ = c.Close()
		if onClose != nil {
			onClose()
		}
	}()
	c.ws.SetReadLimit(readLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *WSConn) writePump() {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case frame := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				_ = c.Close()
				return
			}
		case <-ping.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
