// Package broadcast fans serialized snapshot frames out to observer connections.
//
// The hub copies the live connection set under its read lock and sends outside
// of it. Every send gets its own deadline and produces an explicit result;
// failed connections are collected, unregistered and closed after the fan-out,
// so one broken observer never stops delivery to the rest.
package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"vitalstream/internal/logging"
	"vitalstream/internal/metrics"
)

// DefaultSendTimeout bounds a single send.
const DefaultSendTimeout = 250 * time.Millisecond

var (
	// ErrSendTimeout is returned when a connection cannot accept a frame in time.
	ErrSendTimeout = errors.New("broadcast: send timed out")
	// ErrClosed is returned when sending to a closed connection.
	ErrClosed = errors.New("broadcast: connection closed")
)

// Conn is one observer connection.
type Conn interface {
	ID() string
	// Send queues frame for delivery. It must return once ctx is done.
	Send(ctx context.Context, frame []byte) error
	Close() error
}

// SendResult is the outcome of one send attempt.
type SendResult struct {
	ConnID string
	Err    error
}

// Result summarizes one broadcast.
type Result struct {
	Delivered int
	Failed    []SendResult
}

// Hub tracks live connections.
type Hub struct {
	mu          sync.RWMutex
	conns       map[string]Conn
	sendTimeout time.Duration
	metrics     *metrics.Metrics
}

// NewHub creates a hub. A non-positive sendTimeout uses DefaultSendTimeout.
func NewHub(sendTimeout time.Duration, m *metrics.Metrics) *Hub {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &Hub{conns: make(map[string]Conn), sendTimeout: sendTimeout, metrics: m}
}

// Register adds a connection to the live set.
func (h *Hub) Register(c Conn) {
	h.mu.Lock()
	h.conns[c.ID()] = c
	n := len(h.conns)
	h.mu.Unlock()
	h.metrics.SetConnections(n)
}

// Unregister removes a connection. It reports whether the connection was live.
// The connection is not closed.
func (h *Hub) Unregister(id string) bool {
	h.mu.Lock()
	_, ok := h.conns[id]
	delete(h.conns, id)
	n := len(h.conns)
	h.mu.Unlock()
	if ok {
		h.metrics.SetConnections(n)
	}
	return ok
}

// Len returns the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Has reports whether id is registered.
func (h *Hub) Has(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[id]
	return ok
}

// Broadcast sends frame to every registered connection concurrently and
// removes the ones that failed. It returns when every send has finished.
func (h *Hub) Broadcast(ctx context.Context, frame []byte) Result {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	results := make([]SendResult, len(conns))
	var wg sync.WaitGroup
	for i, c := range conns {
		wg.Add(1)
		go func(i int, c Conn) {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, h.sendTimeout)
			defer cancel()
			err := c.Send(sendCtx, frame)
			if err != nil && errors.Is(err, context.DeadlineExceeded) {
				err = ErrSendTimeout
			}
			results[i] = SendResult{ConnID: c.ID(), Err: err}
		}(i, c)
	}
	wg.Wait()

	var res Result
	for i, r := range results {
		if r.Err == nil {
			res.Delivered++
			h.metrics.FrameDelivered()
			continue
		}
		res.Failed = append(res.Failed, r)
		h.drop(ctx, conns[i], r.Err)
	}
	return res
}

func (h *Hub) drop(ctx context.Context, c Conn, cause error) {
	log := logging.FromContext(ctx)
	reason := "error"
	switch {
	case errors.Is(cause, ErrSendTimeout):
		reason = "timeout"
	case errors.Is(cause, ErrClosed):
		reason = "closed"
	}
	h.metrics.SendFailed(reason)
	if !h.Unregister(c.ID()) {
		return
	}
	if err := c.Close(); err != nil {
		log.Debug("close after failed send", "conn_id", c.ID(), "err", err)
	}
	log.Info("observer dropped", "conn_id", c.ID(), "reason", reason, "err", cause)
}

// CloseAll unregisters and closes every connection.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]Conn)
	h.mu.Unlock()
	h.metrics.SetConnections(0)
	for _, c := range conns {
		_ = c.Close()
	}
}
