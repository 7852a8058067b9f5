package observer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"vitalstream/internal/logging"
)

// Client defaults.
const (
	DefaultMinBackoff   = 500 * time.Millisecond
	DefaultMaxBackoff   = 10 * time.Second
	DefaultPollInterval = 30 * time.Second
)

// Client keeps a websocket stream to the server open and feeds every frame
// into State. It also polls the summaries endpoint.
type Client struct {
	StreamURL    string
	SummariesURL string
	Normalizer   *Normalizer
	State        *State
	Dialer       *websocket.Dialer
	HTTP         *http.Client
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
	PollInterval time.Duration
}

// NewClient returns a client for the server at baseURL (http or https).
func NewClient(baseURL string, n *Normalizer, st *State) (*Client, error) {
	streamURL, summariesURL, err := endpoints(baseURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		StreamURL:    streamURL,
		SummariesURL: summariesURL,
		Normalizer:   n,
		State:        st,
		Dialer:       websocket.DefaultDialer,
		HTTP:         &http.Client{Timeout: 5 * time.Second},
		MinBackoff:   DefaultMinBackoff,
		MaxBackoff:   DefaultMaxBackoff,
		PollInterval: DefaultPollInterval,
	}, nil
}

func endpoints(base string) (stream, summaries string, err error) {
	if base == "" {
		return "", "", errors.New("empty server url")
	}
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "http://"):
		stream = "ws://" + strings.TrimPrefix(base, "http://")
	case strings.HasPrefix(base, "https://"):
		stream = "wss://" + strings.TrimPrefix(base, "https://")
	default:
		return "", "", fmt.Errorf("server url %q: want http or https", base)
	}
	return stream + "/ws/patients", base + "/api/summaries", nil
}

// Run streams until ctx is done, reconnecting with capped exponential
// backoff. It returns nil on cancellation.
func (c *Client) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)
	backoff := c.MinBackoff
	for {
		connected, err := c.stream(ctx)
		c.State.SetConnected(false)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			backoff = c.MinBackoff
		}
		log.Warn("stream disconnected", "url", c.StreamURL, "err", err, "retry_in", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, c.MaxBackoff)
	}
}

// stream reads one connection until it fails. connected reports whether
// the dial succeeded.
func (c *Client) stream(ctx context.Context) (connected bool, err error) {
	log := logging.FromContext(ctx)
	conn, _, err := c.Dialer.DialContext(ctx, c.StreamURL, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	c.State.SetConnected(true)
	log.Info("stream connected", "url", c.StreamURL)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}
		if err := c.State.Ingest(c.Normalizer, frame); err != nil {
			log.Error("dropping frame", "err", err, "bytes", len(frame))
		}
	}
}

// summaryPayload is one entry of the summaries endpoint.
type summaryPayload struct {
	Summary *string    `json:"summary"`
	TS      *time.Time `json:"ts"`
}

// PollSummaries fetches summaries now and then every PollInterval until ctx is done.
func (c *Client) PollSummaries(ctx context.Context) error {
	log := logging.FromContext(ctx)
	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()
	for {
		if err := c.FetchSummaries(ctx); err != nil && ctx.Err() == nil {
			log.Warn("summary poll failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// FetchSummaries performs a single poll and stores the results.
func (c *Client) FetchSummaries(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.SummariesURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("get summaries: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get summaries: status %d", resp.StatusCode)
	}
	var body map[string]summaryPayload
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode summaries: %w", err)
	}
	now := c.Normalizer.now()
	for key, p := range body {
		id, err := strconv.Atoi(key)
		if err != nil || p.Summary == nil {
			continue
		}
		at := now
		if p.TS != nil {
			at = *p.TS
		}
		c.State.SetSummary(id, *p.Summary, at, now)
	}
	return nil
}
