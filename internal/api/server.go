// Package api serves observer websockets and the read-only query endpoints.
package api

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/websocket"

	"vitalstream/internal/broadcast"
	"vitalstream/internal/logging"
	"vitalstream/internal/metrics"
	"vitalstream/internal/sim"
	"vitalstream/internal/state"
	"vitalstream/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

// SummarySource provides the latest summary per subject.
type SummarySource interface {
	LatestSummaries() map[int]sim.SummaryEntry
}

// Server exposes the hub and the store over HTTP.
type Server struct {
	store     *state.Store
	hub       *broadcast.Hub
	summaries SummarySource
	metrics   *metrics.Metrics
	sendQueue int
	upgrader  websocket.Upgrader
	tpl       *template.Template
	mux       *http.ServeMux
	log       *slog.Logger
}

//go:embed templates/index.html
var content embed.FS

// NewServer wires the routes. summaries and m may be nil.
func NewServer(store *state.Store, hub *broadcast.Hub, summaries SummarySource, m *metrics.Metrics, sendQueue int) *Server {
	tpl := template.Must(template.New("index.html").Funcs(template.FuncMap{
		"battery": func(v float64) int { return telemetry.NormalizeBattery(&v) },
		"temp": func(v *float64) string {
			if v == nil {
				return "-"
			}
			return fmt.Sprintf("%.1f °F", *v)
		},
	}).ParseFS(content, "templates/index.html"))
	s := &Server{
		store:     store,
		hub:       hub,
		summaries: summaries,
		metrics:   m,
		sendQueue: sendQueue,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Observers are unauthenticated and may be served from any origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		tpl: tpl,
		mux: http.NewServeMux(),
		log: slog.Default(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /ws/patients", s.handleWS)
	s.mux.HandleFunc("GET /api/current", s.handleCurrent)
	s.mux.HandleFunc("GET /api/summaries", s.handleSummaries)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", s.metrics.Handler())
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.mux }

// Start serves on addr until ctx is done, then shuts down gracefully and
// closes every observer connection.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.log = logging.FromContext(ctx)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log = logging.FromContext(ctx)
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Hijacked websocket connections are not tracked by Shutdown.
	s.hub.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log.Info("api stopped")
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	c := broadcast.NewWSConn(ws, s.sendQueue)
	s.hub.Register(c)
	log := s.log.With("conn_id", c.ID(), "remote", r.RemoteAddr)
	log.Info("observer connected", "observers", s.hub.Len())

	// Send the current state right away instead of waiting for the next tick.
	if frame, err := json.Marshal(s.store.Snapshot().Subjects); err == nil {
		ctx, cancel := context.WithTimeout(r.Context(), broadcast.DefaultSendTimeout)
		if err := c.Send(ctx, frame); err != nil {
			log.Debug("initial frame not sent", "err", err)
		}
		cancel()
	}

	c.ReadPump(func() {
		if s.hub.Unregister(c.ID()) {
			log.Info("observer disconnected", "observers", s.hub.Len())
		}
	})
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.store.Snapshot().Subjects)
}

// summaryResponse mirrors one entry of /api/summaries. Subjects without a
// summary yet report nulls.
type summaryResponse struct {
	Summary *string    `json:"summary"`
	TS      *time.Time `json:"ts"`
}

func (s *Server) handleSummaries(w http.ResponseWriter, r *http.Request) {
	var latest map[int]sim.SummaryEntry
	if s.summaries != nil {
		latest = s.summaries.LatestSummaries()
	}
	out := make(map[int]summaryResponse)
	for _, id := range s.store.SubjectIDs() {
		e, ok := latest[id]
		if !ok {
			out[id] = summaryResponse{}
			continue
		}
		text, ts := e.Text, e.Timestamp
		out[id] = summaryResponse{Summary: &text, TS: &ts}
	}
	writeJSON(w, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	writeJSON(w, map[string]any{
		"status":    "ok",
		"tick":      snap.Tick,
		"observers": s.hub.Len(),
	})
}

type indexRow struct {
	Subject telemetry.Subject
	Summary string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	var latest map[int]sim.SummaryEntry
	if s.summaries != nil {
		latest = s.summaries.LatestSummaries()
	}
	rows := make([]indexRow, 0, len(snap.Subjects))
	for _, subj := range snap.Subjects {
		rows = append(rows, indexRow{Subject: subj, Summary: latest[subj.ID].Text})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Subject.ID < rows[j].Subject.ID })
	data := struct {
		Tick      uint64
		Observers int
		Rows      []indexRow
	}{snap.Tick, s.hub.Len(), rows}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tpl.Execute(w, data); err != nil {
		s.log.Error("render index failed", "err", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
