package sim

import (
	"context"
	"sync"
	"time"

	"vitalstream/internal/logging"
	"vitalstream/internal/metrics"
	"vitalstream/internal/state"
	"vitalstream/internal/telemetry"
)

// SummaryEntry is the latest summary of one subject.
type SummaryEntry struct {
	Text      string    `json:"summary"`
	Timestamp time.Time `json:"ts"`
}

// SummaryScheduler derives rule-based summaries on its own cadence,
// independent of the tick. It only reads the store.
type SummaryScheduler struct {
	store    *state.Store
	writer   SummaryWriter
	metrics  *metrics.Metrics
	interval time.Duration
	now      func() time.Time

	mu     sync.RWMutex
	latest map[int]SummaryEntry
}

// NewSummaryScheduler creates a scheduler. writer and m may be nil.
func NewSummaryScheduler(store *state.Store, writer SummaryWriter, interval time.Duration, m *metrics.Metrics) *SummaryScheduler {
	return &SummaryScheduler{
		store:    store,
		writer:   writer,
		metrics:  m,
		interval: interval,
		now:      time.Now,
		latest:   make(map[int]SummaryEntry),
	}
}

// Run computes summaries immediately and then every interval until ctx is done.
func (s *SummaryScheduler) Run(ctx context.Context) {
	log := logging.FromContext(ctx)
	log.Info("starting summary scheduler", "interval", s.interval)
	s.RunOnce(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-ctx.Done():
			log.Info("stopping summary scheduler")
			return
		}
	}
}

// RunOnce summarizes every subject of one snapshot, stores the results as
// the latest summaries and hands them to the writer.
func (s *SummaryScheduler) RunOnce(ctx context.Context) []telemetry.SummaryRow {
	log := logging.FromContext(ctx)
	snap := s.store.Snapshot()
	ts := s.now()

	rows := make([]telemetry.SummaryRow, 0, len(snap.Subjects))
	for _, subj := range snap.Subjects {
		rows = append(rows, telemetry.SummaryRow{
			SubjectID: subj.ID,
			Text:      telemetry.SummaryText(subj),
			Source:    telemetry.SummarySourceRule,
			Timestamp: ts,
		})
	}

	s.mu.Lock()
	for _, r := range rows {
		s.latest[r.SubjectID] = SummaryEntry{Text: r.Text, Timestamp: r.Timestamp}
	}
	s.mu.Unlock()

	for _, r := range rows {
		s.metrics.SummaryGenerated()
		if s.writer == nil {
			continue
		}
		if err := s.writer.WriteSummary(ctx, r); err != nil {
			log.Error("summary write failed", "subject_id", r.SubjectID, "err", err)
		}
	}
	log.Debug("summaries generated", "subjects", len(rows), "tick", snap.Tick)
	return rows
}

// LatestSummaries returns a copy of the latest summary per subject id.
func (s *SummaryScheduler) LatestSummaries() map[int]SummaryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]SummaryEntry, len(s.latest))
	for id, e := range s.latest {
		out[id] = e
	}
	return out
}
