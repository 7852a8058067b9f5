package sim

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"vitalstream/internal/metrics"
	"vitalstream/internal/telemetry"
)

// Recorder defaults.
const (
	DefaultRecorderWorkers = 2
	DefaultRecorderQueue   = 64
	DefaultWriteTimeout    = 5 * time.Second
)

const (
	kindReading = "reading"
	kindSummary = "summary"
)

type recordJob struct {
	readings []telemetry.ReadingRow
	summary  *telemetry.SummaryRow
}

func (j recordJob) kind() string {
	if j.summary != nil {
		return kindSummary
	}
	return kindReading
}

// AsyncRecorder hands persistence writes to a fixed pool of workers so that
// storage latency never reaches the tick. Writes that find the queue full
// are dropped, logged and counted. It implements Writer and never returns
// an error to the caller.
type AsyncRecorder struct {
	next         Writer
	jobs         chan recordJob
	log          *slog.Logger
	metrics      *metrics.Metrics
	writeTimeout time.Duration

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewAsyncRecorder starts workers draining a queue of the given size into
// next. Non-positive sizes use the defaults.
func NewAsyncRecorder(next Writer, workers, queue int, log *slog.Logger, m *metrics.Metrics) *AsyncRecorder {
	if workers <= 0 {
		workers = DefaultRecorderWorkers
	}
	if queue <= 0 {
		queue = DefaultRecorderQueue
	}
	if log == nil {
		log = slog.Default()
	}
	r := &AsyncRecorder{
		next:         next,
		jobs:         make(chan recordJob, queue),
		log:          log,
		metrics:      m,
		writeTimeout: DefaultWriteTimeout,
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

// WriteReadings queues rows for persistence.
func (r *AsyncRecorder) WriteReadings(_ context.Context, rows []telemetry.ReadingRow) error {
	if len(rows) == 0 {
		return nil
	}
	r.enqueue(recordJob{readings: rows})
	return nil
}

// WriteSummary queues a summary for persistence.
func (r *AsyncRecorder) WriteSummary(_ context.Context, row telemetry.SummaryRow) error {
	r.enqueue(recordJob{summary: &row})
	return nil
}

func (r *AsyncRecorder) enqueue(j recordJob) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.drop(j, "recorder closed")
		return
	}
	select {
	case r.jobs <- j:
	default:
		r.drop(j, "queue full")
	}
}

func (r *AsyncRecorder) drop(j recordJob, reason string) {
	r.dropped.Add(1)
	r.metrics.PersistDrop()
	r.log.Warn("persistence write dropped", "kind", j.kind(), "reason", reason)
}

func (r *AsyncRecorder) worker() {
	defer r.wg.Done()
	for j := range r.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
		var err error
		if j.summary != nil {
			err = r.next.WriteSummary(ctx, *j.summary)
		} else {
			err = r.next.WriteReadings(ctx, j.readings)
		}
		cancel()
		if err != nil {
			r.failed.Add(1)
			r.metrics.PersistFailed(j.kind())
			r.log.Error("persistence write failed", "kind", j.kind(), "err", err)
		}
	}
}

// Dropped returns the number of writes dropped so far.
func (r *AsyncRecorder) Dropped() uint64 { return r.dropped.Load() }

// Failed returns the number of writes the backend rejected so far.
func (r *AsyncRecorder) Failed() uint64 { return r.failed.Load() }

// Close stops accepting writes, waits for queued writes to finish and
// closes the backend if it is closable.
func (r *AsyncRecorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.jobs)
	r.mu.Unlock()
	r.wg.Wait()
	if c, ok := r.next.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
