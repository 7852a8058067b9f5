package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"vitalstream/internal/logging"
	"vitalstream/internal/metrics"
	"vitalstream/internal/telemetry"
)

type blockingWriter struct {
	memWriter
	release chan struct{}
}

func (b *blockingWriter) WriteReadings(ctx context.Context, rows []telemetry.ReadingRow) error {
	<-b.release
	return b.memWriter.WriteReadings(ctx, rows)
}

func TestAsyncRecorderDelivers(t *testing.T) {
	w := &memWriter{}
	r := NewAsyncRecorder(w, 2, 8, logging.Discard(), nil)
	row := telemetry.ReadingRow{SubjectID: 1, SensorID: 1, Timestamp: time.Now()}
	_ = r.WriteReadings(context.Background(), []telemetry.ReadingRow{row, row})
	_ = r.WriteSummary(context.Background(), telemetry.SummaryRow{SubjectID: 1})
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	readings, summaries := w.counts()
	if readings != 2 || summaries != 1 {
		t.Fatalf("readings=%d summaries=%d", readings, summaries)
	}
}

func TestAsyncRecorderDropsWhenFull(t *testing.T) {
	m := metrics.New()
	w := &blockingWriter{release: make(chan struct{})}
	r := NewAsyncRecorder(w, 1, 1, logging.Discard(), m)
	rows := []telemetry.ReadingRow{{SubjectID: 1}}

	// The first job occupies the worker; the queue holds one more.
	start := time.Now()
	for i := 0; i < 5; i++ {
		_ = r.WriteReadings(context.Background(), rows)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("enqueue blocked while the backend was stalled")
	}
	if r.Dropped() < 3 {
		t.Fatalf("dropped = %d, want at least 3", r.Dropped())
	}
	if got := testutil.ToFloat64(m.PersistDropped); got != float64(r.Dropped()) {
		t.Fatalf("dropped metric = %v, want %d", got, r.Dropped())
	}
	close(w.release)
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n, _ := w.counts(); n+int(r.Dropped()) != 5 {
		t.Fatalf("written %d + dropped %d != 5", n, r.Dropped())
	}
}

func TestAsyncRecorderCountsFailures(t *testing.T) {
	m := metrics.New()
	w := &memWriter{err: errors.New("db down")}
	r := NewAsyncRecorder(w, 1, 4, logging.Discard(), m)
	_ = r.WriteSummary(context.Background(), telemetry.SummaryRow{SubjectID: 1})
	_ = r.Close()
	if r.Failed() != 1 {
		t.Fatalf("failed = %d", r.Failed())
	}
	if got := testutil.ToFloat64(m.PersistErrors.WithLabelValues("summary")); got != 1 {
		t.Fatalf("persist errors = %v", got)
	}
}

func TestAsyncRecorderAfterClose(t *testing.T) {
	w := &memWriter{}
	r := NewAsyncRecorder(w, 1, 1, logging.Discard(), nil)
	_ = r.Close()
	_ = r.Close()
	_ = r.WriteSummary(context.Background(), telemetry.SummaryRow{})
	if r.Dropped() != 1 {
		t.Fatalf("write after close not dropped")
	}
}
