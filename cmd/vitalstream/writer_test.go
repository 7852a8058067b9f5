package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vitalstream/internal/logging"
	"vitalstream/internal/sim"
	"vitalstream/internal/telemetry"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func testCtx() context.Context {
	return logging.NewContext(context.Background(), logging.Discard())
}

func TestNewWritersPrintOnly(t *testing.T) {
	w, err := newWriters(testCtx(), writerOptions{PrintOnly: true}, env(map[string]string{
		"GREPTIMEDB_ENDPOINT": "db:4001",
		"DATABASE_URL":        "postgres://unused",
	}))
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	if _, ok := w.(*sim.JSONStdoutWriter); !ok {
		t.Fatalf("expected *sim.JSONStdoutWriter, got %T", w)
	}
}

func TestNewWritersStdoutFallback(t *testing.T) {
	w, err := newWriters(testCtx(), writerOptions{}, env(nil))
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	if _, ok := w.(*sim.JSONStdoutWriter); !ok {
		t.Fatalf("expected *sim.JSONStdoutWriter, got %T", w)
	}
}

func TestNewWritersLogFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vitals.log")
	w, err := newWriters(testCtx(), writerOptions{PrintOnly: true, LogFile: path}, env(nil))
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	mw, ok := w.(*sim.MultiWriter)
	if !ok {
		t.Fatalf("expected *sim.MultiWriter, got %T", w)
	}
	defer mw.Close()
	if mw.Len() != 2 {
		t.Fatalf("writers = %d, want 2", mw.Len())
	}

	ctx := context.Background()
	row := telemetry.ReadingRow{SubjectID: 1, SensorID: 1, SensorName: "Heart Rate Sensor", AlertLevel: "green", Timestamp: time.Now()}
	if err := w.WriteReadings(ctx, []telemetry.ReadingRow{row}); err != nil {
		t.Fatalf("write readings failed: %v", err)
	}
	if err := w.WriteSummary(ctx, telemetry.SummaryRow{SubjectID: 1, Text: "Patient 1: vitals stable", Source: telemetry.SummarySourceRule, Timestamp: time.Now()}); err != nil {
		t.Fatalf("write summary failed: %v", err)
	}
	for _, p := range []string{path, path + ".summaries"} {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat %s: %v", p, err)
		}
		if info.Size() == 0 {
			t.Fatalf("expected %s to be non-empty", p)
		}
	}
}

func TestNewWritersBadGreptimeEndpoint(t *testing.T) {
	_, err := newWriters(testCtx(), writerOptions{}, env(map[string]string{"GREPTIMEDB_ENDPOINT": "db:notaport"}))
	if err == nil {
		t.Fatalf("expected error for invalid endpoint")
	}
}
