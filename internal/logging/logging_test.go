package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, slog.LevelInfo)
	ctx := NewContext(context.Background(), l)
	FromContext(ctx).Info("hello", "k", "v")
	if !strings.Contains(buf.String(), "k=v") {
		t.Fatalf("logger from context did not write: %q", buf.String())
	}
	if FromContext(context.Background()) != slog.Default() {
		t.Fatalf("expected default logger for empty context")
	}
}

func TestNewFileWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.log")
	l, closer := NewFile(path, slog.LevelDebug)
	l.Debug("frame dropped", "err", "bad json")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(b), "frame dropped") {
		t.Fatalf("log file missing entry: %q", b)
	}
}
