package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"vitalstream/internal/telemetry"
)

// JSONStdoutWriter prints readings and summaries as JSON lines to STDOUT.
// Each line is wrapped in an envelope naming its kind.
type JSONStdoutWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

type stdoutEnvelope struct {
	Kind string `json:"kind"`
	Row  any    `json:"row"`
}

func (w *JSONStdoutWriter) emit(kind string, row any) error {
	data, err := json.Marshal(stdoutEnvelope{Kind: kind, Row: row})
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

// WriteReadings outputs reading rows in JSON format.
func (w *JSONStdoutWriter) WriteReadings(_ context.Context, rows []telemetry.ReadingRow) error {
	for _, r := range rows {
		if err := w.emit(kindReading, r); err != nil {
			return err
		}
	}
	return nil
}

// WriteSummary outputs a summary row in JSON format.
func (w *JSONStdoutWriter) WriteSummary(_ context.Context, row telemetry.SummaryRow) error {
	return w.emit(kindSummary, row)
}
