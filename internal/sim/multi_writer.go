package sim

import (
	"context"
	"errors"

	"vitalstream/internal/telemetry"
)

// MultiWriter fans readings and summaries out to multiple writers. Every
// writer is attempted; failures are joined.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(ws ...Writer) *MultiWriter {
	return &MultiWriter{writers: ws}
}

// Len returns the number of wrapped writers.
func (mw *MultiWriter) Len() int { return len(mw.writers) }

// WriteReadings sends rows to all writers.
func (mw *MultiWriter) WriteReadings(ctx context.Context, rows []telemetry.ReadingRow) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.WriteReadings(ctx, rows); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteSummary sends a summary row to all writers.
func (mw *MultiWriter) WriteSummary(ctx context.Context, row telemetry.SummaryRow) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.WriteSummary(ctx, row); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every writer that is closable.
func (mw *MultiWriter) Close() error {
	var errs []error
	for _, w := range mw.writers {
		if c, ok := w.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
