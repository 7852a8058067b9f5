package sim

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"vitalstream/internal/telemetry"
)

// FileWriter writes readings and summaries to JSONL files.
type FileWriter struct {
	mu          sync.Mutex
	readingFile *os.File
	summaryFile *os.File
	readingEnc  *json.Encoder
	summaryEnc  *json.Encoder
}

// NewFileWriter creates a FileWriter. summaryPath may be empty to skip summaries.
func NewFileWriter(readingPath, summaryPath string) (*FileWriter, error) {
	rf, err := os.Create(readingPath)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{readingFile: rf, readingEnc: json.NewEncoder(rf)}
	if summaryPath != "" {
		sf, err := os.Create(summaryPath)
		if err != nil {
			rf.Close()
			return nil, err
		}
		fw.summaryFile = sf
		fw.summaryEnc = json.NewEncoder(sf)
	}
	return fw, nil
}

// WriteReadings logs reading rows, one per line.
func (f *FileWriter) WriteReadings(_ context.Context, rows []telemetry.ReadingRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		if err := f.readingEnc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteSummary logs a summary row, if enabled.
func (f *FileWriter) WriteSummary(_ context.Context, row telemetry.SummaryRow) error {
	if f.summaryEnc == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summaryEnc.Encode(row)
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	var err error
	if f.readingFile != nil {
		if e := f.readingFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	if f.summaryFile != nil {
		if e := f.summaryFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
