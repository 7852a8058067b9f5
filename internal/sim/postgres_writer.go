package sim

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"vitalstream/internal/telemetry"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS device_readings (
  id BIGSERIAL PRIMARY KEY,
  subject_id INTEGER NOT NULL,
  device_id INTEGER NOT NULL,
  device_name TEXT NOT NULL,
  temperature DOUBLE PRECISION,
  heart_rate DOUBLE PRECISION,
  battery DOUBLE PRECISION,
  alert_level TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS device_readings_device_idx ON device_readings (device_id, created_at);
CREATE TABLE IF NOT EXISTS health_summaries (
  id BIGSERIAL PRIMARY KEY,
  patient_id INTEGER NOT NULL,
  summary_text TEXT NOT NULL,
  source TEXT NOT NULL DEFAULT 'rule',
  created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS health_summaries_patient_idx ON health_summaries (patient_id, created_at);
`

const (
	insertReadingSQL = `INSERT INTO device_readings
  (subject_id, device_id, device_name, temperature, heart_rate, battery, alert_level, created_at)
  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	insertSummarySQL = `INSERT INTO health_summaries
  (patient_id, summary_text, source, created_at)
  VALUES ($1, $2, $3, $4)`
)

// PostgresWriter stores readings and summaries in PostgreSQL.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens dsn, checks connectivity and creates the tables.
func NewPostgresWriter(ctx context.Context, dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	w := NewPostgresWriterDB(db)
	if err := w.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return w, nil
}

// NewPostgresWriterDB wraps an open database handle.
func NewPostgresWriterDB(db *sql.DB) *PostgresWriter {
	return &PostgresWriter{db: db}
}

// EnsureSchema creates the tables if they do not exist.
func (w *PostgresWriter) EnsureSchema(ctx context.Context) error {
	if _, err := w.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create postgres schema: %w", err)
	}
	return nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: float64(*v), Valid: true}
}

// WriteReadings inserts rows in a single transaction.
func (w *PostgresWriter) WriteReadings(ctx context.Context, rows []telemetry.ReadingRow) (err error) {
	if len(rows) == 0 {
		return nil
	}
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reading tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PrepareContext(ctx, insertReadingSQL)
	if err != nil {
		return fmt.Errorf("prepare reading insert: %w", err)
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err = stmt.ExecContext(ctx, r.SubjectID, r.SensorID, r.SensorName,
			nullFloat(r.Temperature), nullInt(r.HeartRate), nullFloat(r.Battery),
			r.AlertLevel, r.Timestamp); err != nil {
			return fmt.Errorf("insert reading for device %d: %w", r.SensorID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit readings: %w", err)
	}
	return nil
}

// WriteSummary inserts one summary row.
func (w *PostgresWriter) WriteSummary(ctx context.Context, row telemetry.SummaryRow) error {
	if _, err := w.db.ExecContext(ctx, insertSummarySQL, row.SubjectID, row.Text, row.Source, row.Timestamp); err != nil {
		return fmt.Errorf("insert summary for patient %d: %w", row.SubjectID, err)
	}
	return nil
}

// Close closes the database handle.
func (w *PostgresWriter) Close() error {
	return w.db.Close()
}
