package main

import (
	"context"
	"fmt"

	"vitalstream/internal/logging"
	"vitalstream/internal/sim"
)

// writerOptions selects the persistence backends.
type writerOptions struct {
	PrintOnly   bool
	LogFile     string
	PostgresDSN string
}

// newWriters sets up the persistence writers from flags and env vars:
// GREPTIMEDB_ENDPOINT (and GREPTIMEDB_DATABASE) enables GreptimeDB,
// DATABASE_URL or --postgres enables Postgres. Without either, or with
// printOnly, rows go to STDOUT. A log file adds a JSONL copy.
func newWriters(ctx context.Context, opts writerOptions, getenv func(string) string) (sim.Writer, error) {
	log := logging.FromContext(ctx)
	var ws []sim.Writer
	closeAll := func() { _ = sim.NewMultiWriter(ws...).Close() }

	if !opts.PrintOnly {
		if endpoint := getenv("GREPTIMEDB_ENDPOINT"); endpoint != "" {
			database := getenv("GREPTIMEDB_DATABASE")
			if database == "" {
				database = "public"
			}
			w, err := sim.NewGreptimeDBWriter(endpoint, database)
			if err != nil {
				return nil, fmt.Errorf("init greptimedb writer: %w", err)
			}
			log.Info("persisting to greptimedb", "endpoint", endpoint, "database", database)
			ws = append(ws, w)
		}
		dsn := opts.PostgresDSN
		if dsn == "" {
			dsn = getenv("DATABASE_URL")
		}
		if dsn != "" {
			w, err := sim.NewPostgresWriter(ctx, dsn)
			if err != nil {
				closeAll()
				return nil, fmt.Errorf("init postgres writer: %w", err)
			}
			log.Info("persisting to postgres")
			ws = append(ws, w)
		}
	}
	if len(ws) == 0 {
		log.Info("print-only mode: rows will be printed to STDOUT")
		ws = append(ws, sim.NewJSONStdoutWriter())
	}

	if opts.LogFile != "" {
		fw, err := sim.NewFileWriter(opts.LogFile, opts.LogFile+".summaries")
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("open log file: %w", err)
		}
		ws = append(ws, fw)
	}
	if len(ws) == 1 {
		return ws[0], nil
	}
	return sim.NewMultiWriter(ws...), nil
}
