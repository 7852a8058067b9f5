package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"vitalstream/internal/api"
	"vitalstream/internal/broadcast"
	"vitalstream/internal/config"
	"vitalstream/internal/logging"
	"vitalstream/internal/metrics"
	"vitalstream/internal/sim"
	"vitalstream/internal/state"
)

var (
	serveConfigPath      string
	serveSchemaPath      string
	serveAddr            string
	servePrintOnly       bool
	serveLogFile         string
	servePostgres        string
	serveRecord          string
	serveTick            time.Duration
	serveSummaryInterval time.Duration
	serveWorkers         int
	serveQueue           int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the simulator and serve observers",
	Long:  "serve ticks the patient simulation, broadcasts every snapshot over /ws/patients, generates periodic health summaries and persists readings and summaries.",
	RunE: func(cmd *cobra.Command, args []string) error {
		lvl, err := level()
		if err != nil {
			return err
		}
		log := logging.NewWriter(os.Stderr, lvl)
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = logging.NewContext(ctx, log)

		cfg, err := loadConfig(cmd, serveConfigPath, serveSchemaPath)
		if err != nil {
			return err
		}

		m := metrics.New()
		store := state.NewStore(cfg.BuildSubjects())
		hub := broadcast.NewHub(cfg.SendTimeout, m)

		backend, err := newWriters(ctx, writerOptions{
			PrintOnly:   servePrintOnly,
			LogFile:     serveLogFile,
			PostgresDSN: servePostgres,
		}, os.Getenv)
		if err != nil {
			return err
		}
		recorder := sim.NewAsyncRecorder(backend, serveWorkers, serveQueue, log, m)
		defer func() {
			if err := recorder.Close(); err != nil {
				log.Error("closing persistence", "err", err)
			}
			log.Info("persistence closed", "dropped", recorder.Dropped(), "failed", recorder.Failed())
		}()

		if serveRecord != "" {
			fr, err := broadcast.NewFileRecorder(serveRecord)
			if err != nil {
				return fmt.Errorf("open frame recording: %w", err)
			}
			hub.Register(fr)
			log.Info("recording frames", "path", serveRecord)
		}

		simulator := sim.NewSimulator(cfg, store, hub, recorder, m)
		summaries := sim.NewSummaryScheduler(store, recorder, cfg.SummaryInterval, m)
		srv := api.NewServer(store, hub, summaries, m, cfg.SendQueue)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			simulator.Run(gctx)
			return nil
		})
		g.Go(func() error {
			summaries.Run(gctx)
			return nil
		})
		g.Go(func() error {
			return srv.Start(gctx, serveAddr)
		})
		err = g.Wait()
		hub.CloseAll()
		log.Info("vitalstream stopped", "ticks", simulator.Ticks())
		return err
	},
}

// loadConfig reads the config file, or the built-in seed when path is
// empty, then applies env overrides and finally explicit flags.
func loadConfig(cmd *cobra.Command, path, schema string) (*config.SimulationConfig, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path, schema); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("tick") {
		cfg.TickInterval = serveTick
	}
	if cmd.Flags().Changed("summary-interval") {
		cfg.SummaryInterval = serveSummaryInterval
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to simulation configuration YAML (built-in seed when empty)")
	serveCmd.Flags().StringVar(&serveSchemaPath, "schema", "", "Path to CUE schema file (embedded schema when empty)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8000", "HTTP listen address")
	serveCmd.Flags().BoolVar(&servePrintOnly, "print-only", false, "Print rows to STDOUT instead of writing to a database")
	serveCmd.Flags().StringVar(&serveLogFile, "log-file", "", "Path to export readings/summaries (JSONL)")
	serveCmd.Flags().StringVar(&servePostgres, "postgres", "", "Postgres DSN (defaults to DATABASE_URL)")
	serveCmd.Flags().StringVar(&serveRecord, "record", "", "Record every broadcast frame to this JSONL file")
	serveCmd.Flags().DurationVar(&serveTick, "tick", config.DefaultTickInterval, "Simulation tick interval (e.g. 500ms, 2s)")
	serveCmd.Flags().DurationVar(&serveSummaryInterval, "summary-interval", config.DefaultSummaryInterval, "Summary generation interval")
	serveCmd.Flags().IntVar(&serveWorkers, "persist-workers", 2, "Persistence worker goroutines")
	serveCmd.Flags().IntVar(&serveQueue, "persist-queue", 64, "Pending persistence writes before dropping")
}
