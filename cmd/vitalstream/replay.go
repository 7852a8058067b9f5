package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"vitalstream/internal/config"
	"vitalstream/internal/observer"
	"vitalstream/internal/sim"
	"vitalstream/internal/telemetry"
)

var (
	replayInput    string
	replaySpeed    float64
	replayInterval time.Duration
	replayLogFile  string
	replayPlain    bool
	replayColor    bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded frame file",
	Long:  "replay feeds frames recorded with serve --record through the observer normalizer and renderer.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		ctx, log, closeLog, err := observerContext(cmd.Context(), replayLogFile)
		if err != nil {
			return err
		}
		defer closeLog.Close()
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		st := observer.NewState()
		n := &observer.Normalizer{Capacity: telemetry.DefaultCapacity, Log: log}
		st.SetConnected(true)
		tui := useTUI(os.Stdout, replayPlain)

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			err := sim.ReplayFramesFile(gctx, replayInput, replayInterval, replaySpeed, func(frame []byte) error {
				if err := st.Ingest(n, frame); err != nil {
					log.Error("dropping frame", "err", err)
				}
				return nil
			})
			st.SetConnected(false)
			log.Info("replay finished", "frames", st.View().Frames, "err", err)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if err != nil {
				cancel()
				return fmt.Errorf("replay %s: %w", replayInput, err)
			}
			// The terminal UI stays up until the user quits.
			if !tui {
				cancel()
			}
			return nil
		})
		g.Go(func() error {
			defer cancel()
			return render(gctx, os.Stdout, st, observer.DefaultRedrawInterval, replayPlain, replayColor)
		})
		return g.Wait()
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to a recorded frame file (JSONL)")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier")
	replayCmd.Flags().DurationVar(&replayInterval, "interval", config.DefaultTickInterval, "Spacing of recorded frames")
	replayCmd.Flags().StringVar(&replayLogFile, "log-file", "vitalstream-replay.log", "Log file (rotated)")
	replayCmd.Flags().BoolVar(&replayPlain, "plain", false, "Print text blocks instead of the terminal UI")
	replayCmd.Flags().BoolVar(&replayColor, "color", false, "Colour the plain output")
	replayCmd.MarkFlagRequired("input")
}
