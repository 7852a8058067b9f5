package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"vitalstream/internal/logging"
	"vitalstream/internal/observer"
	"vitalstream/internal/telemetry"
)

var (
	watchServer   string
	watchLogFile  string
	watchRedraw   time.Duration
	watchCapacity int
	watchPoll     time.Duration
	watchPlain    bool
	watchColor    bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch live vitals from a running server",
	Long:  "watch connects to a vitalstream server, keeps the stream open across disconnects and renders subjects, summaries and analytics.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, log, closeLog, err := observerContext(cmd.Context(), watchLogFile)
		if err != nil {
			return err
		}
		defer closeLog.Close()
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		st := observer.NewState()
		n := &observer.Normalizer{Capacity: watchCapacity, Log: log}
		client, err := observer.NewClient(watchServer, n, st)
		if err != nil {
			return err
		}
		client.PollInterval = watchPoll

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return client.Run(gctx) })
		g.Go(func() error { return client.PollSummaries(gctx) })
		g.Go(func() error {
			defer cancel()
			return render(gctx, os.Stdout, st, watchRedraw, watchPlain, watchColor)
		})
		return g.Wait()
	},
}

// observerContext sets up file logging for the observer commands, which
// own the terminal.
func observerContext(ctx context.Context, path string) (context.Context, *slog.Logger, io.Closer, error) {
	lvl, err := level()
	if err != nil {
		return nil, nil, nil, err
	}
	log, closer := logging.NewFile(path, lvl)
	return logging.NewContext(ctx, log), log, closer, nil
}

// useTUI reports whether the terminal UI should drive out.
func useTUI(out *os.File, plain bool) bool {
	return !plain && term.IsTerminal(int(out.Fd()))
}

// render runs the terminal UI when useTUI allows it, otherwise the line
// renderer, which flushes once more on exit.
func render(ctx context.Context, out *os.File, src observer.ViewSource, redraw time.Duration, plain, color bool) error {
	if useTUI(out, plain) {
		return observer.RunTUI(ctx, src, redraw)
	}
	lr := &observer.LineRenderer{Out: out, Src: src, Color: color}
	if err := lr.Run(ctx); err != nil {
		return err
	}
	return lr.Flush()
}

func init() {
	watchCmd.Flags().StringVar(&watchServer, "server", "http://localhost:8000", "Server base URL")
	watchCmd.Flags().StringVar(&watchLogFile, "log-file", "vitalstream-watch.log", "Log file (rotated)")
	watchCmd.Flags().DurationVar(&watchRedraw, "redraw", observer.DefaultRedrawInterval, "Terminal redraw interval")
	watchCmd.Flags().IntVar(&watchCapacity, "capacity", telemetry.DefaultCapacity, "Readings kept per sensor")
	watchCmd.Flags().DurationVar(&watchPoll, "summary-poll", observer.DefaultPollInterval, "Summary poll interval")
	watchCmd.Flags().BoolVar(&watchPlain, "plain", false, "Print text blocks instead of the terminal UI")
	watchCmd.Flags().BoolVar(&watchColor, "color", false, "Colour the plain output")
}
