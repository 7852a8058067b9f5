package observer

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// DefaultLineInterval is the redraw cadence of the line renderer.
const DefaultLineInterval = time.Second

const (
	colorReset  = "\x1b[0m"
	colorRed    = "\x1b[31m"
	colorGreen  = "\x1b[32m"
	colorYellow = "\x1b[33m"
	colorCyan   = "\x1b[36m"
	colorGray   = "\x1b[90m"
)

var bandANSI = map[Band]string{
	BandRed:    colorRed,
	BandYellow: colorYellow,
	BandGreen:  colorGreen,
}

// LineRenderer prints the state as plain text blocks for pipes and logs.
type LineRenderer struct {
	Out      io.Writer
	Src      ViewSource
	Interval time.Duration
	Color    bool
	Now      func() time.Time

	lastFrames uint64
}

// Run prints a block every Interval while new frames keep arriving, until
// ctx is done.
func (r *LineRenderer) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultLineInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.Flush(); err != nil {
				return err
			}
		}
	}
}

// Flush renders the current state if frames arrived since the last block.
func (r *LineRenderer) Flush() error {
	v := r.Src.View()
	if v.Frames == r.lastFrames {
		return nil
	}
	r.lastFrames = v.Frames
	return r.Render(v)
}

func (r *LineRenderer) paint(color, s string) string {
	if !r.Color {
		return s
	}
	return color + s + colorReset
}

// Render writes one block for v.
func (r *LineRenderer) Render(v View) error {
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	stamp := "-"
	if !v.UpdatedAt.IsZero() {
		stamp = v.UpdatedAt.Format(DisplayTimeLayout)
	}
	if _, err := fmt.Fprintf(r.Out, "%s frames=%d dropped=%d\n", r.paint(colorGray, "["+stamp+"]"), v.Frames, v.Rejected); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(r.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "SUBJECT\tSENSOR\tTEMP\tHR\tBATT\tALERT\tTREND\n")
	for _, subj := range v.Subjects {
		for _, d := range subj.Sensors {
			row := sensorRow(subj, d)
			row[5] = r.paint(bandANSI[alertBand(d.AlertLevel)], row[5])
			row[4] = r.paint(bandANSI[BatteryBand(d.Battery)], row[4])
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", row[0], row[1], row[2], row[3], row[4], row[5], row[6])
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, subj := range v.Subjects {
		sum, ok := v.Summaries[subj.ID]
		text := pendingSummary
		if ok {
			text = sum.Text
			if sum.Highlighted(now) {
				text = r.paint(colorCyan, text)
			}
		}
		if _, err := fmt.Fprintf(r.Out, "  %s: %s\n", subj.Name, text); err != nil {
			return err
		}
	}
	a := Analyze(v.Subjects)
	_, err := fmt.Fprintf(r.Out, "  devices=%d temp avg=%.1f min=%.1f max=%.1f hr avg=%.0f min=%.0f max=%.0f\n",
		a.Devices, a.Temperature.Avg, a.Temperature.Min, a.Temperature.Max,
		a.HeartRate.Avg, a.HeartRate.Min, a.HeartRate.Max)
	return err
}
