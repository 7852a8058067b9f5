package sim

import (
	"bufio"
	"context"
	"io"
	"os"
	"time"
)

// maxFrameSize bounds a single recorded frame line.
const maxFrameSize = 4 << 20

// ReplayFrames reads recorded frames, one per line, from r and passes each
// to emit. Frames are spaced by interval divided by speed; a non-positive
// interval or speed replays without delay. Blank lines are skipped.
func ReplayFrames(ctx context.Context, r io.Reader, interval time.Duration, speed float64, emit func([]byte) error) error {
	delay := time.Duration(0)
	if interval > 0 && speed > 0 {
		delay = time.Duration(float64(interval) / speed)
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	first := true
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if !first && delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		first = false
		frame := make([]byte, len(line))
		copy(frame, line)
		if err := emit(frame); err != nil {
			return err
		}
	}
	return sc.Err()
}

// ReplayFramesFile opens a file and replays its frames.
func ReplayFramesFile(ctx context.Context, path string, interval time.Duration, speed float64, emit func([]byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return ReplayFrames(ctx, f, interval, speed, emit)
}
