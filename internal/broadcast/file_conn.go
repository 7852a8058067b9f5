package broadcast

import (
	"bufio"
	"context"
	"os"
	"sync"
)

// FileRecorder is a Conn that appends every frame to a JSONL file, one frame
// per line, so a session can be replayed later.
type FileRecorder struct {
	path   string
	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	closed bool
}

// NewFileRecorder creates or truncates path.
func NewFileRecorder(path string) (*FileRecorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &FileRecorder{path: path, f: f, w: bufio.NewWriter(f)}, nil
}

// ID implements Conn.
func (r *FileRecorder) ID() string { return "recorder:" + r.path }

// Send implements Conn.
func (r *FileRecorder) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if _, err := r.w.Write(frame); err != nil {
		return err
	}
	if err := r.w.WriteByte('\n'); err != nil {
		return err
	}
	return r.w.Flush()
}

// Close implements Conn.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.w.Flush(); err != nil {
		r.f.Close()
		return err
	}
	return r.f.Close()
}
