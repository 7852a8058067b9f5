package observer

import (
	"sync"
	"sync/atomic"
	"time"
)

// HighlightDuration is how long a changed summary stays highlighted.
const HighlightDuration = 3 * time.Second

// Summary is the latest summary text shown for a subject.
type Summary struct {
	Text      string
	UpdatedAt time.Time
	changedAt time.Time
}

// Highlighted reports whether the summary changed within HighlightDuration of now.
func (s Summary) Highlighted(now time.Time) bool {
	return !s.changedAt.IsZero() && now.Sub(s.changedAt) < HighlightDuration
}

// View is everything the renderer draws.
type View struct {
	Subjects  []SubjectView
	Summaries map[int]Summary
	UpdatedAt time.Time
	Frames    uint64
	Rejected  uint64
	Connected bool
}

// State holds the most recent normalized frame. Frames replace the subject
// list wholesale, so a rejected frame never leaves a partial update behind.
type State struct {
	subjects  atomic.Pointer[[]SubjectView]
	updatedAt atomic.Int64
	frames    atomic.Uint64
	rejected  atomic.Uint64
	connected atomic.Bool

	mu        sync.Mutex
	summaries map[int]Summary
}

// NewState returns an empty state.
func NewState() *State {
	return &State{summaries: make(map[int]Summary)}
}

// SetSubjects publishes a newly normalized frame.
func (s *State) SetSubjects(subjects []SubjectView, at time.Time) {
	s.subjects.Store(&subjects)
	s.updatedAt.Store(at.UnixNano())
	s.frames.Add(1)
}

// Reject counts a dropped frame. The published subjects are untouched.
func (s *State) Reject() { s.rejected.Add(1) }

// SetConnected records the stream status.
func (s *State) SetConnected(v bool) { s.connected.Store(v) }

// SetSummary stores text generated at updatedAt for a subject. A text that
// differs from the previous one starts a highlight at seenAt.
func (s *State) SetSummary(id int, text string, updatedAt, seenAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.summaries[id]
	next := Summary{Text: text, UpdatedAt: updatedAt, changedAt: prev.changedAt}
	if !ok || prev.Text != text {
		next.changedAt = seenAt
	}
	s.summaries[id] = next
}

// View returns a copy of the current state.
func (s *State) View() View {
	v := View{
		Frames:    s.frames.Load(),
		Rejected:  s.rejected.Load(),
		Connected: s.connected.Load(),
	}
	if p := s.subjects.Load(); p != nil {
		v.Subjects = *p
	}
	if ns := s.updatedAt.Load(); ns != 0 {
		v.UpdatedAt = time.Unix(0, ns)
	}
	s.mu.Lock()
	v.Summaries = make(map[int]Summary, len(s.summaries))
	for id, sum := range s.summaries {
		v.Summaries[id] = sum
	}
	s.mu.Unlock()
	return v
}

// Ingest normalizes frame and publishes it. A malformed frame is counted,
// logged by the caller via the returned error, and leaves the state as is.
func (s *State) Ingest(n *Normalizer, frame []byte) error {
	subjects, err := n.Normalize(frame)
	if err != nil {
		s.Reject()
		return err
	}
	s.SetSubjects(subjects, n.now())
	return nil
}
