// Package state holds the process-wide telemetry snapshot.
//
// The simulator is the only writer and mutates through Mutate, which holds the
// write lock for a whole tick pass. Readers take deep copies through Snapshot
// and never see a sensor between its metric update and its reclassification.
package state

import (
	"sync"
	"time"

	"vitalstream/internal/telemetry"
)

// Snapshot is a consistent copy of every subject at one tick.
type Snapshot struct {
	Tick     uint64              `json:"tick"`
	Taken    time.Time           `json:"taken"`
	Subjects []telemetry.Subject `json:"subjects"`
}

// Store guards the live subjects.
type Store struct {
	mu       sync.RWMutex
	subjects []*telemetry.Subject
	tick     uint64
	updated  time.Time
}

// NewStore takes ownership of deep copies of the seed subjects.
func NewStore(seed []telemetry.Subject) *Store {
	s := &Store{subjects: make([]*telemetry.Subject, len(seed))}
	for i := range seed {
		c := seed[i].Clone()
		s.subjects[i] = &c
	}
	return s
}

// Mutate runs fn with exclusive access to the live subjects and advances the
// tick counter. fn must not retain the slice or its elements.
func (s *Store) Mutate(now time.Time, fn func(subjects []*telemetry.Subject)) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.subjects)
	s.tick++
	s.updated = now
	return s.tick
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Snapshot{
		Tick:     s.tick,
		Taken:    s.updated,
		Subjects: make([]telemetry.Subject, len(s.subjects)),
	}
	for i, subj := range s.subjects {
		out.Subjects[i] = subj.Clone()
	}
	return out
}

// SubjectIDs lists subject ids in seed order.
func (s *Store) SubjectIDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int, len(s.subjects))
	for i, subj := range s.subjects {
		ids[i] = subj.ID
	}
	return ids
}
