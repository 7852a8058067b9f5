package telemetry

import "encoding/json"

// DefaultCapacity is the history length kept per sensor.
const DefaultCapacity = 50

// Ring is a fixed-capacity FIFO of readings. The zero value has no capacity
// and drops every push; use NewRing.
type Ring struct {
	buf   []Reading
	start int
	n     int
}

// NewRing returns an empty ring holding at most capacity readings.
func NewRing(capacity int) Ring {
	if capacity < 0 {
		capacity = 0
	}
	return Ring{buf: make([]Reading, capacity)}
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Len returns the number of readings held.
func (r *Ring) Len() int { return r.n }

// Push appends a reading, evicting the oldest one when full.
func (r *Ring) Push(rd Reading) {
	if len(r.buf) == 0 {
		return
	}
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = rd
		r.n++
		return
	}
	r.buf[r.start] = rd
	r.start = (r.start + 1) % len(r.buf)
}

// Items returns the readings oldest first as a fresh slice.
func (r *Ring) Items() []Reading {
	out := make([]Reading, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Last returns the newest reading.
func (r *Ring) Last() (Reading, bool) {
	if r.n == 0 {
		return Reading{}, false
	}
	return r.buf[(r.start+r.n-1)%len(r.buf)], true
}

// Clone returns an independent copy with the same capacity.
func (r Ring) Clone() Ring {
	out := Ring{buf: make([]Reading, len(r.buf)), start: r.start, n: r.n}
	copy(out.buf, r.buf)
	return out
}

// MarshalJSON encodes the ring as an array of readings, oldest first.
func (r Ring) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Items())
}

// UnmarshalJSON fills the ring from an array of readings. The capacity
// becomes the array length unless the ring already has one, in which case
// only the newest readings are kept.
func (r *Ring) UnmarshalJSON(b []byte) error {
	var items []Reading
	if err := json.Unmarshal(b, &items); err != nil {
		return err
	}
	capacity := len(r.buf)
	if capacity == 0 {
		capacity = len(items)
	}
	*r = NewRing(capacity)
	for _, it := range items {
		r.Push(it)
	}
	return nil
}
