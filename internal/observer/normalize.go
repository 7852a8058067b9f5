// Package observer consumes the snapshot stream and renders it.
package observer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"vitalstream/internal/telemetry"
)

// ErrMalformedFrame is returned for frames that match no known shape.
var ErrMalformedFrame = errors.New("malformed frame")

// DisplayTimeLayout is the form reading timestamps are shown in.
const DisplayTimeLayout = "15:04:05"

// Point is one normalized history entry.
type Point struct {
	Label string
	Value float64
}

// SensorView is a normalized sensor.
type SensorView struct {
	ID          *int
	Name        string
	Temperature *float64
	HeartRate   *int
	Battery     int
	AlertLevel  telemetry.AlertLevel
	Points      []Point
}

// Key returns the identity key of the sensor.
func (s SensorView) Key() string { return telemetry.SensorKey(s.ID, s.Name) }

// SubjectView is a normalized subject.
type SubjectView struct {
	ID      int
	Name    string
	Sensors []SensorView
}

// Normalizer turns inbound frames into views. The zero value uses
// telemetry.DefaultCapacity, the wall clock, local time and the default logger.
type Normalizer struct {
	Capacity int
	Now      func() time.Time
	Location *time.Location
	Log      *slog.Logger
}

func (n *Normalizer) capacity() int {
	if n.Capacity > 0 {
		return n.Capacity
	}
	return telemetry.DefaultCapacity
}

func (n *Normalizer) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now()
}

func (n *Normalizer) loc() *time.Location {
	if n.Location != nil {
		return n.Location
	}
	return time.Local
}

func (n *Normalizer) log() *slog.Logger {
	if n.Log != nil {
		return n.Log
	}
	return slog.Default()
}

// Normalize decodes one frame. Accepted shapes, in order: an array of
// subjects, null, and an object carrying the array under "patients" or
// "subjects". Elements that cannot be read are logged and skipped. Any
// other frame yields ErrMalformedFrame and no views.
func (n *Normalizer) Normalize(frame []byte) ([]SubjectView, error) {
	raw, err := subjectList(bytes.TrimSpace(frame))
	if err != nil {
		return nil, err
	}
	out := make([]SubjectView, 0, len(raw))
	for i, el := range raw {
		subj, err := n.subject(el)
		if err != nil {
			n.log().Warn("skipping subject", "index", i, "err", err)
			continue
		}
		out = append(out, subj)
	}
	return out, nil
}

func subjectList(frame []byte) ([]json.RawMessage, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrMalformedFrame)
	}
	switch frame[0] {
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(frame, &list); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return list, nil
	case 'n':
		if string(frame) == "null" {
			return nil, nil
		}
	case '{':
		var env map[string]json.RawMessage
		if err := json.Unmarshal(frame, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		for _, key := range []string{"patients", "subjects"} {
			v, ok := env[key]
			if !ok {
				continue
			}
			var list []json.RawMessage
			if err := json.Unmarshal(v, &list); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, key, err)
			}
			return list, nil
		}
		return nil, fmt.Errorf("%w: object without subject list", ErrMalformedFrame)
	}
	return nil, fmt.Errorf("%w: unexpected %q", ErrMalformedFrame, frame[0])
}

func (n *Normalizer) subject(raw json.RawMessage) (SubjectView, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return SubjectView{}, fmt.Errorf("subject is not an object")
	}
	subj := SubjectView{Name: stringField(obj["name"])}
	if id, ok := intField(obj["id"]); ok {
		subj.ID = id
	}

	var sensors []json.RawMessage
	for _, key := range []string{"devices", "sensors"} {
		if v, ok := obj[key]; ok {
			if err := json.Unmarshal(v, &sensors); err != nil {
				n.log().Warn("ignoring sensor list", "subject", subj.ID, "key", key, "err", err)
			}
			break
		}
	}

	index := make(map[string]int, len(sensors))
	for i, el := range sensors {
		s, err := n.sensor(el)
		if err != nil {
			n.log().Warn("skipping sensor", "subject", subj.ID, "index", i, "err", err)
			continue
		}
		key := s.Key()
		if pos, ok := index[key]; ok {
			subj.Sensors[pos] = s
			continue
		}
		index[key] = len(subj.Sensors)
		subj.Sensors = append(subj.Sensors, s)
	}
	return subj, nil
}

func (n *Normalizer) sensor(raw json.RawMessage) (SensorView, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return SensorView{}, fmt.Errorf("sensor is not an object")
	}
	s := SensorView{Name: stringField(obj["name"]), AlertLevel: telemetry.AlertGreen}
	if id, ok := intField(obj["id"]); ok {
		s.ID = &id
	}
	if t, ok := floatField(obj["temperature"]); ok {
		s.Temperature = &t
	}
	for _, key := range []string{"heartRate", "heart_rate"} {
		if hr, ok := floatField(obj[key]); ok {
			v := int(math.Round(hr))
			s.HeartRate = &v
			break
		}
	}
	if b, ok := floatField(obj["battery"]); ok {
		s.Battery = telemetry.NormalizeBattery(&b)
	}
	if lvl := telemetry.AlertLevel(stringField(obj["alertLevel"])); lvl.Valid() {
		s.AlertLevel = lvl
	}

	var readings []json.RawMessage
	if v, ok := obj["readings"]; ok {
		if err := json.Unmarshal(v, &readings); err != nil {
			n.log().Warn("ignoring readings", "sensor", s.Name, "err", err)
		}
	}
	s.Points = make([]Point, 0, len(readings))
	for i, el := range readings {
		p, err := n.point(el)
		if err != nil {
			n.log().Warn("skipping reading", "sensor", s.Name, "index", i, "err", err)
			continue
		}
		s.Points = append(s.Points, p)
	}
	if c := n.capacity(); len(s.Points) > c {
		s.Points = append([]Point(nil), s.Points[len(s.Points)-c:]...)
	}
	return s, nil
}

// point reads one reading: {time, value} with numeric epoch seconds or a
// preformatted string, a bare number, an object without time, or null.
func (n *Normalizer) point(raw json.RawMessage) (Point, error) {
	now := n.now().In(n.loc()).Format(DisplayTimeLayout)
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return Point{Label: now}, nil
	}
	switch raw[0] {
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return Point{}, err
		}
		p := Point{Label: now}
		p.Value, _ = floatField(obj["value"])
		if t, ok := obj["time"]; ok {
			if sec, ok := floatField(t); ok && sec != 0 {
				p.Label = time.UnixMilli(int64(sec * 1000)).In(n.loc()).Format(DisplayTimeLayout)
			} else if s := stringField(t); s != "" {
				p.Label = s
			}
		}
		return p, nil
	case '"', 't', 'f', '[':
		return Point{}, fmt.Errorf("unsupported reading %s", truncate(raw, 32))
	}
	v, ok := floatField(raw)
	if !ok {
		return Point{}, fmt.Errorf("unsupported reading %s", truncate(raw, 32))
	}
	return Point{Label: now, Value: v}, nil
}

func floatField(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// intField accepts a JSON number or a numeric string.
func intField(raw json.RawMessage) (int, bool) {
	if v, ok := floatField(raw); ok {
		return int(v), true
	}
	if s := stringField(raw); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			return v, true
		}
	}
	return 0, false
}

func stringField(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
