package observer

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"vitalstream/internal/logging"
	"vitalstream/internal/telemetry"
)

var fixedNow = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func newTestNormalizer(capacity int) *Normalizer {
	return &Normalizer{
		Capacity: capacity,
		Now:      func() time.Time { return fixedNow },
		Location: time.UTC,
		Log:      logging.Discard(),
	}
}

func TestNormalizeStrictFrame(t *testing.T) {
	frame := `[{"id":1,"name":"Patient 1","devices":[
		{"id":1,"name":"Heart Rate Sensor","heartRate":82,"battery":0.72,"alertLevel":"yellow",
		 "readings":[{"time":3600,"value":80},{"time":3601,"value":82}]},
		{"id":2,"name":"Temperature Sensor","temperature":98.6,"battery":91,"alertLevel":"green","readings":[]}]}]`
	subjects, err := newTestNormalizer(50).Normalize([]byte(frame))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(subjects) != 1 || subjects[0].ID != 1 || subjects[0].Name != "Patient 1" {
		t.Fatalf("subjects = %+v", subjects)
	}
	hr := subjects[0].Sensors[0]
	if hr.HeartRate == nil || *hr.HeartRate != 82 || hr.Temperature != nil {
		t.Fatalf("heart rate sensor metrics = %+v", hr)
	}
	if hr.Battery != 72 || hr.AlertLevel != telemetry.AlertYellow {
		t.Fatalf("battery/alert = %d/%s", hr.Battery, hr.AlertLevel)
	}
	if len(hr.Points) != 2 || hr.Points[0] != (Point{Label: "01:00:00", Value: 80}) {
		t.Fatalf("points = %+v", hr.Points)
	}
	temp := subjects[0].Sensors[1]
	if temp.Temperature == nil || *temp.Temperature != 98.6 || temp.Battery != 91 {
		t.Fatalf("temperature sensor = %+v", temp)
	}
}

func TestNormalizeLegacyShapes(t *testing.T) {
	frame := `{"patients":[{"id":"7","name":"Legacy","sensors":[
		{"name":"Pulse","heart_rate":58.6,"readings":[61, null, {"value":62}, {"time":"10:11:12","value":63}, "bad", {"value":"x"}]}]}]}`
	subjects, err := newTestNormalizer(50).Normalize([]byte(frame))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(subjects) != 1 || subjects[0].ID != 7 {
		t.Fatalf("subjects = %+v", subjects)
	}
	s := subjects[0].Sensors[0]
	if s.ID != nil || s.HeartRate == nil || *s.HeartRate != 59 {
		t.Fatalf("sensor = %+v", s)
	}
	if s.Battery != 0 || s.AlertLevel != telemetry.AlertGreen {
		t.Fatalf("defaults = %d/%s", s.Battery, s.AlertLevel)
	}
	now := fixedNow.Format(DisplayTimeLayout)
	want := []Point{
		{Label: now, Value: 61},
		{Label: now, Value: 0},
		{Label: now, Value: 62},
		{Label: "10:11:12", Value: 63},
		{Label: now, Value: 0},
	}
	if len(s.Points) != len(want) {
		t.Fatalf("points = %+v, want %+v", s.Points, want)
	}
	for i := range want {
		if s.Points[i] != want[i] {
			t.Fatalf("point %d = %+v, want %+v", i, s.Points[i], want[i])
		}
	}

	subjects, err = newTestNormalizer(50).Normalize([]byte(`{"subjects":[{"id":3,"name":"S"}]}`))
	if err != nil || len(subjects) != 1 || subjects[0].ID != 3 || len(subjects[0].Sensors) != 0 {
		t.Fatalf("subjects envelope = %+v (%v)", subjects, err)
	}
}

func TestNormalizeDedupKeepsLaterSensor(t *testing.T) {
	frame := `[{"id":1,"name":"P","devices":[
		{"id":1,"name":"Heart Rate Sensor","heartRate":70,"battery":50},
		{"id":2,"name":"Temperature Sensor","temperature":98.1,"battery":60},
		{"id":1,"name":"Heart Rate Sensor v2","heartRate":95,"battery":80},
		{"name":"Heart Rate Sensor","heartRate":65},
		{"name":"Heart Rate Sensor","heartRate":66}]}]`
	subjects, err := newTestNormalizer(50).Normalize([]byte(frame))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	sensors := subjects[0].Sensors
	if len(sensors) != 3 {
		t.Fatalf("sensors = %d, want 3: %+v", len(sensors), sensors)
	}
	if sensors[0].Name != "Heart Rate Sensor v2" || *sensors[0].HeartRate != 95 || sensors[0].Battery != 80 {
		t.Fatalf("id 1 should hold the later fields: %+v", sensors[0])
	}
	if sensors[1].ID == nil || *sensors[1].ID != 2 {
		t.Fatalf("second sensor = %+v", sensors[1])
	}
	if sensors[2].ID != nil || *sensors[2].HeartRate != 66 {
		t.Fatalf("name-keyed sensor should hold the later fields: %+v", sensors[2])
	}
}

func TestNormalizeTruncatesReadings(t *testing.T) {
	var readings []string
	for i := 0; i < 60; i++ {
		readings = append(readings, fmt.Sprintf(`{"time":%d,"value":%d}`, 1000+i, i))
	}
	frame := `[{"id":1,"name":"P","devices":[{"id":1,"name":"Heart Rate Sensor","readings":[` + strings.Join(readings, ",") + `]}]}]`
	for _, capacity := range []int{30, 50} {
		subjects, err := newTestNormalizer(capacity).Normalize([]byte(frame))
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		pts := subjects[0].Sensors[0].Points
		if len(pts) != capacity {
			t.Fatalf("capacity %d: len = %d", capacity, len(pts))
		}
		if pts[0].Value != float64(60-capacity) || pts[len(pts)-1].Value != 59 {
			t.Fatalf("capacity %d: kept %v..%v", capacity, pts[0].Value, pts[len(pts)-1].Value)
		}
	}
}

func TestNormalizeSkipsBadElements(t *testing.T) {
	frame := `[42, {"id":1,"name":"P","devices":[null, {"id":1,"name":"HR","alertLevel":"purple"}]}]`
	subjects, err := newTestNormalizer(50).Normalize([]byte(frame))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(subjects) != 1 || len(subjects[0].Sensors) != 1 {
		t.Fatalf("subjects = %+v", subjects)
	}
	if subjects[0].Sensors[0].AlertLevel != telemetry.AlertGreen {
		t.Fatalf("unknown alert level should default to green")
	}
}

func TestNormalizeMalformedFrames(t *testing.T) {
	n := newTestNormalizer(50)
	for _, frame := range []string{``, `not json`, `"text"`, `{"foo":[]}`, `[1,2`, `{"patients":{}}`, `true`} {
		if _, err := n.Normalize([]byte(frame)); !errors.Is(err, ErrMalformedFrame) {
			t.Errorf("frame %q: err = %v, want ErrMalformedFrame", frame, err)
		}
	}
	subjects, err := n.Normalize([]byte(" null "))
	if err != nil || len(subjects) != 0 {
		t.Fatalf("null frame = %+v (%v)", subjects, err)
	}
}

func TestIngestRetainsStateOnMalformedFrame(t *testing.T) {
	n := newTestNormalizer(50)
	st := NewState()
	if err := st.Ingest(n, []byte(`[{"id":1,"name":"P","devices":[]}]`)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if err := st.Ingest(n, []byte(`{broken`)); !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("Ingest malformed: %v", err)
	}
	v := st.View()
	if len(v.Subjects) != 1 || v.Subjects[0].Name != "P" {
		t.Fatalf("previous state lost: %+v", v.Subjects)
	}
	if v.Frames != 1 || v.Rejected != 1 {
		t.Fatalf("frames/rejected = %d/%d", v.Frames, v.Rejected)
	}
	if !v.UpdatedAt.Equal(fixedNow) {
		t.Fatalf("updated at = %v", v.UpdatedAt)
	}
}
