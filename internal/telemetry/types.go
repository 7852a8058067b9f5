// Telemetry model shared by the simulator, the store and the wire frame
package telemetry

import (
	"fmt"
	"strings"
	"time"
)

// AlertLevel is the three-level severity derived from a sensor's metrics.
type AlertLevel string

// Alert levels in increasing severity.
const (
	AlertGreen  AlertLevel = "green"
	AlertYellow AlertLevel = "yellow"
	AlertRed    AlertLevel = "red"
)

// Valid reports whether l is one of the known alert levels.
func (l AlertLevel) Valid() bool {
	switch l {
	case AlertGreen, AlertYellow, AlertRed:
		return true
	}
	return false
}

// SensorKind is derived from the sensor display name.
type SensorKind int

const (
	KindUnknown SensorKind = iota
	KindHeartRate
	KindTemperature
)

// Baselines used when a sensor's primary metric has not been seeded.
const (
	BaselineHeartRate   = 70
	BaselineTemperature = 98.6
)

// Subject is a monitored entity owning its sensors.
type Subject struct {
	ID      int      `json:"id"`
	Name    string   `json:"name"`
	Sensors []Sensor `json:"devices"`
}

// Sensor is one telemetry source of a subject.
type Sensor struct {
	ID          *int       `json:"id,omitempty"`
	Name        string     `json:"name"`
	Temperature *float64   `json:"temperature,omitempty"`
	HeartRate   *int       `json:"heartRate,omitempty"`
	Battery     float64    `json:"battery"`
	AlertLevel  AlertLevel `json:"alertLevel"`
	Readings    Ring       `json:"readings"`
}

// Reading is one history point. Time is epoch seconds.
type Reading struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// Kind classifies the sensor by its name.
func (s *Sensor) Kind() SensorKind {
	name := strings.ToLower(s.Name)
	switch {
	case strings.Contains(name, "temp"):
		return KindTemperature
	case strings.Contains(name, "heart"):
		return KindHeartRate
	}
	return KindUnknown
}

// Key returns the identity key of the sensor within its subject: the id when
// present, the name otherwise. The two forms live in separate namespaces.
func (s *Sensor) Key() string {
	return SensorKey(s.ID, s.Name)
}

// SensorKey builds an identity key from an optional id and a name.
func SensorKey(id *int, name string) string {
	if id != nil {
		return fmt.Sprintf("id:%d", *id)
	}
	return "name:" + name
}

// PrimaryValue returns the metric plotted in the sensor history: temperature
// for temperature sensors, heart rate otherwise. ok is false when absent.
func (s *Sensor) PrimaryValue() (float64, bool) {
	if s.Kind() == KindTemperature {
		if s.Temperature == nil {
			return 0, false
		}
		return *s.Temperature, true
	}
	if s.HeartRate == nil {
		return 0, false
	}
	return float64(*s.HeartRate), true
}

// Clone returns a deep copy of the sensor.
func (s Sensor) Clone() Sensor {
	out := s
	if s.ID != nil {
		id := *s.ID
		out.ID = &id
	}
	if s.Temperature != nil {
		t := *s.Temperature
		out.Temperature = &t
	}
	if s.HeartRate != nil {
		hr := *s.HeartRate
		out.HeartRate = &hr
	}
	out.Readings = s.Readings.Clone()
	return out
}

// Clone returns a deep copy of the subject.
func (s Subject) Clone() Subject {
	out := Subject{ID: s.ID, Name: s.Name, Sensors: make([]Sensor, len(s.Sensors))}
	for i := range s.Sensors {
		out.Sensors[i] = s.Sensors[i].Clone()
	}
	return out
}

// ReadingRow is the persisted form of one sensor sample.
type ReadingRow struct {
	SubjectID   int       `json:"subject_id"`
	SensorID    int       `json:"sensor_id"`
	SensorName  string    `json:"sensor_name"`
	Temperature *float64  `json:"temperature,omitempty"`
	HeartRate   *int      `json:"heart_rate,omitempty"`
	Battery     *float64  `json:"battery,omitempty"`
	AlertLevel  string    `json:"alert_level"`
	Timestamp   time.Time `json:"ts"`
}

// SummaryRow is the persisted form of a subject health summary.
type SummaryRow struct {
	SubjectID int       `json:"subject_id"`
	Text      string    `json:"summary_text"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"ts"`
}

// SummarySourceRule marks summaries derived by the rule engine.
const SummarySourceRule = "rule"

// NewReadingRow captures the current metrics of a sensor for persistence.
// Sensors without an id are recorded with SensorID 0.
func NewReadingRow(subjectID int, s *Sensor, ts time.Time) ReadingRow {
	row := ReadingRow{
		SubjectID:  subjectID,
		SensorName: s.Name,
		AlertLevel: string(s.AlertLevel),
		Timestamp:  ts,
	}
	if s.ID != nil {
		row.SensorID = *s.ID
	}
	if s.Temperature != nil {
		t := *s.Temperature
		row.Temperature = &t
	}
	if s.HeartRate != nil {
		hr := *s.HeartRate
		row.HeartRate = &hr
	}
	b := s.Battery
	row.Battery = &b
	return row
}
