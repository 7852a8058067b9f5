// YAML config loader with CUE validation integration
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"vitalstream/internal/telemetry"
)

// Bounds and defaults of the simulation settings.
const (
	DefaultTickInterval    = 500 * time.Millisecond
	DefaultSummaryInterval = 30 * time.Second
	DefaultPersistEvery    = 5
	DefaultSendTimeout     = 250 * time.Millisecond
	DefaultSendQueue       = 16

	MinHistoryCapacity = 30
	MaxHistoryCapacity = telemetry.DefaultCapacity
)

// SensorSeed is the initial state of one sensor.
type SensorSeed struct {
	ID          *int     `yaml:"id,omitempty"`
	Name        string   `yaml:"name"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	HeartRate   *int     `yaml:"heart_rate,omitempty"`
	Battery     float64  `yaml:"battery"`
}

// SubjectSeed is the initial state of one monitored subject.
type SubjectSeed struct {
	ID      int          `yaml:"id"`
	Name    string       `yaml:"name"`
	Sensors []SensorSeed `yaml:"sensors"`
}

// SimulationConfig is the root configuration of the server.
type SimulationConfig struct {
	TickInterval    time.Duration `yaml:"tick_interval"`
	SummaryInterval time.Duration `yaml:"summary_interval"`
	HistoryCapacity int           `yaml:"history_capacity"`
	PersistEvery    int           `yaml:"persist_every"`
	SendTimeout     time.Duration `yaml:"send_timeout"`
	SendQueue       int           `yaml:"send_queue"`
	// RandomSeed seeds the metric generator; 0 seeds from the clock.
	RandomSeed int64         `yaml:"random_seed"`
	Subjects   []SubjectSeed `yaml:"subjects"`
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

// Default returns the built-in configuration: two patients, each wearing a
// heart rate sensor and a temperature sensor.
func Default() *SimulationConfig {
	return &SimulationConfig{
		TickInterval:    DefaultTickInterval,
		SummaryInterval: DefaultSummaryInterval,
		HistoryCapacity: telemetry.DefaultCapacity,
		PersistEvery:    DefaultPersistEvery,
		SendTimeout:     DefaultSendTimeout,
		SendQueue:       DefaultSendQueue,
		Subjects: []SubjectSeed{
			{ID: 1, Name: "Patient 1", Sensors: []SensorSeed{
				{ID: intPtr(1), Name: "Heart Rate Sensor", Temperature: floatPtr(98.6), HeartRate: intPtr(75), Battery: 100},
				{ID: intPtr(2), Name: "Temperature Sensor", Temperature: floatPtr(99.1), HeartRate: intPtr(72), Battery: 92},
			}},
			{ID: 2, Name: "Patient 2", Sensors: []SensorSeed{
				{ID: intPtr(3), Name: "Heart Rate Sensor", Temperature: floatPtr(97.9), HeartRate: intPtr(68), Battery: 98},
				{ID: intPtr(4), Name: "Temperature Sensor", Temperature: floatPtr(99.4), HeartRate: intPtr(70), Battery: 95},
			}},
		},
	}
}

// Load reads a YAML config, validates it against the CUE schema and fills
// unset fields from Default. An empty cueSchemaPath uses the embedded schema.
func Load(configPath, cueSchemaPath string) (*SimulationConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := ValidateWithCue(configPath, data, cueSchemaPath); err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides intervals from TICK_INTERVAL and SUMMARY_INTERVAL.
// getenv is usually os.Getenv.
func (c *SimulationConfig) ApplyEnv(getenv func(string) string) error {
	for _, o := range []struct {
		key string
		dst *time.Duration
	}{
		{"TICK_INTERVAL", &c.TickInterval},
		{"SUMMARY_INTERVAL", &c.SummaryInterval},
	} {
		v := getenv(o.key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", o.key, err)
		}
		*o.dst = d
	}
	return c.Validate()
}

// Validate checks invariants the rest of the server relies on.
func (c *SimulationConfig) Validate() error {
	var errs []error
	if c.TickInterval <= 0 {
		errs = append(errs, errors.New("tick_interval must be positive"))
	}
	if c.SummaryInterval <= 0 {
		errs = append(errs, errors.New("summary_interval must be positive"))
	}
	if c.HistoryCapacity < MinHistoryCapacity || c.HistoryCapacity > MaxHistoryCapacity {
		errs = append(errs, fmt.Errorf("history_capacity %d outside [%d, %d]",
			c.HistoryCapacity, MinHistoryCapacity, MaxHistoryCapacity))
	}
	if c.PersistEvery < 1 {
		errs = append(errs, errors.New("persist_every must be at least 1"))
	}
	seen := make(map[int]bool, len(c.Subjects))
	for _, s := range c.Subjects {
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("duplicate subject id %d", s.ID))
		}
		seen[s.ID] = true
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// BuildSubjects converts the seed into telemetry subjects with empty
// histories of HistoryCapacity. Duplicate sensor keys within a subject keep
// the position of the first and the fields of the last.
func (c *SimulationConfig) BuildSubjects() []telemetry.Subject {
	out := make([]telemetry.Subject, 0, len(c.Subjects))
	for _, seed := range c.Subjects {
		subj := telemetry.Subject{ID: seed.ID, Name: seed.Name}
		index := make(map[string]int, len(seed.Sensors))
		for _, ss := range seed.Sensors {
			s := telemetry.Sensor{
				Name:       ss.Name,
				Battery:    ss.Battery,
				AlertLevel: telemetry.AlertGreen,
				Readings:   telemetry.NewRing(c.HistoryCapacity),
			}
			if ss.ID != nil {
				s.ID = intPtr(*ss.ID)
			}
			if ss.Temperature != nil {
				s.Temperature = floatPtr(*ss.Temperature)
			}
			if ss.HeartRate != nil {
				s.HeartRate = intPtr(*ss.HeartRate)
			}
			s.AlertLevel = telemetry.Classify(s.Temperature, s.HeartRate)
			key := s.Key()
			if i, ok := index[key]; ok {
				subj.Sensors[i] = s
				continue
			}
			index[key] = len(subj.Sensors)
			subj.Sensors = append(subj.Sensors, s)
		}
		out = append(out, subj)
	}
	return out
}
