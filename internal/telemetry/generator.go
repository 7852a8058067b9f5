package telemetry

import (
	"math/rand"
	"time"
)

// Perturbation bounds applied per tick.
const (
	heartRateMaxDelta   = 2
	temperatureMaxDelta = 0.2
	batteryMaxDrain     = 0.2
)

// Generator perturbs sensor metrics for one simulation tick. It is not safe
// for concurrent use; the simulator owns it.
type Generator struct {
	rand *rand.Rand
}

// NewGenerator creates a generator seeded with seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{rand: rand.New(rand.NewSource(seed))}
}

// Step advances one sensor by a tick: metrics drift, battery drains,
// the alert level is recomputed and the primary metric is appended to the
// history at ts.
func (g *Generator) Step(s *Sensor, ts time.Time) {
	switch s.Kind() {
	case KindHeartRate:
		if s.HeartRate == nil {
			hr := BaselineHeartRate
			s.HeartRate = &hr
		}
	case KindTemperature:
		if s.Temperature == nil {
			t := BaselineTemperature
			s.Temperature = &t
		}
	}

	if s.HeartRate != nil {
		hr := *s.HeartRate + g.rand.Intn(2*heartRateMaxDelta+1) - heartRateMaxDelta
		if hr < 0 {
			hr = 0
		}
		*s.HeartRate = hr
	}
	if s.Temperature != nil {
		*s.Temperature += g.rand.Float64()*2*temperatureMaxDelta - temperatureMaxDelta
	}

	s.Battery -= g.rand.Float64() * batteryMaxDrain
	if s.Battery < 0 {
		s.Battery = 0
	}

	s.AlertLevel = Classify(s.Temperature, s.HeartRate)

	if v, ok := s.PrimaryValue(); ok {
		s.Readings.Push(Reading{Time: ts.Unix(), Value: v})
	}
}
