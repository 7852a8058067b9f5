package observer

import "math"

// Battery colour band thresholds, in percent.
const (
	BatteryLow    = 40
	BatteryMedium = 75
)

// Band is a coarse colour class.
type Band string

const (
	BandRed    Band = "red"
	BandYellow Band = "yellow"
	BandGreen  Band = "green"
)

// BatteryBand maps a battery percentage to its colour band.
func BatteryBand(pct int) Band {
	switch {
	case pct < BatteryLow:
		return BandRed
	case pct < BatteryMedium:
		return BandYellow
	}
	return BandGreen
}

// SubjectBattery is the lowest battery among the subject's sensors, 0 without sensors.
func SubjectBattery(s SubjectView) int {
	if len(s.Sensors) == 0 {
		return 0
	}
	low := math.MaxInt
	for _, d := range s.Sensors {
		low = min(low, d.Battery)
	}
	return low
}

// Stat summarizes a series. All fields are 0 for an empty series.
type Stat struct {
	Avg, Min, Max float64
	N             int
}

func (s *Stat) add(v float64) {
	if s.N == 0 {
		s.Min, s.Max = v, v
	} else {
		s.Min = min(s.Min, v)
		s.Max = max(s.Max, v)
	}
	s.Avg += (v - s.Avg) / float64(s.N+1)
	s.N++
}

// Analytics aggregates every sensor on screen.
type Analytics struct {
	Devices     int
	Temperature Stat
	HeartRate   Stat
}

// Analyze computes the footer analytics over all subjects.
func Analyze(subjects []SubjectView) Analytics {
	var a Analytics
	for _, subj := range subjects {
		for _, d := range subj.Sensors {
			a.Devices++
			if d.Temperature != nil {
				a.Temperature.add(*d.Temperature)
			}
			if d.HeartRate != nil {
				a.HeartRate.add(float64(*d.HeartRate))
			}
		}
	}
	return a
}
