package telemetry

import "strings"

// Summary thresholds applied to per-subject averages.
const (
	SummaryHeartRateHigh   = 100
	SummaryHeartRateLow    = 60
	SummaryTemperatureHigh = 99
	SummaryTemperatureLow  = 97
)

// Summary remarks.
const (
	RemarkHeartRateHigh   = "elevated heart rate"
	RemarkHeartRateLow    = "low heart rate"
	RemarkTemperatureHigh = "temperature slightly elevated"
	RemarkTemperatureLow  = "temperature slightly low"
	RemarkStable          = "vitals stable"
)

// Vitals holds averages of the metrics available across a subject's sensors.
type Vitals struct {
	AvgTemperature *float64
	AvgHeartRate   *float64
}

// Averages computes the mean temperature and heart rate over the sensors that
// report them.
func Averages(sensors []Sensor) Vitals {
	var tSum, hSum float64
	var tN, hN int
	for i := range sensors {
		if t := sensors[i].Temperature; t != nil {
			tSum += *t
			tN++
		}
		if hr := sensors[i].HeartRate; hr != nil {
			hSum += float64(*hr)
			hN++
		}
	}
	var v Vitals
	if tN > 0 {
		avg := tSum / float64(tN)
		v.AvgTemperature = &avg
	}
	if hN > 0 {
		avg := hSum / float64(hN)
		v.AvgHeartRate = &avg
	}
	return v
}

// Remarks derives the status remarks for a set of averages. It never returns
// an empty slice.
func (v Vitals) Remarks() []string {
	var out []string
	if hr := v.AvgHeartRate; hr != nil {
		if *hr > SummaryHeartRateHigh {
			out = append(out, RemarkHeartRateHigh)
		} else if *hr < SummaryHeartRateLow {
			out = append(out, RemarkHeartRateLow)
		}
	}
	if t := v.AvgTemperature; t != nil {
		if *t > SummaryTemperatureHigh {
			out = append(out, RemarkTemperatureHigh)
		} else if *t < SummaryTemperatureLow {
			out = append(out, RemarkTemperatureLow)
		}
	}
	if len(out) == 0 {
		out = append(out, RemarkStable)
	}
	return out
}

// SummaryText builds the one-line status of a subject.
func SummaryText(s Subject) string {
	return s.Name + ": " + strings.Join(Averages(s.Sensors).Remarks(), ", ")
}
