package telemetry

import "math"

// Alert thresholds.
const (
	HeartRateHigh   = 100
	HeartRateLow    = 60
	TemperatureHigh = 100.4
	TemperatureLow  = 97.0
)

// Classify maps current metrics to an alert level. Absent metrics take no
// part in the decision; red wins over yellow, yellow over green.
func Classify(temperature *float64, heartRate *int) AlertLevel {
	if (heartRate != nil && *heartRate > HeartRateHigh) || (temperature != nil && *temperature > TemperatureHigh) {
		return AlertRed
	}
	if (heartRate != nil && *heartRate < HeartRateLow) || (temperature != nil && *temperature < TemperatureLow) {
		return AlertYellow
	}
	return AlertGreen
}

// NormalizeBattery converts a raw battery value to a percentage in [0, 100].
// Values up to 1 are fractions; larger values are percentages. nil is 0.
func NormalizeBattery(raw *float64) int {
	if raw == nil || math.IsNaN(*raw) {
		return 0
	}
	v := *raw
	if v <= 1 {
		v *= 100
	}
	pct := int(math.Round(v))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
