package telemetry

import (
	"strings"
	"testing"
)

func TestSummaryTextElevatedHeartRate(t *testing.T) {
	s := Subject{
		ID:   1,
		Name: "Patient 1",
		Sensors: []Sensor{
			{Name: "Heart Rate Sensor", HeartRate: intPtr(105), Temperature: floatPtr(98.0)},
			{Name: "Temperature Sensor", HeartRate: intPtr(115), Temperature: floatPtr(98.4)},
		},
	}
	got := SummaryText(s)
	if !strings.Contains(got, RemarkHeartRateHigh) {
		t.Fatalf("expected %q in %q", RemarkHeartRateHigh, got)
	}
	if strings.Contains(got, "temperature") {
		t.Fatalf("unexpected temperature remark in %q", got)
	}
	if !strings.HasPrefix(got, "Patient 1: ") {
		t.Fatalf("expected subject prefix, got %q", got)
	}
}

func TestSummaryRemarks(t *testing.T) {
	cases := []struct {
		name    string
		sensors []Sensor
		want    []string
	}{
		{
			name:    "stable",
			sensors: []Sensor{{HeartRate: intPtr(72), Temperature: floatPtr(98.6)}},
			want:    []string{RemarkStable},
		},
		{
			name:    "both elevated",
			sensors: []Sensor{{HeartRate: intPtr(120), Temperature: floatPtr(99.5)}},
			want:    []string{RemarkHeartRateHigh, RemarkTemperatureHigh},
		},
		{
			name:    "both low",
			sensors: []Sensor{{HeartRate: intPtr(50), Temperature: floatPtr(96.5)}},
			want:    []string{RemarkHeartRateLow, RemarkTemperatureLow},
		},
		{
			name:    "missing metrics are skipped",
			sensors: []Sensor{{Temperature: floatPtr(99.2)}, {Name: "no metrics"}},
			want:    []string{RemarkTemperatureHigh},
		},
		{
			name:    "no sensors",
			sensors: nil,
			want:    []string{RemarkStable},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Averages(tc.sensors).Remarks()
			if strings.Join(got, "|") != strings.Join(tc.want, "|") {
				t.Fatalf("remarks = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAveragesIgnoresAbsentMetrics(t *testing.T) {
	v := Averages([]Sensor{
		{HeartRate: intPtr(100)},
		{HeartRate: intPtr(120), Temperature: floatPtr(98.2)},
	})
	if v.AvgHeartRate == nil || *v.AvgHeartRate != 110 {
		t.Fatalf("unexpected heart rate average: %v", v.AvgHeartRate)
	}
	if v.AvgTemperature == nil || *v.AvgTemperature != 98.2 {
		t.Fatalf("unexpected temperature average: %v", v.AvgTemperature)
	}
}
