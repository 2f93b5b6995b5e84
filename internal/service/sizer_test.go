package service

import (
	"errors"
	"testing"
	"time"
)

type fakeProbe struct {
	cpu float64
	mem float64
	err error
}

func (p fakeProbe) Usage() (float64, float64, error) {
	return p.cpu, p.mem, p.err
}

func fixedHour(hour int) func() time.Time {
	return func() time.Time {
		return time.Date(2026, 3, 14, hour, 0, 0, 0, time.UTC)
	}
}

func TestQueueFactor(t *testing.T) {
	tests := []struct {
		pending int
		want    float64
	}{
		{1, 0.5},
		{49, 0.5},
		{50, 1.0},
		{499, 1.0},
		{500, 1.5},
		{4999, 1.5},
		{5000, 2.0},
		{100000, 2.0},
	}
	for _, tt := range tests {
		if got := queueFactor(tt.pending); got != tt.want {
			t.Errorf("queueFactor(%d) = %v, want %v", tt.pending, got, tt.want)
		}
	}
}

func TestTimeOfDayFactor(t *testing.T) {
	tests := []struct {
		hour int
		want float64
	}{
		{0, 1.5},
		{5, 1.5},
		{6, 1.0},
		{8, 1.0},
		{9, 0.7},
		{17, 0.7},
		{18, 1.0},
		{21, 1.0},
		{22, 1.5},
		{23, 1.5},
	}
	for _, tt := range tests {
		if got := timeOfDayFactor(tt.hour); got != tt.want {
			t.Errorf("timeOfDayFactor(%d) = %v, want %v", tt.hour, got, tt.want)
		}
	}
}

func TestResourceFactor(t *testing.T) {
	tests := []struct {
		name  string
		probe ResourceProbe
		want  float64
	}{
		{"nil probe is neutral", nil, 1.0},
		{"probe error is neutral", fakeProbe{err: errors.New("no metrics")}, 1.0},
		{"idle host boosts", fakeProbe{cpu: 0, mem: 0}, 2.0},
		{"saturated host throttles", fakeProbe{cpu: 1, mem: 1}, 0.5},
		{"half load is mid scale", fakeProbe{cpu: 0.5, mem: 0.5}, 1.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resourceFactor(tt.probe); got != tt.want {
				t.Errorf("resourceFactor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOptimalSize(t *testing.T) {
	tests := []struct {
		name        string
		defaultSize int
		probe       ResourceProbe
		hour        int
		pending     int
		taskType    string
		want        int
	}{
		{
			name: "zero pending yields zero",
			defaultSize: 100, probe: fakeProbe{cpu: 0.5, mem: 0.5}, hour: 12,
			pending: 0, taskType: "parsing", want: 0,
		},
		{
			name: "result clamped to pending count",
			defaultSize: 100, probe: fakeProbe{cpu: 0.5, mem: 0.5}, hour: 12,
			pending: 5, taskType: "parsing", want: 5,
		},
		{
			name: "shallow queue below computed size",
			defaultSize: 100, probe: fakeProbe{cpu: 0.5, mem: 0.5}, hour: 12,
			pending: 40, taskType: "parsing", want: 40,
		},
		{
			name: "mid queue at peak hours",
			defaultSize: 100, probe: fakeProbe{cpu: 0.5, mem: 0.5}, hour: 12,
			pending: 200, taskType: "parsing", want: 98,
		},
		{
			name: "probe failure falls back to neutral",
			defaultSize: 100, probe: fakeProbe{err: errors.New("unavailable")}, hour: 12,
			pending: 200, taskType: "parsing", want: 91,
		},
		{
			name: "off peak hours boost",
			defaultSize: 100, probe: fakeProbe{cpu: 0.5, mem: 0.5}, hour: 23,
			pending: 200, taskType: "parsing", want: 122,
		},
		{
			name: "deep queue",
			defaultSize: 100, probe: fakeProbe{cpu: 0.5, mem: 0.5}, hour: 12,
			pending: 6000, taskType: "parsing", want: 138,
		},
		{
			name: "minimum size floor",
			defaultSize: 10, probe: fakeProbe{cpu: 0.5, mem: 0.5}, hour: 12,
			pending: 40, taskType: "parsing", want: 10,
		},
		{
			name: "parsing ceiling applies",
			defaultSize: 10000, probe: fakeProbe{cpu: 0.5, mem: 0.5}, hour: 12,
			pending: 6000, taskType: "parsing", want: 1000,
		},
		{
			name: "embedding ceiling is higher",
			defaultSize: 10000, probe: fakeProbe{cpu: 0.5, mem: 0.5}, hour: 12,
			pending: 20000, taskType: "cv_embedding", want: 10000,
		},
		{
			name: "unknown task uses default ceiling",
			defaultSize: 10000, probe: fakeProbe{cpu: 0.5, mem: 0.5}, hour: 12,
			pending: 6000, taskType: "mystery", want: 1000,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Sizer{
				DefaultSize: tt.defaultSize,
				Probe:       tt.probe,
				Now:         fixedHour(tt.hour),
			}
			if got := s.OptimalSize(tt.pending, tt.taskType); got != tt.want {
				t.Errorf("OptimalSize(%d, %q) = %d, want %d", tt.pending, tt.taskType, got, tt.want)
			}
		})
	}
}
