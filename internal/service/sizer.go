// Package service implements the batch orchestration pipeline: adaptive
// sizing, per-domain request building, submission, status polling, and
// result reconciliation.
package service

import (
	"time"
)

// Per-task ceilings reflect provider cost and latency differences.
var taskCeilings = map[string]int{
	"parsing":       1000,
	"cv_embedding":  10000,
	"job_embedding": 10000,
	"matching":      1000,
	"explanation":   5000,
}

const (
	minBatchSize       = 10
	defaultTaskCeiling = 1000
)

// ResourceProbe reports current system CPU and memory usage as fractions in
// [0, 1]. Implementations that cannot measure return an error, which maps to
// the neutral sizing factor.
type ResourceProbe interface {
	Usage() (cpu float64, mem float64, err error)
}

// Sizer computes how many pending items to include in the next submission,
// weighing queue depth, system headroom, and time of day.
type Sizer struct {
	DefaultSize int
	Probe       ResourceProbe
	Now         func() time.Time
}

// NewSizer creates a sizer with the system resource probe and wall clock.
func NewSizer(defaultSize int) *Sizer {
	if defaultSize <= 0 {
		defaultSize = 100
	}
	return &Sizer{
		DefaultSize: defaultSize,
		Probe:       SystemProbe{},
		Now:         time.Now,
	}
}

// OptimalSize returns the batch size for the given queue depth and task
// type. Zero pending items yields zero; otherwise the result is clamped to
// [10, per-task ceiling] and never exceeds pendingCount.
func (s *Sizer) OptimalSize(pendingCount int, taskType string) int {
	if pendingCount <= 0 {
		return 0
	}

	qf := queueFactor(pendingCount)
	rf := resourceFactor(s.Probe)
	tf := timeOfDayFactor(s.now().Hour())

	return computeSize(pendingCount, s.DefaultSize, ceilingFor(taskType), qf, rf, tf)
}

func (s *Sizer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// computeSize is the pure sizing core: weighted factor average scaled onto
// the default size, clamped to [10, ceiling] and then to pendingCount.
func computeSize(pendingCount, defaultSize, ceiling int, qf, rf, tf float64) int {
	weighted := 0.4*qf + 0.3*rf + 0.3*tf

	size := int(float64(defaultSize) * weighted)
	if size < minBatchSize {
		size = minBatchSize
	}
	if size > ceiling {
		size = ceiling
	}
	if size > pendingCount {
		size = pendingCount
	}
	return size
}

// queueFactor steps up with queue depth: deeper backlogs justify larger
// batches.
func queueFactor(pendingCount int) float64 {
	switch {
	case pendingCount < 50:
		return 0.5
	case pendingCount < 500:
		return 1.0
	case pendingCount < 5000:
		return 1.5
	default:
		return 2.0
	}
}

// resourceFactor averages CPU and memory headroom mapped onto [0.5, 2.0].
// An unavailable probe yields the neutral 1.0.
func resourceFactor(probe ResourceProbe) float64 {
	if probe == nil {
		return 1.0
	}
	cpu, mem, err := probe.Usage()
	if err != nil {
		return 1.0
	}
	return (headroomFactor(cpu) + headroomFactor(mem)) / 2
}

func headroomFactor(usage float64) float64 {
	if usage < 0 || usage > 1 {
		return 1.0
	}
	return 0.5 + 1.5*(1-usage)
}

// timeOfDayFactor favors off-peak hours and throttles peak hours.
func timeOfDayFactor(hour int) float64 {
	switch {
	case hour < 6 || hour >= 22:
		return 1.5
	case hour >= 9 && hour < 18:
		return 0.7
	default:
		return 1.0
	}
}

func ceilingFor(taskType string) int {
	if ceiling, ok := taskCeilings[taskType]; ok {
		return ceiling
	}
	return defaultTaskCeiling
}
