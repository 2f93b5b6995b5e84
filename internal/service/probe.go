package service

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemProbe measures host CPU and memory usage via gopsutil.
type SystemProbe struct{}

// Usage returns current CPU and memory usage as fractions in [0, 1].
func (SystemProbe) Usage() (float64, float64, error) {
	percents, err := cpu.Percent(0, false)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read cpu usage: %w", err)
	}
	if len(percents) == 0 {
		return 0, 0, fmt.Errorf("no cpu usage samples")
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read memory usage: %w", err)
	}

	return percents[0] / 100, vm.UsedPercent / 100, nil
}
