package probe

import (
	"context"
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// Memory reports used virtual memory of the host.
type Memory struct{}

func (Memory) Utilization(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("read memory stats: %w", err)
	}
	return clamp(vm.UsedPercent), nil
}

func (Memory) Describe() string { return "memory" }

// CPU reports host-wide cpu usage since the previous call.
type CPU struct{}

func (CPU) Utilization(ctx context.Context) (float64, error) {
	pct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, fmt.Errorf("read cpu stats: %w", err)
	}
	if len(pct) == 0 {
		return 0, errors.New("read cpu stats: no samples")
	}
	return clamp(pct[0]), nil
}

func (CPU) Describe() string { return "cpu" }
