// Package procstat samples resource usage of running scripts and the host.
package procstat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// ErrGone is returned when the process no longer exists.
var ErrGone = errors.New("process gone")

// Process is one sample of a script's process group leader plus its
// descendants.
type Process struct {
	PID        int
	CPUPercent float64
	RSS        uint64
	Procs      int
	SampledAt  time.Time
}

// Host is one sample of machine-wide usage.
type Host struct {
	CPUPercent    float64
	CPUCores      int
	MemoryUsed    uint64
	MemoryTotal   uint64
	MemoryPercent float64
	SampledAt     time.Time
}

// SampleProcess reads CPU and memory for pid and every descendant.
func SampleProcess(ctx context.Context, pid int) (Process, error) {
	root, err := process.NewProcessWithContext(ctx, int32(pid)) //nolint:gosec // G115: pids fit in int32
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return Process{}, fmt.Errorf("%w: %d", ErrGone, pid)
		}

		return Process{}, fmt.Errorf("open process %d: %w", pid, err)
	}

	out := Process{PID: pid, SampledAt: time.Now()}

	for _, p := range tree(ctx, root) {
		if pct, err := p.CPUPercentWithContext(ctx); err == nil {
			out.CPUPercent += pct
		}

		if info, err := p.MemoryInfoWithContext(ctx); err == nil && info != nil {
			out.RSS += info.RSS
		}

		out.Procs++
	}

	return out, nil
}

// tree returns root and its descendants, depth first.
func tree(ctx context.Context, root *process.Process) []*process.Process {
	out := []*process.Process{root}

	children, err := root.ChildrenWithContext(ctx)
	if err != nil {
		return out
	}

	for _, child := range children {
		out = append(out, tree(ctx, child)...)
	}

	return out
}

// SampleHost reads overall CPU and memory usage. CPU percent is measured
// since the previous call, so the first sample may read zero.
func SampleHost(ctx context.Context) (Host, error) {
	out := Host{SampledAt: time.Now()}

	pcts, err := cpu.PercentWithContext(ctx, 0, false)
	if err == nil && len(pcts) > 0 {
		out.CPUPercent = pcts[0]
	}

	if cores, err := cpu.CountsWithContext(ctx, true); err == nil {
		out.CPUCores = cores
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return out, fmt.Errorf("read memory: %w", err)
	}

	out.MemoryUsed = vm.Used
	out.MemoryTotal = vm.Total
	out.MemoryPercent = vm.UsedPercent

	return out, nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
