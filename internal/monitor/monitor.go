package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Status is one sample of host resource usage, in percent.
type Status struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	DiskPercent   float64   `json:"disk_percent"`
	SampledAt     time.Time `json:"sampled_at"`
}

// Critical reports whether cpu or memory usage is above threshold.
func (s Status) Critical(threshold float64) bool {
	return s.CPUPercent > threshold || s.MemoryPercent > threshold
}

// Process is a process flagged by ResourceHogs.
type Process struct {
	PID           int32   `json:"pid"`
	Name          string  `json:"name"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

// Sampler reads raw figures from the host.
type Sampler interface {
	CPU(ctx context.Context) (float64, error)
	Memory(ctx context.Context) (float64, error)
	Disk(ctx context.Context, path string) (float64, error)
	Processes(ctx context.Context) ([]Process, error)
}

// Thresholds used when none are configured.
const (
	DefaultRogueCPU = 80.0
	DefaultRogueMem = 80.0
	DefaultCritical = 90.0
)

// Monitor samples host resources.
type Monitor struct {
	sampler  Sampler
	diskPath string
	rogueCPU float64
	rogueMem float64
	now      func() time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithSampler replaces the gopsutil sampler.
func WithSampler(s Sampler) Option {
	return func(m *Monitor) {
		if s != nil {
			m.sampler = s
		}
	}
}

// WithDiskPath sets the mount point whose usage is reported.
func WithDiskPath(path string) Option {
	return func(m *Monitor) {
		if path != "" {
			m.diskPath = path
		}
	}
}

// WithRogueThresholds sets the per-process cpu and memory limits used by ResourceHogs.
func WithRogueThresholds(cpuPercent, memPercent float64) Option {
	return func(m *Monitor) {
		if cpuPercent > 0 {
			m.rogueCPU = cpuPercent
		}
		if memPercent > 0 {
			m.rogueMem = memPercent
		}
	}
}

// New returns a monitor backed by gopsutil unless WithSampler is given.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		sampler:  HostSampler{},
		diskPath: "/",
		rogueCPU: DefaultRogueCPU,
		rogueMem: DefaultRogueMem,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Status samples cpu, memory and disk usage. Partial failures still return the figures
// that could be read, together with the joined error.
func (m *Monitor) Status(ctx context.Context) (Status, error) {
	st := Status{SampledAt: m.now()}
	var errs []error
	var err error
	if st.CPUPercent, err = m.sampler.CPU(ctx); err != nil {
		errs = append(errs, fmt.Errorf("cpu: %w", err))
	}
	if st.MemoryPercent, err = m.sampler.Memory(ctx); err != nil {
		errs = append(errs, fmt.Errorf("memory: %w", err))
	}
	if st.DiskPercent, err = m.sampler.Disk(ctx, m.diskPath); err != nil {
		errs = append(errs, fmt.Errorf("disk: %w", err))
	}
	return st, errors.Join(errs...)
}

// ResourceHogs lists processes above the rogue cpu or memory threshold, heaviest cpu first.
func (m *Monitor) ResourceHogs(ctx context.Context) ([]Process, error) {
	procs, err := m.sampler.Processes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	hogs := []Process{}
	for _, p := range procs {
		if p.CPUPercent > m.rogueCPU || p.MemoryPercent > m.rogueMem {
			hogs = append(hogs, p)
		}
	}
	sort.SliceStable(hogs, func(i, j int) bool {
		return hogs[i].CPUPercent > hogs[j].CPUPercent
	})
	return hogs, nil
}

// HostSampler reads the local host through gopsutil.
type HostSampler struct{}

// CPU returns usage since the previous call, so it never blocks.
func (HostSampler) CPU(ctx context.Context) (float64, error) {
	values, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, nil
	}
	return values[0], nil
}

func (HostSampler) Memory(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

func (HostSampler) Disk(ctx context.Context, path string) (float64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return usage.UsedPercent, nil
}

// Processes skips processes that exit or deny access while being read.
func (HostSampler) Processes(ctx context.Context) ([]Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Process, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		cpuPct, err := p.CPUPercentWithContext(ctx)
		if err != nil {
			continue
		}
		memPct, err := p.MemoryPercentWithContext(ctx)
		if err != nil {
			continue
		}
		out = append(out, Process{PID: p.Pid, Name: name, CPUPercent: cpuPct, MemoryPercent: float64(memPct)})
	}
	return out, nil
}
