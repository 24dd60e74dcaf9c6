package system

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Snapshot is a point-in-time view of host and process resources.
type Snapshot struct {
	CPUs          int
	MemTotal      uint64
	MemAvailable  uint64
	MemUsedPct    float64
	ProcessRSS    uint64
	ProcessCPUPct float64
}

// TakeSnapshot gathers what it can; fields it cannot read stay zero.
func TakeSnapshot() Snapshot {
	var s Snapshot

	if n, err := cpu.Counts(true); err == nil && n > 0 {
		s.CPUs = n
	} else {
		s.CPUs = runtime.NumCPU()
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemTotal = vm.Total
		s.MemAvailable = vm.Available
		s.MemUsedPct = vm.UsedPercent
	}

	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mi, err := p.MemoryInfo(); err == nil {
			s.ProcessRSS = mi.RSS
		}
		if pct, err := p.CPUPercent(); err == nil {
			s.ProcessCPUPct = pct
		}
	}
	return s
}

// Workers suggests a parallelism level: one per logical CPU, at most limit.
func Workers(limit int) int {
	n := TakeSnapshot().CPUs
	if limit > 0 && n > limit {
		n = limit
	}
	if n < 1 {
		n = 1
	}
	return n
}
