package monitoring

import (
	"os"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessSampler reads resident memory for the current process, with a
// fallback to system memory when the process handle is unavailable.
type ProcessSampler struct {
	proc *process.Process
}

func NewProcessSampler() *ProcessSampler {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		proc = nil
	}
	return &ProcessSampler{proc: proc}
}

// MemoryMB returns the current RSS in megabytes, or 0 when neither the
// process nor system memory can be read.
func (p *ProcessSampler) MemoryMB() float64 {
	if p.proc != nil {
		if memInfo, err := p.proc.MemoryInfo(); err == nil {
			return float64(memInfo.RSS) / 1024 / 1024
		}
	}
	if vmem, err := mem.VirtualMemory(); err == nil {
		return float64(vmem.Used) / 1024 / 1024
	}
	return 0
}
