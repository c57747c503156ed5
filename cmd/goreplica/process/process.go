// Package process lists goreplica processes with gopsutil
package process

import (
	"strings"
	"syscall"

	psutil_process "github.com/shirou/gopsutil/process"
)

// Process is a running process
type Process interface {
	Pid() int32
	Executable() string
	Cmdline() string
	CPUPercent() float64
	MemoryRSS() uint64
	Signal(sig syscall.Signal) error
	IsRunning() bool
}

type process struct {
	*psutil_process.Process
}

func (p process) Pid() int32 {
	return p.Process.Pid
}

func (p process) Executable() string {
	name, _ := p.Process.Name()
	return name
}

func (p process) Cmdline() string {
	cmdline, err := p.Process.CmdlineSlice()
	if err != nil {
		return ""
	}
	return strings.Join(cmdline, " ")
}

func (p process) CPUPercent() float64 {
	cpu, _ := p.Process.CPUPercent()
	return cpu
}

func (p process) MemoryRSS() uint64 {
	mem, err := p.Process.MemoryInfo()
	if err != nil {
		return 0
	}
	return mem.RSS
}

func (p process) Signal(sig syscall.Signal) error {
	return p.Process.SendSignal(sig)
}

func (p process) IsRunning() bool {
	running, err := p.Process.IsRunning()
	return err == nil && running
}

// Processes returns the processes whose executable name starts with prefix, except self
func Processes(prefix string, self int32) ([]Process, error) {
	var procs []Process

	ps, err := psutil_process.Processes()
	if err != nil {
		return nil, err
	}

	for _, _p := range ps {
		p := process{_p}
		if p.Pid() == self {
			continue
		}
		if strings.HasPrefix(p.Executable(), prefix) {
			procs = append(procs, p)
		}
	}
	return procs, nil
}
