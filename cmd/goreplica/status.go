package main

import (
	"os"

	"github.com/goreplica/goreplica/cmd/goreplica/process"
)

func detectProcesses() []process.Process {
	procs, err := process.Processes(args.prefix, int32(os.Getpid()))
	checkErrorOrQuit(err, "list processes failed")
	return procs
}

func status() {
	showProcesses(detectProcesses())
}

func showProcesses(procs []process.Process) {
	showMsg("%d processes running", len(procs))
	for _, proc := range procs {
		showMsg("\t%-10d%-24s%6.1f%%%8dMB  %s", proc.Pid(), proc.Executable(), proc.CPUPercent(), proc.MemoryRSS()>>20, proc.Cmdline())
	}
}
