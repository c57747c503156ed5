package main

import (
	"syscall"
	"time"

	"github.com/goreplica/goreplica/cmd/goreplica/process"
)

func stop(signal syscall.Signal) {
	procs := detectProcesses()
	showProcesses(procs)
	if len(procs) == 0 {
		showMsgAndQuit("no server or client is running currently")
	}

	for _, proc := range procs {
		stopProc(proc, signal)
	}
}

func stopProc(proc process.Process, signal syscall.Signal) {
	showMsg("stop process %s pid=%d", proc.Executable(), proc.Pid())
	err := proc.Signal(signal)
	checkErrorOrQuit(err, "stop process failed")

	for proc.IsRunning() {
		time.Sleep(time.Millisecond * 100)
	}
}
