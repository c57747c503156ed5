// +build windows

package main

import (
	"syscall"
)

const (
	// BinaryExtension extension used on windows
	BinaryExtension = ".exe"
	// StopSignal syscall used to stop server
	StopSignal = syscall.SIGKILL
	// KillSignal syscall used to kill server
	KillSignal = syscall.SIGKILL
)
