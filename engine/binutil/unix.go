// +build !windows

package binutil

import (
	"os"

	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/sevlyar/go-daemon"
)

// Daemonize forks the process into the background and writes its pid to pidFile, the parent exits
func Daemonize(pidFile string) *daemon.Context {
	dctx := &daemon.Context{
		PidFileName: pidFile,
		PidFilePerm: 0644,
	}
	child, err := dctx.Reborn()

	if err != nil {
		gwlog.Panicf("daemonize failed: %v", err)
	}

	if child != nil {
		gwlog.Infof("run in daemon mode")
		os.Exit(0)
		return nil
	} else {
		return dctx
	}
}
