// +build windows

package binutil

import "github.com/goreplica/goreplica/engine/gwlog"

type nopRelease int

func (_ nopRelease) Release() {

}

// Daemonize is not supported on windows
func Daemonize(pidFile string) nopRelease {
	gwlog.Warnf("can not run in daemon mode in windows, -d ignored")
	return nopRelease(0)
}
