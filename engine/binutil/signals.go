package binutil

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/goreplica/goreplica/engine/gwlog"
)

// SetupSignals calls terminate once on the first SIGINT or SIGTERM
func SetupSignals(terminate func()) {
	gwlog.Infof("Setup signals ...")
	signalChan := make(chan os.Signal, 1)
	signal.Ignore(syscall.SIGPIPE, syscall.SIGHUP)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signalChan
		gwlog.Infof("Terminating on %s ...", sig)
		terminate()
	}()
}
