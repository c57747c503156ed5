package binutil

import (
	"io"
	"net"
	"net/http"
	"os"

	"github.com/goreplica/goreplica/engine/gwlog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SetupPprofServer serves net/http/pprof on addr; an empty addr disables it
func SetupPprofServer(addr string) {
	if addr == "" {
		gwlog.Infof("pprof server not enabled")
		return
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		gwlog.Errorf("pprof server listen on %s failed: %v", addr, err)
		return
	}
	gwlog.Infof("pprof http://%s/debug/pprof/ ... available commands: ", ln.Addr())
	gwlog.Infof("    go tool pprof http://%s/debug/pprof/heap", ln.Addr())
	gwlog.Infof("    go tool pprof http://%s/debug/pprof/profile", ln.Addr())

	go func() {
		http.Serve(ln, nil)
	}()
}

// SetupGWLog sets up the log system of a server or client process
func SetupGWLog(component string, logLevel string, logFile string, logStderr bool) {
	gwlog.SetSource(component)
	gwlog.Infof("Set log level to %s", logLevel)
	gwlog.SetLevel(gwlog.StringToLevel(logLevel))

	outputWriters := make([]io.Writer, 0, 2)
	if logFile != "" {
		logFileWriter := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100, // megabytes
			MaxBackups: 100,
			MaxAge:     30, //days
			Compress:   true,
		}
		logFileWriter.Rotate() // rotate immediately
		outputWriters = append(outputWriters, logFileWriter)
	}

	if logStderr {
		outputWriters = append(outputWriters, os.Stderr)
	}

	switch len(outputWriters) {
	case 0:
		gwlog.SetOutput(io.Discard)
	case 1:
		gwlog.SetOutput(outputWriters[0])
	default:
		gwlog.SetOutput(io.MultiWriter(outputWriters...))
	}
}
