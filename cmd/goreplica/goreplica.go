package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

var args struct {
	prefix     string
	configFile string
}

func parseArgs() {
	flag.StringVar(&args.prefix, "prefix", "goreplica-", "executable name prefix of server and client processes")
	flag.StringVar(&args.configFile, "configfile", "", "set config file path")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: goreplica [flags] status|stop|kill|templates list|templates import <file.yaml>...\n")
		flag.PrintDefaults()
	}
	flag.Parse()
}

func main() {
	parseArgs()
	args := flag.Args()
	showMsg("arguments: %s", strings.Join(args, " "))

	if len(args) == 0 {
		showMsg("no command to execute")
		flag.Usage()
		os.Exit(1)
	}

	switch cmd := args[0]; cmd {
	case "status":
		status()
	case "stop":
		stop(StopSignal)
	case "kill":
		stop(KillSignal)
	case "templates":
		if len(args) < 2 {
			showMsgAndQuit("should specify list or import")
		}
		templates(args[1], args[2:])
	default:
		showMsgAndQuit("unknown command: %s", cmd)
	}
}
