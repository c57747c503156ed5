package main

import (
	"fmt"
	"os"
)

const exitFailure = 2

func showMsg(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, "> "+format+"\n", a...)
}

func showMsgAndQuit(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, "! "+format+"\n", a...)
	os.Exit(exitFailure)
}

func checkErrorOrQuit(err error, msg string) {
	if err != nil {
		showMsgAndQuit("%s: %v", msg, err)
	}
}
