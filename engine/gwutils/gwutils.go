package gwutils

import (
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/pkg/errors"
)

// RunPanicless calls a function panic-freely
func RunPanicless(f func()) (paniced bool) {
	defer func() {
		err := recover()
		if err != nil {
			gwlog.TraceError("%v panic: %v", f, err)
			paniced = true
		}
	}()

	f()
	return
}

// RepeatUntilPanicless runs the function repeatly until there is no panic
func RepeatUntilPanicless(f func()) {
	for RunPanicless(f) {
	}
}

// CatchPanic calls f and converts a panic into an error
func CatchPanic(f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = errors.Errorf("%v", r)
			}
		}
	}()

	f()
	return
}
