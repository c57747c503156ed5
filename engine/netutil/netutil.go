package netutil

import (
	"io"
	"net"

	"github.com/pkg/errors"
)

type timeoutError interface {
	Timeout() bool
}

// IsTimeoutError checks if the error is a timeout error
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	ne, ok := errors.Cause(err).(timeoutError)
	return ok && ne.Timeout()
}

// IsConnectionError check if the error is a connection error (close)
func IsConnectionError(_err interface{}) bool {
	err, ok := _err.(error)
	if !ok {
		return false
	}

	err = errors.Cause(err)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return true
	}

	neterr, ok := err.(net.Error)
	if !ok {
		return false
	}
	return !neterr.Timeout()
}
