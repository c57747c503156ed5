package netutil

import (
	"net"

	"github.com/xiaonanln/netconnutil"
)

// Connection is a stream connection that buffers writes until flushed
type Connection interface {
	netconnutil.FlushableConn
}

// NetConn wraps a plain net.Conn as an unbuffered Connection
type NetConn struct {
	net.Conn
}

// Flush is a no-op for unbuffered connections
func (n NetConn) Flush() error {
	return nil
}
