package netutil

import (
	"context"
	"net"
	"time"

	"github.com/goreplica/goreplica/engine/gwlog"
)

const (
	_RESTART_TCP_SERVER_INTERVAL = 3 * time.Second
)

// TCPServerDelegate is the implementations that a TCP server should provide
type TCPServerDelegate interface {
	ServeTCPConnection(net.Conn)
}

// ServeTCPForever serves on specified address as TCP server until ctx is done, restarting on failures
func ServeTCPForever(ctx context.Context, listenAddr string, delegate TCPServerDelegate) {
	for ctx.Err() == nil {
		err := serveTCPForeverOnce(ctx, listenAddr, delegate)
		if ctx.Err() != nil {
			return
		}
		gwlog.Errorf("server@%s failed with error: %v, will restart after %s", listenAddr, err, _RESTART_TCP_SERVER_INTERVAL)
		select {
		case <-ctx.Done():
		case <-time.After(_RESTART_TCP_SERVER_INTERVAL):
		}
	}
}

func serveTCPForeverOnce(ctx context.Context, listenAddr string, delegate TCPServerDelegate) error {
	defer func() {
		if err := recover(); err != nil {
			gwlog.TraceError("serveTCPImpl: paniced with error %s", err)
		}
	}()

	return ServeTCP(ctx, listenAddr, delegate)
}

// ServeTCP serves on specified address as TCP server until ctx is done
func ServeTCP(ctx context.Context, listenAddr string, delegate TCPServerDelegate) error {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	gwlog.Infof("Listening on TCP: %s ...", ln.Addr())
	return ServeListener(ctx, ln, delegate)
}

// ServeListener accepts connections from ln until ctx is done
func ServeListener(ctx context.Context, ln net.Listener, delegate TCPServerDelegate) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if IsTimeoutError(err) {
				continue
			}
			return err
		}

		gwlog.Infof("Connection from: %s", conn.RemoteAddr())
		go delegate.ServeTCPConnection(conn)
	}
}
