package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"

	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/consts"
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/goreplica/goreplica/engine/gwutils"
	"github.com/goreplica/goreplica/engine/netutil"
	"github.com/pkg/errors"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	"github.com/xtaci/kcp-go"
	"golang.org/x/net/websocket"
	"golang.org/x/sync/errgroup"
)

// ServerConfig configures the listeners of a NetworkServer; empty addresses are disabled
type ServerConfig struct {
	ListenAddr         string
	KCPAddr            string
	HTTPAddr           string
	CompressConnection bool
}

// NetworkServer accepts peers over TCP, KCP and WebSocket
type NetworkServer struct {
	self    common.PeerID
	config  ServerConfig
	events  eventQueue
	handler Handler

	connsLock sync.RWMutex
	conns     map[common.PeerID]*peerConn

	tcpAddr     net.Addr
	terminating xnsyncutil.AtomicBool
	cancel      context.CancelFunc
	group       *errgroup.Group
}

// NewNetworkServer creates a server transport
func NewNetworkServer(self common.PeerID, config ServerConfig) *NetworkServer {
	return &NetworkServer{
		self:   self,
		config: config,
		events: newEventQueue(),
		conns:  map[common.PeerID]*peerConn{},
	}
}

// Start opens every configured listener and serves them in the background until Close
func (s *NetworkServer) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)
	s.group = group

	if s.config.ListenAddr != "" {
		ln, err := net.Listen("tcp", s.config.ListenAddr)
		if err != nil {
			s.cancel()
			return errors.Wrap(err, "listen tcp")
		}
		s.tcpAddr = ln.Addr()
		gwlog.Infof("Listening on TCP: %s ...", ln.Addr())
		group.Go(func() error {
			return netutil.ServeListener(ctx, ln, s)
		})
	}

	if s.config.KCPAddr != "" {
		kcpListener, err := kcp.ListenWithOptions(s.config.KCPAddr, nil, 10, 3)
		if err != nil {
			s.cancel()
			return errors.Wrap(err, "listen kcp")
		}
		gwlog.Infof("Listening on KCP: %s ...", s.config.KCPAddr)
		group.Go(func() error {
			return s.serveKCP(ctx, kcpListener)
		})
	}

	if s.config.HTTPAddr != "" {
		ln, err := net.Listen("tcp", s.config.HTTPAddr)
		if err != nil {
			s.cancel()
			return errors.Wrap(err, "listen http")
		}
		mux := http.NewServeMux()
		mux.Handle("/ws", websocket.Handler(s.handleWebSocketConn))
		httpServer := &http.Server{Handler: mux}
		gwlog.Infof("Listening on WebSocket: ws://%s/ws ...", ln.Addr())
		group.Go(func() error {
			go func() {
				<-ctx.Done()
				httpServer.Close()
			}()
			if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}
	return nil
}

// TCPAddr returns the bound TCP listener address
func (s *NetworkServer) TCPAddr() net.Addr {
	return s.tcpAddr
}

func (s *NetworkServer) serveKCP(ctx context.Context, kcpListener *kcp.Listener) error {
	go func() {
		<-ctx.Done()
		kcpListener.Close()
	}()

	for {
		conn, err := kcpListener.AcceptKCP()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go gwutils.RunPanicless(func() {
			gwlog.Infof("KCP connection from %s", conn.RemoteAddr())
			setupKCPSession(conn)
			s.handleConnection(conn)
		})
	}
}

// ServeTCPConnection handles TCP connections from peers
func (s *NetworkServer) ServeTCPConnection(conn net.Conn) {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetWriteBuffer(consts.PEER_CONN_WRITE_BUFFER_SIZE)
		tcpConn.SetReadBuffer(consts.PEER_CONN_READ_BUFFER_SIZE)
		tcpConn.SetNoDelay(true)
	}
	gwutils.RunPanicless(func() {
		s.handleConnection(conn)
	})
}

func (s *NetworkServer) handleWebSocketConn(wsConn *websocket.Conn) {
	gwlog.Debugf("WebSocket Connection: %s", wsConn.RemoteAddr())
	wsConn.PayloadType = websocket.BinaryFrame
	s.handleConnection(wsConn)
}

func (s *NetworkServer) handleConnection(netconn net.Conn) {
	if s.terminating.Load() {
		netconn.Close()
		return
	}

	c := newPeerConn(netconn, s.config.CompressConnection)
	c.sendHello(s.self)

	registered := false
	err := c.recvLoop(s.events, func(peer common.PeerID) error {
		s.connsLock.Lock()
		defer s.connsLock.Unlock()
		if peer == s.self {
			return errors.Errorf("peer %s uses the server id", peer)
		}
		if _, ok := s.conns[peer]; ok {
			return errors.Errorf("peer %s already connected", peer)
		}
		s.conns[peer] = c
		registered = true
		s.events.push(event{kind: eventConnected, peer: peer})
		return nil
	})

	c.close()
	if registered {
		s.connsLock.Lock()
		delete(s.conns, c.peer)
		s.connsLock.Unlock()
		s.events.push(event{kind: eventDisconnected, peer: c.peer})
	}

	if err != nil && !netutil.IsConnectionError(err) && !s.terminating.Load() {
		gwlog.Errorf("%s: connection %s failed: %v", s, c, err)
	} else {
		gwlog.Debugf("%s: %s disconnected", s, c)
	}
}

// Self returns the server GUID
func (s *NetworkServer) Self() common.PeerID {
	return s.self
}

// SetHandler sets the event handler
func (s *NetworkServer) SetHandler(h Handler) {
	s.handler = h
}

// SendReliableOrdered sends the packet to one peer
func (s *NetworkServer) SendReliableOrdered(peer common.PeerID, packet *netutil.Packet) error {
	s.connsLock.RLock()
	c := s.conns[peer]
	s.connsLock.RUnlock()
	if c == nil {
		return errors.Wrapf(ErrPeerNotConnected, "%s", peer)
	}
	return c.send(packet)
}

// Broadcast sends the packet to every peer except exclude
func (s *NetworkServer) Broadcast(packet *netutil.Packet, exclude common.PeerID) error {
	s.connsLock.RLock()
	defer s.connsLock.RUnlock()
	for peer, c := range s.conns {
		if peer == exclude {
			continue
		}
		if err := c.send(packet); err != nil {
			gwlog.Warnf("%s: broadcast to %s failed: %v", s, peer, err)
		}
	}
	return nil
}

// Peers returns the connected peers in sorted order
func (s *NetworkServer) Peers() []common.PeerID {
	s.connsLock.RLock()
	defer s.connsLock.RUnlock()
	peers := make([]common.PeerID, 0, len(s.conns))
	for peer := range s.conns {
		peers = append(peers, peer)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	return peers
}

// Dispatch delivers queued events to the handler
func (s *NetworkServer) Dispatch() int {
	return s.events.dispatch(s.handler)
}

// Close stops the listeners and closes every connection
func (s *NetworkServer) Close() error {
	if s.terminating.Load() {
		return nil
	}
	s.terminating.Store(true)
	if s.cancel != nil {
		s.cancel()
	}

	s.connsLock.RLock()
	for _, c := range s.conns {
		c.close()
	}
	s.connsLock.RUnlock()

	if s.group != nil {
		return s.group.Wait()
	}
	return nil
}

func (s *NetworkServer) String() string {
	return fmt.Sprintf("NetworkServer<%s>", s.self)
}
