package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/goreplica/goreplica/engine/netutil"
	"github.com/pkg/errors"
	"github.com/xtaci/kcp-go"
	"golang.org/x/net/websocket"
)

const (
	dialTimeout = 10 * time.Second
)

// ClientConfig configures a NetworkClient
type ClientConfig struct {
	ServerAddr         string
	Transport          string // tcp, kcp or websocket
	CompressConnection bool
}

// NetworkClient is the transport of a client connected to one server
type NetworkClient struct {
	self    common.PeerID
	config  ClientConfig
	events  eventQueue
	handler Handler

	lock   sync.RWMutex
	conn   *peerConn
	server common.PeerID
}

// NewNetworkClient creates a client transport
func NewNetworkClient(self common.PeerID, config ClientConfig) *NetworkClient {
	if config.Transport == "" {
		config.Transport = "tcp"
	}
	return &NetworkClient{
		self:   self,
		config: config,
		events: newEventQueue(),
	}
}

func dial(config ClientConfig) (net.Conn, error) {
	switch config.Transport {
	case "tcp":
		return net.DialTimeout("tcp", config.ServerAddr, dialTimeout)
	case "kcp":
		conn, err := kcp.DialWithOptions(config.ServerAddr, nil, 10, 3)
		if err != nil {
			return nil, err
		}
		setupKCPSession(conn)
		return conn, nil
	case "websocket":
		wsConn, err := websocket.Dial(fmt.Sprintf("ws://%s/ws", config.ServerAddr), "", fmt.Sprintf("http://%s/", config.ServerAddr))
		if err != nil {
			return nil, err
		}
		wsConn.PayloadType = websocket.BinaryFrame
		return wsConn, nil
	}
	return nil, errors.Errorf("unknown transport: %s", config.Transport)
}

// Connect dials the server; OnPeerConnected fires once the server hello arrives
func (c *NetworkClient) Connect() error {
	c.lock.Lock()
	if c.conn != nil {
		c.lock.Unlock()
		return errors.New("already connected")
	}
	netconn, err := dial(c.config)
	if err != nil {
		c.lock.Unlock()
		return errors.Wrapf(err, "connect %s://%s", c.config.Transport, c.config.ServerAddr)
	}
	pc := newPeerConn(netconn, c.config.CompressConnection)
	c.conn = pc
	c.lock.Unlock()

	pc.sendHello(c.self)
	go c.serve(pc)
	return nil
}

func (c *NetworkClient) serve(pc *peerConn) {
	connected := false
	err := pc.recvLoop(c.events, func(peer common.PeerID) error {
		c.lock.Lock()
		c.server = peer
		c.lock.Unlock()
		connected = true
		c.events.push(event{kind: eventConnected, peer: peer})
		return nil
	})
	pc.close()

	c.lock.Lock()
	if c.conn == pc {
		c.conn = nil
		c.server = ""
	}
	c.lock.Unlock()

	if connected {
		c.events.push(event{kind: eventDisconnected, peer: pc.peer})
	}
	if err != nil && !netutil.IsConnectionError(err) {
		gwlog.Errorf("%s: connection failed: %v", c, err)
	}
}

// Server returns the server GUID, empty before the hello arrives
func (c *NetworkClient) Server() common.PeerID {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.server
}

// Self returns the client GUID
func (c *NetworkClient) Self() common.PeerID {
	return c.self
}

// SetHandler sets the event handler
func (c *NetworkClient) SetHandler(h Handler) {
	c.handler = h
}

// SendReliableOrdered sends the packet to the server
func (c *NetworkClient) SendReliableOrdered(peer common.PeerID, packet *netutil.Packet) error {
	c.lock.RLock()
	conn, server := c.conn, c.server
	c.lock.RUnlock()
	if conn == nil || server.IsNil() || peer != server {
		return errors.Wrapf(ErrPeerNotConnected, "%s", peer)
	}
	return conn.send(packet)
}

// Broadcast sends the packet to the server unless it is excluded
func (c *NetworkClient) Broadcast(packet *netutil.Packet, exclude common.PeerID) error {
	server := c.Server()
	if server.IsNil() || server == exclude {
		return nil
	}
	return c.SendReliableOrdered(server, packet)
}

// Peers returns the server if connected
func (c *NetworkClient) Peers() []common.PeerID {
	server := c.Server()
	if server.IsNil() {
		return nil
	}
	return []common.PeerID{server}
}

// Dispatch delivers queued events to the handler
func (c *NetworkClient) Dispatch() int {
	return c.events.dispatch(c.handler)
}

// Close closes the connection to the server
func (c *NetworkClient) Close() error {
	c.lock.RLock()
	conn := c.conn
	c.lock.RUnlock()
	if conn != nil {
		conn.close()
	}
	return nil
}

func (c *NetworkClient) String() string {
	return fmt.Sprintf("NetworkClient<%s>", c.self)
}
