package transport

import (
	"fmt"
	"net"

	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/consts"
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/goreplica/goreplica/engine/gwutils"
	"github.com/goreplica/goreplica/engine/netutil"
	"github.com/pkg/errors"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	"github.com/xiaonanln/netconnutil"
	"github.com/xtaci/kcp-go"
)

// peerConn is a network connection to one peer
//
// The first packet in each direction is the hello carrying the sender GUID.
type peerConn struct {
	peer   common.PeerID
	pc     *netutil.PacketConnection
	closed xnsyncutil.AtomicBool
}

func newPeerConn(netconn net.Conn, compress bool) *peerConn {
	netconn = netconnutil.NewNoTempErrorConn(netconn)
	var conn netutil.Connection = netutil.NetConn{Conn: netconn}
	if compress {
		conn = netconnutil.NewSnappyConn(conn)
	}
	conn = netconnutil.NewBufferedConn(conn, consts.BUFFERED_READ_BUFFSIZE, consts.BUFFERED_WRITE_BUFFSIZE)
	pc := &peerConn{}
	pc.pc = netutil.NewPacketConnection(conn, pc)
	return pc
}

func setupKCPSession(conn *kcp.UDPSession) {
	conn.SetReadBuffer(consts.PEER_CONN_READ_BUFFER_SIZE)
	conn.SetWriteBuffer(consts.PEER_CONN_WRITE_BUFFER_SIZE)
	// turbo mode
	conn.SetStreamMode(true)
	conn.SetWriteDelay(true)
	conn.SetNoDelay(1, 10, 2, 1)
}

func (c *peerConn) sendHello(self common.PeerID) {
	packet := netutil.NewPacket()
	packet.AppendVarStr(string(self))
	c.pc.SendPacket(packet)
	packet.Release()
}

func readHello(packet *netutil.Packet) (peer common.PeerID, err error) {
	if perr := gwutils.CatchPanic(func() {
		peer = common.PeerID(packet.ReadVarStr())
	}); perr != nil {
		return "", errors.Wrapf(common.ErrDecodeFailure, "read hello: %v", perr)
	}
	if peer.IsNil() {
		err = errors.New("read hello: empty peer id")
	}
	return
}

func (c *peerConn) send(packet *netutil.Packet) error {
	if c.closed.Load() {
		return errors.Wrapf(ErrPeerNotConnected, "%s", c.peer)
	}
	c.pc.SendPacket(packet)
	return nil
}

// recvLoop reads the hello, calls onHello, then pushes every packet as a message event
func (c *peerConn) recvLoop(events eventQueue, onHello func(peer common.PeerID) error) error {
	ch := make(chan *netutil.Packet, consts.RECV_PACKET_QUEUE_SIZE)
	errChan := make(chan error, 1)
	go func() {
		errChan <- c.pc.RecvChan(ch)
		close(ch)
	}()

	for packet := range ch {
		if c.peer.IsNil() {
			peer, err := readHello(packet)
			packet.Release()
			if err == nil {
				c.peer = peer
				err = onHello(peer)
			}
			if err != nil {
				c.close()
				for p := range ch {
					p.Release()
				}
				<-errChan
				return err
			}
			continue
		}
		events.push(event{kind: eventMessage, peer: c.peer, packet: packet})
	}
	return <-errChan
}

func (c *peerConn) close() {
	if c.closed.Load() {
		return
	}
	c.closed.Store(true)
	if err := c.pc.Close(); err != nil {
		gwlog.Debugf("%s close: %v", c, err)
	}
}

func (c *peerConn) String() string {
	return fmt.Sprintf("peerConn<%s@%s>", c.peer, c.pc.RemoteAddr())
}
