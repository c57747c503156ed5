package netutil

import (
	"context"
	"fmt"
	"net"

	"github.com/goreplica/goreplica/engine/consts"
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/xiaonanln/pktconn"
)

// PacketConnection is a connection that send and receive data packets upon a network stream connection
type PacketConnection struct {
	conn *pktconn.PacketConn
}

// NewPacketConnection creates a packet connection based on network connection
func NewPacketConnection(conn Connection, tag interface{}) *PacketConnection {
	config := pktconn.DefaultConfig()
	config.Tag = tag
	return &PacketConnection{
		conn: pktconn.NewPacketConnWithConfig(context.TODO(), conn, config),
	}
}

// SendPacket sends a packet to remote; the caller still owns the packet
func (pc *PacketConnection) SendPacket(packet *Packet) {
	if consts.DEBUG_PACKETS {
		gwlog.Debugf("%s SEND %d bytes", pc, packet.GetPayloadLen())
	}
	pkt := pktconn.NewPacket()
	pkt.WriteBytes(packet.Payload())
	pc.conn.Send(pkt)
	pkt.Release()
}

// RecvChan receives packets into recvChan until the connection fails
func (pc *PacketConnection) RecvChan(recvChan chan *Packet) error {
	raw := make(chan *pktconn.Packet, consts.RECV_PACKET_QUEUE_SIZE)
	errChan := make(chan error, 1)
	go func() {
		errChan <- pc.conn.RecvChan(raw)
		close(raw)
	}()

	for pkt := range raw {
		packet := NewPacketFromPayload(pkt.Payload())
		pkt.Release()
		if consts.DEBUG_PACKETS {
			gwlog.Debugf("%s RECV %d bytes", pc, packet.GetPayloadLen())
		}
		recvChan <- packet
	}
	return <-errChan
}

// Close the connection
func (pc *PacketConnection) Close() error {
	return pc.conn.Close()
}

// RemoteAddr return the remote address
func (pc *PacketConnection) RemoteAddr() net.Addr {
	return pc.conn.RemoteAddr()
}

// LocalAddr returns the local address
func (pc *PacketConnection) LocalAddr() net.Addr {
	return pc.conn.LocalAddr()
}

func (pc *PacketConnection) String() string {
	return fmt.Sprintf("[%s >>> %s]", pc.LocalAddr(), pc.RemoteAddr())
}
