package proto

import (
	"fmt"

	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/consts"
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/goreplica/goreplica/engine/netutil"
	"github.com/goreplica/goreplica/engine/propsync"
)

// PacketSender sends packets reliably and in order to one peer
type PacketSender interface {
	SendReliableOrdered(peer common.PeerID, packet *netutil.Packet) error
}

// PeerConnection is the replication protocol towards one peer
type PeerConnection struct {
	sender PacketSender
	peer   common.PeerID
}

// NewPeerConnection creates a PeerConnection sending through sender
func NewPeerConnection(sender PacketSender, peer common.PeerID) *PeerConnection {
	return &PeerConnection{sender: sender, peer: peer}
}

// Peer returns the remote peer
func (pc *PeerConnection) Peer() common.PeerID {
	return pc.peer
}

// SendHandshake sends MT_HANDSHAKE message
func (pc *PeerConnection) SendHandshake(self common.PeerID, mode common.Mode, fingerprints map[string]uint64) error {
	return pc.SendMessage(&Handshake{Peer: self, Mode: mode, Fingerprints: fingerprints})
}

// SendConstructAck sends MT_CONSTRUCT_ACK message
func (pc *PeerConnection) SendConstructAck(id common.ObjectID, component string) error {
	return pc.SendMessage(&ConstructAck{ObjectID: id, Component: component})
}

// SendSerialize sends MT_SERIALIZE message
func (pc *PeerConnection) SendSerialize(id common.ObjectID, component string, txn propsync.Transaction) error {
	return pc.SendMessage(&Serialize{ObjectID: id, Component: component, Transaction: txn})
}

// SendDestroyComponent sends MT_DESTROY_COMPONENT message
func (pc *PeerConnection) SendDestroyComponent(id common.ObjectID, component string) error {
	return pc.SendMessage(&DestroyComponent{ObjectID: id, Component: component})
}

// SendDestroyObject sends MT_DESTROY_OBJECT message
func (pc *PeerConnection) SendDestroyObject(id common.ObjectID) error {
	return pc.SendMessage(&DestroyObject{ObjectID: id})
}

// SendMessage encodes and sends any protocol message
func (pc *PeerConnection) SendMessage(msg interface{}) error {
	return pc.SendPacketRelease(EncodeMessage(msg))
}

// SendPacketRelease send a packet to remote and then release the packet
func (pc *PeerConnection) SendPacketRelease(packet *netutil.Packet) error {
	if consts.DEBUG_PACKETS {
		gwlog.Debugf("%s: send %d bytes", pc, packet.GetPayloadLen())
	}
	err := pc.sender.SendReliableOrdered(pc.peer, packet)
	packet.Release()
	return err
}

func (pc *PeerConnection) String() string {
	return fmt.Sprintf("PeerConnection<%s>", pc.peer)
}
