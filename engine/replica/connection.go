package replica

import (
	"fmt"

	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/proto"
)

// Connection is the replication state towards one connected peer
//
// It embeds the PeerConnection used to send messages to the peer. Connections are created
// and dropped by the Manager and only used on the tick goroutine.
type Connection struct {
	*proto.PeerConnection

	mode       common.Mode
	handshaked bool
	views      map[entityKey]*view
}

func newConnection(sender proto.PacketSender, peer common.PeerID) *Connection {
	return &Connection{
		PeerConnection: proto.NewPeerConnection(sender, peer),
		mode:           common.ModeClient,
		views:          map[entityKey]*view{},
	}
}

func (conn *Connection) String() string {
	return fmt.Sprintf("Connection<%s>", conn.Peer())
}

// Mode returns the mode the peer announced in its handshake (client until then)
func (conn *Connection) Mode() common.Mode {
	return conn.mode
}

// IsServer returns if the peer is a server
func (conn *Connection) IsServer() bool {
	return conn.handshaked && conn.mode == common.ModeServer
}

// IsHandshaked returns if the handshake of the peer was received
func (conn *Connection) IsHandshaked() bool {
	return conn.handshaked
}

// ObjectState returns the state of the Object in the view of the peer
func (conn *Connection) ObjectState(id common.ObjectID) ViewState {
	return conn.state(entityKey{id: id})
}

// ComponentState returns the state of the Component in the view of the peer
func (conn *Connection) ComponentState(id common.ObjectID, component string) ViewState {
	return conn.state(entityKey{id: id, component: component})
}

// NumViews returns the number of entities sent to the peer
func (conn *Connection) NumViews() int {
	return len(conn.views)
}

func (conn *Connection) state(key entityKey) ViewState {
	if v := conn.views[key]; v != nil {
		return v.state
	}
	return Unconstructed
}
