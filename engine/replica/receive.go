package replica

import (
	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/consts"
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/goreplica/goreplica/engine/netutil"
	"github.com/goreplica/goreplica/engine/object"
	"github.com/goreplica/goreplica/engine/proto"
	"github.com/pkg/errors"
)

// OnMessageReceived decodes and handles one message of the peer
//
// A message that can not be decoded is dropped; the connection is kept.
func (m *Manager) OnMessageReceived(peer common.PeerID, packet *netutil.Packet) {
	conn := m.conns[peer]
	if conn == nil {
		gwlog.Warnf("%s: message from unknown peer %s dropped", m, peer)
		return
	}
	m.stats.MessagesReceived++

	msgtype, msg, err := proto.DecodeMessage(packet)
	if err != nil {
		m.stats.DecodeFailures++
		gwlog.Warnf("%s: drop message from %s: %v", m, peer, err)
		return
	}
	if consts.DEBUG_PACKETS {
		gwlog.Debugf("%s: recv %s from %s", m, msgtype, peer)
	}

	switch msgtype {
	case proto.MT_HANDSHAKE:
		m.handleHandshake(conn, msg.(*proto.Handshake))
	case proto.MT_CONSTRUCT_OBJECT:
		m.handleConstructObject(conn, msg.(*proto.ConstructObject))
	case proto.MT_CONSTRUCT_COMPONENT:
		m.handleConstructComponent(conn, msg.(*proto.ConstructComponent))
	case proto.MT_CONSTRUCT_ACK:
		m.handleConstructAck(conn, msg.(*proto.ConstructAck))
	case proto.MT_SERIALIZE:
		m.handleSerialize(conn, msg.(*proto.Serialize))
	case proto.MT_DESTROY_COMPONENT:
		m.handleDestroyComponent(conn, msg.(*proto.DestroyComponent))
	case proto.MT_DESTROY_OBJECT:
		m.handleDestroyObject(conn, msg.(*proto.DestroyObject))
	default:
		if proto.IsPluginMsgType(msgtype) {
			for _, l := range m.listeners {
				l.OnPluginMessage(conn, msgtype, msg)
			}
			return
		}
		gwlog.Warnf("%s: unexpected message %s from %s", m, msgtype, peer)
	}
}

func (m *Manager) handleHandshake(conn *Connection, msg *proto.Handshake) {
	if msg.Peer != conn.Peer() {
		gwlog.Warnf("%s: peer %s introduced itself as %s", m, conn.Peer(), msg.Peer)
	}
	conn.mode = msg.Mode
	conn.handshaked = true

	log := gwlog.With("peer", conn.Peer())
	local := m.objects.Types().Fingerprints()
	for name, fp := range msg.Fingerprints {
		if lfp, ok := local[name]; ok && lfp != fp {
			log.Warnf("%s: type %s has a different schema, unknown properties will be skipped", m, name)
		}
	}
	log.Infof("%s: handshake done (%s)", m, msg.Mode)
}

// authorize checks a request of a client peer; servers are trusted
func (m *Manager) authorize(conn *Connection, req Request) bool {
	if conn.IsServer() {
		return true
	}
	if err := m.authorizer.Authorize(req); err != nil {
		m.deny(conn, req, err)
		return false
	}
	return true
}

func (m *Manager) deny(conn *Connection, req Request, err error) {
	m.stats.Denied++
	gwlog.Warnf("%s: %s denied: %v", m, req, err)
}

func (m *Manager) handleConstructObject(conn *Connection, msg *proto.ConstructObject) {
	owner := msg.Owner
	if owner.IsNil() {
		owner = conn.Peer()
	}
	if !conn.IsServer() {
		req := Request{Kind: RequestConstruct, Peer: conn.Peer(), ObjectID: msg.ObjectID}
		if owner != conn.Peer() {
			m.deny(conn, req, errors.Wrapf(common.ErrPermissionDenied, "owner %s", owner))
			return
		}
		if msg.ObjectID>>32 != common.ClientObjectIDBase(conn.Peer())>>32 {
			m.deny(conn, req, errors.Wrap(common.ErrPermissionDenied, "object ID out of the client range"))
			return
		}
		if !m.authorize(conn, req) {
			return
		}
	}

	if o, err := m.objects.FindObject(msg.ObjectID); err == nil {
		if o.Owner() != owner {
			gwlog.Warnf("%s: %s constructs %s owned by %s as owner %s", m, conn.Peer(), o, o.Owner(), owner)
		} else if consts.DEBUG_REPLICA {
			gwlog.Debugf("%s: duplicate construct of %s from %s", m, o, conn.Peer())
		}
		m.ack(conn, msg.ObjectID, "")
		return
	}

	o, err := m.objects.ConstructRemoteObject(msg.ObjectID, msg.Name, msg.Mode, owner, conn.Peer(), msg.Template, msg.Parent, msg.Properties)
	if err != nil {
		gwlog.Errorf("%s: construct object %s from %s failed: %v", m, msg.ObjectID, conn.Peer(), err)
		return
	}
	m.ack(conn, msg.ObjectID, "")
	m.replayPending(objectKey(o))
}

func (m *Manager) handleConstructComponent(conn *Connection, msg *proto.ConstructComponent) {
	o, err := m.objects.FindObject(msg.ObjectID)
	if err != nil {
		gwlog.Warnf("%s: construct component %s of unknown object %s from %s dropped", m, msg.Name, msg.ObjectID, conn.Peer())
		return
	}
	owner := msg.Owner
	if owner.IsNil() {
		owner = conn.Peer()
	}
	if !conn.IsServer() {
		req := Request{Kind: RequestConstruct, Peer: conn.Peer(), ObjectID: msg.ObjectID, Component: msg.Name, TypeCode: msg.TypeCode}
		if owner != conn.Peer() || o.Owner() != conn.Peer() {
			m.deny(conn, req, errors.Wrapf(common.ErrPermissionDenied, "%s is owned by %s", o, o.Owner()))
			return
		}
		if !m.authorize(conn, req) {
			return
		}
	}

	if c := o.Component(msg.Name); c != nil {
		if consts.DEBUG_REPLICA {
			gwlog.Debugf("%s: duplicate construct of %s from %s", m, c, conn.Peer())
		}
		m.ack(conn, msg.ObjectID, msg.Name)
		return
	}

	c, err := m.objects.ConstructRemoteComponent(o, msg.TypeCode, msg.Name, msg.Mode, owner, conn.Peer(), msg.Template, msg.Properties)
	if err != nil {
		gwlog.Errorf("%s: construct component %s.%s from %s failed: %v", m, msg.ObjectID, msg.Name, conn.Peer(), err)
		return
	}
	m.ack(conn, msg.ObjectID, msg.Name)
	m.replayPending(componentKey(c))
}

func (m *Manager) ack(conn *Connection, id common.ObjectID, component string) {
	if err := conn.SendConstructAck(id, component); err != nil {
		gwlog.Warnf("%s: ack %s.%s to %s failed: %v", m, id, component, conn.Peer(), err)
	}
}

func (m *Manager) handleConstructAck(conn *Connection, msg *proto.ConstructAck) {
	key := entityKey{id: msg.ObjectID, component: msg.Component}
	v := conn.views[key]
	if v == nil || v.state != PendingConstruction {
		return
	}
	v.state = Constructed
	if !v.skipped {
		return
	}
	v.skipped = false

	o, c, ok := m.resolve(key)
	if !ok {
		return
	}
	s := o.Synchronizer()
	if c != nil {
		s = c.Synchronizer()
	}
	txn := s.Snapshot()
	if txn.IsEmpty() {
		return
	}
	if consts.DEBUG_REPLICA {
		gwlog.Debugf("%s: catch up %s on %s", m, key, conn.Peer())
	}
	if err := conn.SendSerialize(key.id, key.component, txn); err != nil {
		gwlog.Warnf("%s: serialize %s to %s failed: %v", m, key, conn.Peer(), err)
	}
	m.stats.SerializesSent++
}

func (m *Manager) handleSerialize(conn *Connection, msg *proto.Serialize) {
	key := entityKey{id: msg.ObjectID, component: msg.Component}
	o, c, ok := m.resolve(key)
	if !ok {
		m.bufferSerialize(conn, msg)
		return
	}
	owner := o.Owner()
	if c != nil {
		owner = c.Owner()
	}
	if !conn.IsServer() {
		req := Request{Kind: RequestSerialize, Peer: conn.Peer(), ObjectID: msg.ObjectID, Component: msg.Component, Changes: msg.Transaction.Len()}
		if c != nil {
			req.TypeCode = c.TypeCode()
		}
		if owner != conn.Peer() {
			m.deny(conn, req, errors.Wrapf(common.ErrPermissionDenied, "%s is owned by %s", key, owner))
			return
		}
		if !m.authorize(conn, req) {
			return
		}
	}

	if err := m.objects.ApplyTransaction(o, c, msg.Transaction, conn.Peer()); err != nil {
		gwlog.Warnf("%s: apply %s from %s failed: %v", m, key, conn.Peer(), err)
		return
	}

	if m.objects.Mode() == common.ModeServer && owner != m.objects.Self() {
		for _, other := range m.Connections() {
			if other != conn {
				m.sendSerialize(other, key, msg.Transaction, false)
			}
		}
	}
}

func (m *Manager) handleDestroyComponent(conn *Connection, msg *proto.DestroyComponent) {
	key := entityKey{id: msg.ObjectID, component: msg.Component}
	o, c, ok := m.resolve(key)
	if !ok {
		m.dropPending(key)
		return
	}
	if !conn.IsServer() {
		req := Request{Kind: RequestDestroy, Peer: conn.Peer(), ObjectID: msg.ObjectID, Component: msg.Component, TypeCode: c.TypeCode()}
		if c.Owner() != conn.Peer() && !c.TypeDesc().HasFlag(object.CanDestroy) {
			m.deny(conn, req, errors.Wrapf(common.ErrPermissionDenied, "%s is owned by %s", c, c.Owner()))
			return
		}
		if !m.authorize(conn, req) {
			return
		}
	}
	m.objects.DestroyRemoteComponent(o, msg.Component, conn.Peer())
}

func (m *Manager) handleDestroyObject(conn *Connection, msg *proto.DestroyObject) {
	o, err := m.objects.FindObject(msg.ObjectID)
	if err != nil {
		for key := range m.pending {
			if key.id == msg.ObjectID {
				m.dropPending(key)
			}
		}
		return
	}
	if !conn.IsServer() {
		req := Request{Kind: RequestDestroy, Peer: conn.Peer(), ObjectID: msg.ObjectID}
		if o.Owner() != conn.Peer() {
			m.deny(conn, req, errors.Wrapf(common.ErrPermissionDenied, "%s is owned by %s", o, o.Owner()))
			return
		}
		if !m.authorize(conn, req) {
			return
		}
	}
	m.objects.DestroyRemoteObject(msg.ObjectID, conn.Peer())
}
