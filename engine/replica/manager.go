// Package replica decides, per connected peer, which Objects and Components to construct,
// serialize and destroy, and in which order.
//
// Each peer has a view of every entity replicated to it. Views go from Unconstructed to
// PendingConstruction when the construct message is sent, to Constructed when the peer
// acknowledges it, and are dropped once the destroy message is sent. Property transactions
// are only sent to Constructed views; a view that missed transactions while pending gets
// a full snapshot when the acknowledgement arrives.
//
// A server relays entities constructed by its clients to every other peer. A client only
// replicates the entities it owns.
package replica

import (
	"fmt"
	"sort"
	"time"

	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/consts"
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/goreplica/goreplica/engine/object"
	"github.com/goreplica/goreplica/engine/opmon"
	"github.com/goreplica/goreplica/engine/propsync"
	"github.com/goreplica/goreplica/engine/proto"
	"github.com/goreplica/goreplica/engine/transport"
)

// PeerListener is notified about connected peers and receives plugin messages
type PeerListener interface {
	OnPeerConnected(conn *Connection)
	OnPeerDisconnected(conn *Connection)
	OnPluginMessage(conn *Connection, msgtype proto.MsgType, msg interface{})
}

// Config configures a Manager
type Config struct {
	Objects    *object.Manager
	Transport  transport.Transport
	Authorizer Authorizer // checks messages of clients; nil accepts everything

	PendingSerializeTimeout time.Duration
	MaxPendingSerialize     int // per entity
}

// Stats are counters of a Manager
type Stats struct {
	Peers             int
	Views             int
	PendingSerializes int

	ConstructsSent   uint64
	SerializesSent   uint64
	DestroysSent     uint64
	MessagesReceived uint64
	DecodeFailures   uint64
	Denied           uint64
	PendingExpired   uint64
}

// Manager replicates the Objects of an object manager to the peers of a transport
//
// The Manager is the Handler of the transport; it must only be used on the tick goroutine.
type Manager struct {
	objects    *object.Manager
	transport  transport.Transport
	authorizer Authorizer

	pendingTimeout time.Duration
	maxPending     int

	conns          map[common.PeerID]*Connection
	constructQueue []entityKey
	pending        map[entityKey][]*pendingSerialize
	listeners      []PeerListener
	eventHandle    object.ListenerHandle
	ticks          uint64
	stats          Stats
}

// NewManager creates a Manager and installs it as the handler of the transport
func NewManager(config Config) *Manager {
	if config.Objects == nil || config.Transport == nil {
		gwlog.Panicf("replica manager needs an object manager and a transport")
	}
	if config.Authorizer == nil {
		config.Authorizer = allowAll{}
	}
	if config.PendingSerializeTimeout <= 0 {
		config.PendingSerializeTimeout = consts.DEFAULT_PENDING_SERIALIZE_TIMEOUT
	}
	if config.MaxPendingSerialize <= 0 {
		config.MaxPendingSerialize = consts.DEFAULT_MAX_PENDING_SERIALIZE
	}

	m := &Manager{
		objects:        config.Objects,
		transport:      config.Transport,
		authorizer:     config.Authorizer,
		pendingTimeout: config.PendingSerializeTimeout,
		maxPending:     config.MaxPendingSerialize,
		conns:          map[common.PeerID]*Connection{},
		pending:        map[entityKey][]*pendingSerialize{},
	}
	m.eventHandle = m.objects.Subscribe(m.onObjectEvent)
	m.transport.SetHandler(m)
	return m
}

func (m *Manager) String() string {
	return fmt.Sprintf("ReplicaManager<%s>", m.objects.Self())
}

// Objects returns the replicated object manager
func (m *Manager) Objects() *object.Manager {
	return m.objects
}

// SetAuthorizer replaces the authorizer of client messages
func (m *Manager) SetAuthorizer(a Authorizer) {
	if a == nil {
		a = allowAll{}
	}
	m.authorizer = a
}

// AddPeerListener adds a listener of peer connections and plugin messages
func (m *Manager) AddPeerListener(l PeerListener) {
	m.listeners = append(m.listeners, l)
}

// Connection returns the connection of the peer, or nil
func (m *Manager) Connection(peer common.PeerID) *Connection {
	return m.conns[peer]
}

// Connections returns the connections in peer order
func (m *Manager) Connections() []*Connection {
	conns := make([]*Connection, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	sort.Slice(conns, func(i, j int) bool {
		return conns[i].Peer() < conns[j].Peer()
	})
	return conns
}

// Ticks returns the number of OnTick calls
func (m *Manager) Ticks() uint64 {
	return m.ticks
}

// Stats returns the current counters
func (m *Manager) Stats() Stats {
	stats := m.stats
	stats.Peers = len(m.conns)
	for _, conn := range m.conns {
		stats.Views += len(conn.views)
	}
	for _, list := range m.pending {
		stats.PendingSerializes += len(list)
	}
	return stats
}

// Close detaches the Manager from the object manager and the transport
func (m *Manager) Close() {
	m.objects.Unsubscribe(m.eventHandle)
	m.transport.SetHandler(nil)
	for key := range m.pending {
		m.dropPending(key)
	}
	m.conns = map[common.PeerID]*Connection{}
	m.constructQueue = nil
}

// OnPeerConnected sends the handshake and constructs every entity replicated to the peer,
// parents before children and Objects before their Components
func (m *Manager) OnPeerConnected(peer common.PeerID) {
	if m.conns[peer] != nil {
		gwlog.Warnf("%s: peer %s connected twice", m, peer)
		return
	}
	conn := newConnection(m.transport, peer)
	m.conns[peer] = conn
	gwlog.Infof("%s: peer %s connected", m, peer)

	if err := conn.SendHandshake(m.objects.Self(), m.objects.Mode(), m.objects.Types().Fingerprints()); err != nil {
		gwlog.Errorf("%s: send handshake to %s failed: %v", m, peer, err)
	}
	for _, o := range m.objects.Objects() {
		if o.Parent() == nil {
			m.constructTree(conn, o)
		}
	}
	for _, l := range m.listeners {
		l.OnPeerConnected(conn)
	}
}

// OnPeerDisconnected drops the state of the peer and destroys the replicas received from it
//
// Entities owned by this peer are kept.
func (m *Manager) OnPeerDisconnected(peer common.PeerID) {
	conn := m.conns[peer]
	if conn == nil {
		return
	}
	delete(m.conns, peer)
	m.dropPendingFrom(peer)
	gwlog.Infof("%s: peer %s disconnected, %d views dropped", m, peer, len(conn.views))

	for _, o := range m.objects.Objects() {
		if o.IsDestroyed() {
			continue
		}
		if o.Origin() == peer {
			m.objects.DestroyRemoteObject(o.ID(), peer)
			continue
		}
		for _, c := range o.Components() {
			if c.Origin() == peer {
				m.objects.DestroyRemoteComponent(o, c.Name(), peer)
			}
		}
	}
	for _, l := range m.listeners {
		l.OnPeerDisconnected(conn)
	}
}

// OnTick sends the constructs of entities created since the last tick, then flushes the
// property changes of every owned entity to the peers
func (m *Manager) OnTick() {
	m.ticks++
	m.sendQueuedConstructs()
	m.flush()
}

func (m *Manager) onObjectEvent(ev object.Event) {
	switch ev.Kind {
	case object.ObjectCreated:
		m.constructQueue = append(m.constructQueue, objectKey(ev.Object))
	case object.ComponentCreated:
		m.constructQueue = append(m.constructQueue, componentKey(ev.Component))
	case object.ComponentDestroyed:
		m.componentDestroyed(ev.Component, ev.Origin)
	case object.ObjectDestroyed:
		m.objectDestroyed(ev.Object, ev.Origin)
	case object.NetworkingChanged:
		m.networkingChanged(ev.Component)
	}
}

// replicatesTo returns if an entity of owner is sent to peer
func (m *Manager) replicatesTo(owner common.PeerID, replicated bool, peer common.PeerID) bool {
	if !replicated || owner == peer {
		return false
	}
	return owner == m.objects.Self() || m.objects.Mode() == common.ModeServer
}

func (m *Manager) sendQueuedConstructs() {
	if len(m.constructQueue) == 0 {
		return
	}
	queue := m.constructQueue
	m.constructQueue = nil
	conns := m.Connections()
	for _, key := range queue {
		o, err := m.objects.FindObject(key.id)
		if err != nil {
			continue
		}
		if key.isObject() {
			for _, conn := range conns {
				m.constructObject(conn, o)
			}
			continue
		}
		c := o.Component(key.component)
		if c == nil {
			continue
		}
		for _, conn := range conns {
			m.constructComponent(conn, c)
		}
	}
}

func (m *Manager) constructTree(conn *Connection, o *object.Object) {
	m.constructObject(conn, o)
	for _, c := range o.Components() {
		m.constructComponent(conn, c)
	}
	for _, child := range o.Children() {
		m.constructTree(conn, child)
	}
}

func (m *Manager) constructObject(conn *Connection, o *object.Object) {
	key := objectKey(o)
	if conn.views[key] != nil || !m.replicatesTo(o.Owner(), o.IsReplicated(), conn.Peer()) {
		return
	}
	var parent common.ObjectID
	if pid := o.ParentID(); !pid.IsNil() && conn.views[entityKey{id: pid}] != nil {
		parent = pid
	}
	conn.views[key] = &view{state: PendingConstruction, sentTick: m.ticks}
	if consts.DEBUG_REPLICA {
		gwlog.Debugf("%s: construct %s on %s", m, o, conn.Peer())
	}
	err := conn.SendMessage(&proto.ConstructObject{
		ObjectID:   o.ID(),
		Name:       o.Name(),
		Mode:       o.Mode(),
		Owner:      o.Owner(),
		Template:   o.Template(),
		Parent:     parent,
		Properties: o.Synchronizer().Snapshot(),
	})
	if err != nil {
		gwlog.Warnf("%s: construct %s on %s failed: %v", m, o, conn.Peer(), err)
	}
	m.stats.ConstructsSent++
}

func (m *Manager) constructComponent(conn *Connection, c *object.Component) {
	key := componentKey(c)
	if conn.views[key] != nil || !m.replicatesTo(c.Owner(), c.IsReplicated(), conn.Peer()) {
		return
	}
	if conn.views[objectKey(c.Object())] == nil {
		// the Object itself is not replicated to the peer
		return
	}
	conn.views[key] = &view{state: PendingConstruction, sentTick: m.ticks}
	if consts.DEBUG_REPLICA {
		gwlog.Debugf("%s: construct %s on %s", m, c, conn.Peer())
	}
	err := conn.SendMessage(&proto.ConstructComponent{
		ObjectID:   c.Object().ID(),
		TypeCode:   c.TypeCode(),
		Name:       c.Name(),
		Mode:       c.Mode(),
		Owner:      c.Owner(),
		Template:   c.Template(),
		Properties: c.Synchronizer().Snapshot(),
	})
	if err != nil {
		gwlog.Warnf("%s: construct %s on %s failed: %v", m, c, conn.Peer(), err)
	}
	m.stats.ConstructsSent++
}

func (m *Manager) flush() {
	monop := opmon.StartOperation("replica.flush")
	defer monop.Finish(time.Millisecond * 50)

	conns := m.Connections()
	for _, o := range m.objects.Objects() {
		m.flushEntity(conns, objectKey(o), o.Synchronizer(), o.IsAuthority(), o.IsReplicated())
		for _, c := range o.Components() {
			m.flushEntity(conns, componentKey(c), c.Synchronizer(), c.IsAuthority(), c.IsReplicated())
		}
	}
}

func (m *Manager) flushEntity(conns []*Connection, key entityKey, s *propsync.Synchronizer, authority bool, replicated bool) {
	if !s.IsDirty() {
		return
	}
	if !authority || !replicated {
		// only the owner sends changes; local changes of replicas stay local
		if !authority && consts.DEBUG_REPLICA {
			gwlog.Debugf("%s: discard local changes of replica %s", m, key)
		}
		s.Discard()
		return
	}
	txn := s.Flush()
	if txn.IsEmpty() {
		return
	}
	for _, conn := range conns {
		m.sendSerialize(conn, key, txn, true)
	}
}

// sendSerialize sends the transaction if the peer has constructed the entity
//
// Pending views are marked to get a snapshot on acknowledgement, unless the construct
// message was sent in this tick and the caller flushes after constructing.
func (m *Manager) sendSerialize(conn *Connection, key entityKey, txn propsync.Transaction, flushing bool) {
	v := conn.views[key]
	if v == nil {
		return
	}
	switch v.state {
	case Constructed:
		if err := conn.SendSerialize(key.id, key.component, txn); err != nil {
			gwlog.Warnf("%s: serialize %s to %s failed: %v", m, key, conn.Peer(), err)
		}
		m.stats.SerializesSent++
	case PendingConstruction:
		if !flushing || v.sentTick != m.ticks {
			v.skipped = true
		}
	}
}

func (m *Manager) sendDestroy(conn *Connection, key entityKey, origin common.PeerID) {
	v := conn.views[key]
	if v == nil {
		return
	}
	v.state = PendingDestruction
	if conn.Peer() != origin {
		var err error
		if key.isObject() {
			err = conn.SendDestroyObject(key.id)
		} else {
			err = conn.SendDestroyComponent(key.id, key.component)
		}
		if err != nil {
			gwlog.Warnf("%s: destroy %s on %s failed: %v", m, key, conn.Peer(), err)
		}
		m.stats.DestroysSent++
	}
	delete(conn.views, key)
}

func (m *Manager) componentDestroyed(c *object.Component, origin common.PeerID) {
	key := componentKey(c)
	m.cancelConstructs(func(k entityKey) bool { return k == key })
	m.dropPending(key)
	for _, conn := range m.Connections() {
		m.sendDestroy(conn, key, origin)
	}
	if origin.IsNil() && !c.IsAuthority() && !c.Origin().IsNil() {
		if m.objects.Mode() == common.ModeServer || c.TypeDesc().HasFlag(object.CanDestroy) {
			m.forwardDestroy(c.Origin(), key)
		}
	}
}

func (m *Manager) objectDestroyed(o *object.Object, origin common.PeerID) {
	id := o.ID()
	m.cancelConstructs(func(k entityKey) bool { return k.id == id })
	for key := range m.pending {
		if key.id == id {
			m.dropPending(key)
		}
	}
	for _, conn := range m.Connections() {
		for key := range conn.views {
			if key.id == id && !key.isObject() {
				m.sendDestroy(conn, key, origin)
			}
		}
		m.sendDestroy(conn, objectKey(o), origin)
	}
	if origin.IsNil() && !o.IsAuthority() && !o.Origin().IsNil() && m.objects.Mode() == common.ModeServer {
		m.forwardDestroy(o.Origin(), objectKey(o))
	}
}

// forwardDestroy tells the peer a replica came from that it was destroyed locally
func (m *Manager) forwardDestroy(peer common.PeerID, key entityKey) {
	conn := m.conns[peer]
	if conn == nil {
		return
	}
	var err error
	if key.isObject() {
		err = conn.SendDestroyObject(key.id)
	} else {
		err = conn.SendDestroyComponent(key.id, key.component)
	}
	if err != nil {
		gwlog.Warnf("%s: forward destroy of %s to %s failed: %v", m, key, peer, err)
	}
	m.stats.DestroysSent++
}

func (m *Manager) networkingChanged(c *object.Component) {
	key := componentKey(c)
	if c.IsReplicated() {
		m.constructQueue = append(m.constructQueue, key)
		return
	}
	m.cancelConstructs(func(k entityKey) bool { return k == key })
	for _, conn := range m.Connections() {
		m.sendDestroy(conn, key, "")
	}
}

func (m *Manager) cancelConstructs(match func(k entityKey) bool) {
	queue := m.constructQueue[:0]
	for _, key := range m.constructQueue {
		if !match(key) {
			queue = append(queue, key)
		}
	}
	m.constructQueue = queue
}

// resolve returns the Object and Component (nil for Object keys) of a key
func (m *Manager) resolve(key entityKey) (*object.Object, *object.Component, bool) {
	o, err := m.objects.FindObject(key.id)
	if err != nil {
		return nil, nil, false
	}
	if key.isObject() {
		return o, nil, true
	}
	c := o.Component(key.component)
	if c == nil {
		return o, nil, false
	}
	return o, c, true
}
