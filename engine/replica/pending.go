package replica

import (
	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/consts"
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/goreplica/goreplica/engine/proto"
	"github.com/pkg/errors"
	"github.com/xiaonanln/goTimer"
)

// pendingSerialize is a transaction received before its entity was constructed
type pendingSerialize struct {
	origin common.PeerID
	msg    *proto.Serialize
	timer  *timer.Timer
}

// bufferSerialize keeps the transaction until the entity is constructed or the timeout expires
func (m *Manager) bufferSerialize(conn *Connection, msg *proto.Serialize) {
	key := entityKey{id: msg.ObjectID, component: msg.Component}
	list := m.pending[key]
	if len(list) >= m.maxPending {
		oldest := list[0]
		oldest.timer.Cancel()
		list = list[1:]
		gwlog.Warnf("%s: too many pending transactions of %s, dropped one from %s", m, key, oldest.origin)
	}

	ps := &pendingSerialize{origin: conn.Peer(), msg: msg}
	ps.timer = timer.AddCallback(m.pendingTimeout, func() {
		m.expirePending(key, ps)
	})
	m.pending[key] = append(list, ps)
	if consts.DEBUG_REPLICA {
		gwlog.Debugf("%s: buffered transaction of unconstructed %s from %s", m, key, conn.Peer())
	}
}

func (m *Manager) expirePending(key entityKey, ps *pendingSerialize) {
	if !m.removePending(key, ps) {
		return
	}
	m.stats.PendingExpired++
	err := errors.Wrapf(common.ErrTimeout, "%s was not constructed in %s", key, m.pendingTimeout)
	gwlog.Warnf("%s: discard transaction from %s: %v", m, ps.origin, err)
}

func (m *Manager) removePending(key entityKey, ps *pendingSerialize) bool {
	list := m.pending[key]
	for i, p := range list {
		if p == ps {
			list = append(list[:i:i], list[i+1:]...)
			if len(list) == 0 {
				delete(m.pending, key)
			} else {
				m.pending[key] = list
			}
			return true
		}
	}
	return false
}

// replayPending applies the buffered transactions of a constructed entity in arrival order
func (m *Manager) replayPending(key entityKey) {
	list := m.pending[key]
	if len(list) == 0 {
		return
	}
	delete(m.pending, key)
	for _, ps := range list {
		ps.timer.Cancel()
		conn := m.conns[ps.origin]
		if conn == nil {
			continue
		}
		m.handleSerialize(conn, ps.msg)
	}
}

// dropPending discards the buffered transactions of an entity
func (m *Manager) dropPending(key entityKey) {
	for _, ps := range m.pending[key] {
		ps.timer.Cancel()
	}
	delete(m.pending, key)
}

func (m *Manager) dropPendingFrom(peer common.PeerID) {
	for key, list := range m.pending {
		for _, ps := range list {
			if ps.origin == peer {
				ps.timer.Cancel()
				m.removePending(key, ps)
			}
		}
	}
}
