// Package transport moves replication packets between peers identified by opaque GUIDs.
//
// Every implementation queues network events and delivers them to its Handler from
// Dispatch, which the tick loop calls on the tick goroutine.
package transport

import (
	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/gwutils"
	"github.com/goreplica/goreplica/engine/netutil"
	"github.com/pkg/errors"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
)

var (
	// ErrPeerNotConnected is returned when sending to a peer that is not connected
	ErrPeerNotConnected = errors.New("peer not connected")
	// ErrClosed is returned when using a closed transport
	ErrClosed = errors.New("transport closed")
)

// Handler receives transport events on the tick goroutine
//
// The packet passed to OnMessageReceived is released after the call returns.
type Handler interface {
	OnPeerConnected(peer common.PeerID)
	OnPeerDisconnected(peer common.PeerID)
	OnMessageReceived(peer common.PeerID, packet *netutil.Packet)
}

// Transport sends packets reliably and in order per peer
//
// Senders keep ownership of the packets they pass in.
type Transport interface {
	Self() common.PeerID
	SendReliableOrdered(peer common.PeerID, packet *netutil.Packet) error
	Broadcast(packet *netutil.Packet, exclude common.PeerID) error
	Peers() []common.PeerID
	SetHandler(h Handler)
	Dispatch() int
	Close() error
}

type eventKind uint8

const (
	eventConnected eventKind = iota
	eventDisconnected
	eventMessage
)

type event struct {
	kind   eventKind
	peer   common.PeerID
	packet *netutil.Packet
}

// eventQueue hands events from network goroutines to the tick goroutine
type eventQueue struct {
	queue *xnsyncutil.SyncQueue
}

func newEventQueue() eventQueue {
	return eventQueue{queue: xnsyncutil.NewSyncQueue()}
}

func (q eventQueue) push(ev event) {
	q.queue.Push(ev)
}

// dispatch delivers all queued events; only the tick goroutine pops, so Pop never blocks here
func (q eventQueue) dispatch(h Handler) int {
	n := 0
	for q.queue.Len() > 0 {
		item := q.queue.Pop()
		if item == nil {
			break
		}
		ev := item.(event)
		n++
		if h == nil {
			if ev.packet != nil {
				ev.packet.Release()
			}
			continue
		}
		gwutils.RunPanicless(func() {
			switch ev.kind {
			case eventConnected:
				h.OnPeerConnected(ev.peer)
			case eventDisconnected:
				h.OnPeerDisconnected(ev.peer)
			case eventMessage:
				h.OnMessageReceived(ev.peer, ev.packet)
			}
		})
		if ev.packet != nil {
			ev.packet.Release()
		}
	}
	return n
}

func (q eventQueue) close() {
	q.queue.Close()
}
