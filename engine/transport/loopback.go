package transport

import (
	"fmt"
	"sort"
	"sync"

	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/netutil"
	"github.com/pkg/errors"
)

// LoopbackNetwork links in-process Loopback endpoints
//
// Used by tests and in-process simulation; packets are copied and delivered on the
// receiver's next Dispatch.
type LoopbackNetwork struct {
	sync.Mutex
	endpoints map[common.PeerID]*Loopback
}

// NewLoopbackNetwork creates an empty loopback network
func NewLoopbackNetwork() *LoopbackNetwork {
	return &LoopbackNetwork{endpoints: map[common.PeerID]*Loopback{}}
}

// Endpoint creates (or returns) the endpoint of a peer
func (n *LoopbackNetwork) Endpoint(self common.PeerID) *Loopback {
	n.Lock()
	defer n.Unlock()
	if ep, ok := n.endpoints[self]; ok {
		return ep
	}
	ep := &Loopback{
		network: n,
		self:    self,
		links:   map[common.PeerID]bool{},
		events:  newEventQueue(),
	}
	n.endpoints[self] = ep
	return ep
}

// Connect links two endpoints; both receive OnPeerConnected
func (n *LoopbackNetwork) Connect(a, b common.PeerID) error {
	n.Lock()
	defer n.Unlock()
	epa, epb := n.endpoints[a], n.endpoints[b]
	if epa == nil || epb == nil {
		return errors.Errorf("loopback connect %s <-> %s: endpoint missing", a, b)
	}
	if epa.links[b] {
		return nil
	}
	epa.links[b] = true
	epb.links[a] = true
	epa.events.push(event{kind: eventConnected, peer: b})
	epb.events.push(event{kind: eventConnected, peer: a})
	return nil
}

// Disconnect unlinks two endpoints; both receive OnPeerDisconnected
func (n *LoopbackNetwork) Disconnect(a, b common.PeerID) {
	n.Lock()
	defer n.Unlock()
	n.disconnectLocked(a, b)
}

func (n *LoopbackNetwork) disconnectLocked(a, b common.PeerID) {
	epa, epb := n.endpoints[a], n.endpoints[b]
	if epa == nil || epb == nil || !epa.links[b] {
		return
	}
	delete(epa.links, b)
	delete(epb.links, a)
	epa.events.push(event{kind: eventDisconnected, peer: b})
	epb.events.push(event{kind: eventDisconnected, peer: a})
}

// DispatchAll dispatches every endpoint until no event is left
func (n *LoopbackNetwork) DispatchAll() {
	for {
		n.Lock()
		eps := make([]*Loopback, 0, len(n.endpoints))
		for _, ep := range n.endpoints {
			eps = append(eps, ep)
		}
		n.Unlock()
		sort.Slice(eps, func(i, j int) bool { return eps[i].self < eps[j].self })

		total := 0
		for _, ep := range eps {
			total += ep.Dispatch()
		}
		if total == 0 {
			return
		}
	}
}

// Loopback is one in-process endpoint of a LoopbackNetwork
type Loopback struct {
	network *LoopbackNetwork
	self    common.PeerID
	links   map[common.PeerID]bool
	events  eventQueue
	handler Handler
	closed  bool
}

// Self returns the GUID of this endpoint
func (lb *Loopback) Self() common.PeerID {
	return lb.self
}

// SetHandler sets the event handler
func (lb *Loopback) SetHandler(h Handler) {
	lb.handler = h
}

// SendReliableOrdered queues a copy of the packet to the peer
func (lb *Loopback) SendReliableOrdered(peer common.PeerID, packet *netutil.Packet) error {
	lb.network.Lock()
	defer lb.network.Unlock()
	return lb.sendLocked(peer, packet)
}

func (lb *Loopback) sendLocked(peer common.PeerID, packet *netutil.Packet) error {
	if lb.closed {
		return ErrClosed
	}
	if !lb.links[peer] {
		return errors.Wrapf(ErrPeerNotConnected, "%s -> %s", lb.self, peer)
	}
	target := lb.network.endpoints[peer]
	target.events.push(event{kind: eventMessage, peer: lb.self, packet: netutil.NewPacketFromPayload(packet.Payload())})
	return nil
}

// Broadcast sends the packet to every linked peer except exclude
func (lb *Loopback) Broadcast(packet *netutil.Packet, exclude common.PeerID) error {
	lb.network.Lock()
	defer lb.network.Unlock()
	for _, peer := range lb.peersLocked() {
		if peer == exclude {
			continue
		}
		if err := lb.sendLocked(peer, packet); err != nil {
			return err
		}
	}
	return nil
}

// Peers returns the linked peers in sorted order
func (lb *Loopback) Peers() []common.PeerID {
	lb.network.Lock()
	defer lb.network.Unlock()
	return lb.peersLocked()
}

func (lb *Loopback) peersLocked() []common.PeerID {
	peers := make([]common.PeerID, 0, len(lb.links))
	for peer := range lb.links {
		peers = append(peers, peer)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	return peers
}

// Dispatch delivers queued events to the handler
func (lb *Loopback) Dispatch() int {
	return lb.events.dispatch(lb.handler)
}

// Close disconnects the endpoint from all its peers
func (lb *Loopback) Close() error {
	lb.network.Lock()
	defer lb.network.Unlock()
	if lb.closed {
		return nil
	}
	for _, peer := range lb.peersLocked() {
		lb.network.disconnectLocked(lb.self, peer)
	}
	lb.closed = true
	return nil
}

func (lb *Loopback) String() string {
	return fmt.Sprintf("Loopback<%s>", lb.self)
}
