package transport

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/netutil"
)

type recordingHandler struct {
	events []string
}

func (h *recordingHandler) OnPeerConnected(peer common.PeerID) {
	h.events = append(h.events, "connected:"+string(peer))
}

func (h *recordingHandler) OnPeerDisconnected(peer common.PeerID) {
	h.events = append(h.events, "disconnected:"+string(peer))
}

func (h *recordingHandler) OnMessageReceived(peer common.PeerID, packet *netutil.Packet) {
	h.events = append(h.events, "msg:"+string(peer)+":"+packet.ReadVarStr())
}

func newTestPacket(s string) *netutil.Packet {
	p := netutil.NewPacket()
	p.AppendVarStr(s)
	return p
}

func TestLoopbackDelivery(t *testing.T) {
	network := NewLoopbackNetwork()
	server := network.Endpoint("server")
	c1 := network.Endpoint("c1")
	c2 := network.Endpoint("c2")
	hs, h1, h2 := &recordingHandler{}, &recordingHandler{}, &recordingHandler{}
	server.SetHandler(hs)
	c1.SetHandler(h1)
	c2.SetHandler(h2)

	assert.Equal(t, nil, network.Connect("server", "c1"))
	assert.Equal(t, nil, network.Connect("server", "c2"))
	assert.Equal(t, []common.PeerID{"c1", "c2"}, server.Peers())

	p := newTestPacket("hello")
	assert.Equal(t, nil, server.SendReliableOrdered("c1", p))
	assert.Equal(t, nil, server.Broadcast(p, "c1"))
	p.Release()

	q := newTestPacket("up")
	assert.NotEqual(t, nil, c1.SendReliableOrdered("c2", q))
	assert.Equal(t, nil, c1.SendReliableOrdered("server", q))
	q.Release()

	network.DispatchAll()
	assert.Equal(t, []string{"connected:c1", "connected:c2", "msg:c1:up"}, hs.events)
	assert.Equal(t, []string{"connected:server", "msg:server:hello"}, h1.events)
	assert.Equal(t, []string{"connected:server", "msg:server:hello"}, h2.events)
}

func TestLoopbackClose(t *testing.T) {
	network := NewLoopbackNetwork()
	server := network.Endpoint("server")
	c1 := network.Endpoint("c1")
	hs := &recordingHandler{}
	server.SetHandler(hs)
	assert.Equal(t, nil, network.Connect("server", "c1"))

	assert.Equal(t, nil, c1.Close())
	network.DispatchAll()
	assert.Equal(t, []string{"connected:c1", "disconnected:c1"}, hs.events)
	assert.Equal(t, 0, len(server.Peers()))

	p := newTestPacket("late")
	assert.Equal(t, ErrClosed, c1.SendReliableOrdered("server", p))
	p.Release()
}
