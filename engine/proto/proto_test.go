package proto

import (
	"testing"

	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/netutil"
	"github.com/goreplica/goreplica/engine/propsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	payloads [][]byte
}

func (s *recordingSender) SendReliableOrdered(peer common.PeerID, packet *netutil.Packet) error {
	s.payloads = append(s.payloads, append([]byte(nil), packet.Payload()...))
	return nil
}

func TestConstructComponentDecode(t *testing.T) {
	txn := propsync.Transaction{Entries: []propsync.Entry{
		{Name: "Position", Value: []byte{0x93, 1, 2, 3}},
		{Name: "Mass", Value: []byte{0x01}},
	}}
	packet := EncodeMessage(&ConstructComponent{
		ObjectID: 7, TypeCode: 0x01, Name: "RigidBody",
		Mode: common.ModeServer, Owner: "srv", Properties: txn,
	})
	payload := append([]byte(nil), packet.Payload()...)

	msgtype, msg, err := DecodeMessage(packet)
	require.NoError(t, err)
	packet.Release()

	assert.Equal(t, MsgType(MT_CONSTRUCT_COMPONENT), msgtype)
	m := msg.(*ConstructComponent)
	assert.Equal(t, common.ObjectID(7), m.ObjectID)
	assert.Equal(t, common.ComponentType(0x01), m.TypeCode)
	assert.Equal(t, "RigidBody", m.Name)
	assert.Equal(t, common.ModeServer, m.Mode)
	assert.Equal(t, common.PeerID("srv"), m.Owner)
	assert.Equal(t, txn, m.Properties)

	// decoded values must survive reuse of the packet buffer
	reused := netutil.NewPacketFromPayload(payload)
	_, msg2, err := DecodeMessage(reused)
	require.NoError(t, err)
	for i := range reused.Payload() {
		reused.Payload()[i] = 0
	}
	assert.Equal(t, txn, msg2.(*ConstructComponent).Properties)
	reused.Release()
}

func TestDecodeTruncatedMessage(t *testing.T) {
	packet := EncodeMessage(&Serialize{ObjectID: 7, Component: "RigidBody", Transaction: propsync.Transaction{
		Entries: []propsync.Entry{{Name: "Position", Value: []byte{1, 2, 3}}},
	}})
	full := packet.Payload()
	truncated := netutil.NewPacketFromPayload(full[:len(full)-2])
	packet.Release()

	msgtype, msg, err := DecodeMessage(truncated)
	assert.Equal(t, MsgType(MT_SERIALIZE), msgtype)
	assert.Nil(t, msg)
	assert.True(t, common.IsError(err, common.ErrDecodeFailure))
	truncated.Release()
}

func TestDecodeInvalidMessages(t *testing.T) {
	unknown := netutil.NewPacket()
	unknown.AppendUint16(999)
	_, _, err := DecodeMessage(unknown)
	assert.True(t, common.IsError(err, common.ErrDecodeFailure))
	unknown.Release()

	badMode := netutil.NewPacket()
	badMode.AppendUint16(MT_CONSTRUCT_OBJECT)
	badMode.AppendObjectID(1)
	badMode.AppendVarStr("obj")
	badMode.AppendByte(9)
	_, _, err = DecodeMessage(badMode)
	assert.True(t, common.IsError(err, common.ErrDecodeFailure))
	badMode.Release()

	empty := netutil.NewPacket()
	_, _, err = DecodeMessage(empty)
	assert.True(t, common.IsError(err, common.ErrDecodeFailure))
	empty.Release()
}

func TestPeerConnectionSend(t *testing.T) {
	sender := &recordingSender{}
	pc := NewPeerConnection(sender, "peer-1")
	require.NoError(t, pc.SendHandshake("self", common.ModeClient, map[string]uint64{"RigidBody": 42}))
	require.NoError(t, pc.SendDestroyObject(7))
	require.Len(t, sender.payloads, 2)

	_, msg, err := DecodeMessage(netutil.NewPacketFromPayload(sender.payloads[0]))
	require.NoError(t, err)
	hs := msg.(*Handshake)
	assert.Equal(t, common.PeerID("self"), hs.Peer)
	assert.Equal(t, common.ModeClient, hs.Mode)
	assert.Equal(t, uint64(42), hs.Fingerprints["RigidBody"])

	msgtype, msg, err := DecodeMessage(netutil.NewPacketFromPayload(sender.payloads[1]))
	require.NoError(t, err)
	assert.Equal(t, MsgType(MT_DESTROY_OBJECT), msgtype)
	assert.Equal(t, common.ObjectID(7), msg.(*DestroyObject).ObjectID)
	assert.True(t, IsPluginMsgType(MT_PLUGIN_SERIALIZE))
	assert.False(t, IsPluginMsgType(MT_SERIALIZE))
}
