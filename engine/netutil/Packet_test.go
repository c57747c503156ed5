package netutil

import (
	"io"
	"net"
	"strings"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/gwutils"
	"github.com/pkg/errors"
)

func TestPacketAppendRead(t *testing.T) {
	p := NewPacket()
	defer p.Release()

	p.AppendUint16(0x1234)
	p.AppendBool(true)
	p.AppendUint32(0xdeadbeef)
	p.AppendUint64(1 << 40)
	p.AppendFloat32(1.5)
	p.AppendFloat64(-2.25)
	p.AppendVarStr("Player1")
	p.AppendVarBytes([]byte{1, 2, 3})
	p.AppendObjectID(common.ObjectID(7))
	p.AppendStringList([]string{"a", "bc"})
	p.AppendData(map[string]interface{}{"k": "v"})

	assert.Equal(t, uint16(0x1234), p.ReadUint16())
	assert.Equal(t, true, p.ReadBool())
	assert.Equal(t, uint32(0xdeadbeef), p.ReadUint32())
	assert.Equal(t, uint64(1<<40), p.ReadUint64())
	assert.Equal(t, float32(1.5), p.ReadFloat32())
	assert.Equal(t, -2.25, p.ReadFloat64())
	assert.Equal(t, "Player1", p.ReadVarStr())
	assert.Equal(t, []byte{1, 2, 3}, p.ReadVarBytes())
	assert.Equal(t, common.ObjectID(7), p.ReadObjectID())
	assert.Equal(t, []string{"a", "bc"}, p.ReadStringList())
	var m map[string]interface{}
	p.ReadData(&m)
	assert.Equal(t, "v", m["k"])
	assert.Equal(t, false, p.HasUnreadPayload())

	p.Rewind()
	assert.Equal(t, uint16(0x1234), p.ReadUint16())
}

func TestPacketGrow(t *testing.T) {
	p := NewPacket()
	defer p.Release()
	big := []byte(strings.Repeat("x", 10000))
	p.AppendByte('a')
	p.AppendBytes(big)
	assert.Equal(t, uint32(10001), p.GetPayloadLen())
	assert.Equal(t, byte('a'), p.ReadOneByte())
	assert.Equal(t, big, p.ReadBytes(10000))
}

func TestPacketReadUnderflowPanics(t *testing.T) {
	p := NewPacket()
	defer p.Release()
	p.AppendUint16(1)
	err := gwutils.CatchPanic(func() {
		p.ReadUint32()
	})
	assert.NotEqual(t, nil, err)

	p.ClearPayload()
	p.AppendUint32(100)
	err = gwutils.CatchPanic(func() {
		p.ReadVarBytes()
	})
	assert.NotEqual(t, nil, err)
}

func TestPacketRefCount(t *testing.T) {
	p := NewPacketFromPayload([]byte{1, 2})
	p.AddRefCount(1)
	p.Release()
	assert.Equal(t, []byte{1, 2}, p.Payload())
	p.Release()

	err := gwutils.CatchPanic(func() {
		p.Release()
	})
	assert.NotEqual(t, nil, err)
}

func TestIsConnectionError(t *testing.T) {
	assert.T(t, IsConnectionError(io.EOF))
	assert.T(t, IsConnectionError(errors.Wrap(io.EOF, "read")))
	assert.T(t, IsConnectionError(&net.OpError{Op: "read", Err: errors.New("reset")}))
	assert.T(t, !IsConnectionError(errors.New("other")))
	assert.T(t, !IsConnectionError("not an error"))
	assert.T(t, !IsTimeoutError(nil))
}
