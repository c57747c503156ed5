package netutil

import (
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"

	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/consts"
	"github.com/goreplica/goreplica/engine/gwlog"
)

const (
	_MIN_PAYLOAD_CAP = 128
	// MAX_PAYLOAD_LENGTH is the max payload length of one packet
	MAX_PAYLOAD_LENGTH = 32 * 1024 * 1024
)

var (
	packetEndian = binary.LittleEndian

	debugInfo struct {
		NewCount     int64
		AllocCount   int64
		ReleaseCount int64
	}

	packetPool = sync.Pool{
		New: func() interface{} {
			p := &Packet{
				bytes: make([]byte, 0, _MIN_PAYLOAD_CAP),
			}
			if consts.DEBUG_PACKET_ALLOC {
				atomic.AddInt64(&debugInfo.NewCount, 1)
				gwlog.Infof("DEBUG PACKETS: ALLOC=%d, RELEASE=%d, NEW=%d",
					atomic.LoadInt64(&debugInfo.AllocCount),
					atomic.LoadInt64(&debugInfo.ReleaseCount),
					atomic.LoadInt64(&debugInfo.NewCount))
			}
			return p
		},
	}
)

// Packet is a message payload with a read cursor
//
// Read methods panic when the payload is exhausted; decoders recover from it.
type Packet struct {
	readCursor uint32
	refcount   int64
	bytes      []byte
}

// NewPacket allocates a new packet
func NewPacket() *Packet {
	pkt := packetPool.Get().(*Packet)
	pkt.refcount = 1
	if consts.DEBUG_PACKET_ALLOC {
		atomic.AddInt64(&debugInfo.AllocCount, 1)
	}
	if len(pkt.bytes) != 0 {
		gwlog.Panicf("NewPacket: payload should be empty, but is %d", len(pkt.bytes))
	}
	return pkt
}

// NewPacketFromPayload allocates a packet holding a copy of the payload
func NewPacketFromPayload(payload []byte) *Packet {
	pkt := NewPacket()
	pkt.AppendBytes(payload)
	return pkt
}

// AddRefCount adds reference count of packet
func (p *Packet) AddRefCount(add int64) {
	atomic.AddInt64(&p.refcount, add)
}

// Release releases the packet to packet pool
func (p *Packet) Release() {
	refcount := atomic.AddInt64(&p.refcount, -1)
	if refcount == 0 {
		p.readCursor = 0
		if cap(p.bytes) > MAX_PAYLOAD_LENGTH/16 {
			p.bytes = make([]byte, 0, _MIN_PAYLOAD_CAP)
		} else {
			p.bytes = p.bytes[:0]
		}
		packetPool.Put(p)
		if consts.DEBUG_PACKET_ALLOC {
			atomic.AddInt64(&debugInfo.ReleaseCount, 1)
		}
	} else if refcount < 0 {
		gwlog.Panicf("releasing packet with refcount=%d", refcount)
	}
}

// Payload returns the total payload of packet
func (p *Packet) Payload() []byte {
	return p.bytes
}

// GetPayloadLen returns the payload length
func (p *Packet) GetPayloadLen() uint32 {
	return uint32(len(p.bytes))
}

// UnreadPayload returns the unread payload
func (p *Packet) UnreadPayload() []byte {
	return p.bytes[p.readCursor:]
}

// HasUnreadPayload returns if any payload is not read yet
func (p *Packet) HasUnreadPayload() bool {
	return int(p.readCursor) < len(p.bytes)
}

// ClearPayload clears packet payload
func (p *Packet) ClearPayload() {
	p.readCursor = 0
	p.bytes = p.bytes[:0]
}

// Rewind resets the read cursor so the packet can be read again
func (p *Packet) Rewind() {
	p.readCursor = 0
}

func (p *Packet) grow(n int) []byte {
	if len(p.bytes)+n > MAX_PAYLOAD_LENGTH {
		gwlog.Panicf("Packet %p payload too large: %d+%d", p, len(p.bytes), n)
	}
	start := len(p.bytes)
	if start+n > cap(p.bytes) {
		newCap := cap(p.bytes) << 2
		for newCap < start+n {
			newCap <<= 2
		}
		buf := make([]byte, start, newCap)
		copy(buf, p.bytes)
		p.bytes = buf
	}
	p.bytes = p.bytes[:start+n]
	return p.bytes[start : start+n]
}

func (p *Packet) read(n uint32) []byte {
	if uint64(p.readCursor)+uint64(n) > uint64(len(p.bytes)) {
		gwlog.Panicf("Packet %p payload is %d, but reading %d+%d", p, len(p.bytes), p.readCursor, n)
	}
	b := p.bytes[p.readCursor : p.readCursor+n]
	p.readCursor += n
	return b
}

// AppendByte appends one byte to the end of payload
func (p *Packet) AppendByte(b byte) {
	p.grow(1)[0] = b
}

// ReadOneByte reads one byte from the beginning
func (p *Packet) ReadOneByte() byte {
	return p.read(1)[0]
}

// AppendBool appends one byte 1/0 to the end of payload
func (p *Packet) AppendBool(b bool) {
	if b {
		p.AppendByte(1)
	} else {
		p.AppendByte(0)
	}
}

// ReadBool reads one byte 1/0 from the beginning of unread payload
func (p *Packet) ReadBool() bool {
	return p.ReadOneByte() != 0
}

// AppendUint16 appends one uint16 to the end of payload
func (p *Packet) AppendUint16(v uint16) {
	packetEndian.PutUint16(p.grow(2), v)
}

// AppendUint32 appends one uint32 to the end of payload
func (p *Packet) AppendUint32(v uint32) {
	packetEndian.PutUint32(p.grow(4), v)
}

// AppendUint64 appends one uint64 to the end of payload
func (p *Packet) AppendUint64(v uint64) {
	packetEndian.PutUint64(p.grow(8), v)
}

// ReadUint16 reads one uint16 from the beginning of unread payload
func (p *Packet) ReadUint16() uint16 {
	return packetEndian.Uint16(p.read(2))
}

// ReadUint32 reads one uint32 from the beginning of unread payload
func (p *Packet) ReadUint32() uint32 {
	return packetEndian.Uint32(p.read(4))
}

// ReadUint64 reads one uint64 from the beginning of unread payload
func (p *Packet) ReadUint64() uint64 {
	return packetEndian.Uint64(p.read(8))
}

// AppendFloat32 appends one float32 to the end of payload
func (p *Packet) AppendFloat32(f float32) {
	p.AppendUint32(math.Float32bits(f))
}

// ReadFloat32 reads one float32 from the beginning of unread payload
func (p *Packet) ReadFloat32() float32 {
	return math.Float32frombits(p.ReadUint32())
}

// AppendFloat64 appends one float64 to the end of payload
func (p *Packet) AppendFloat64(f float64) {
	p.AppendUint64(math.Float64bits(f))
}

// ReadFloat64 reads one float64 from the beginning of unread payload
func (p *Packet) ReadFloat64() float64 {
	return math.Float64frombits(p.ReadUint64())
}

// AppendBytes appends slice of bytes to the end of payload
func (p *Packet) AppendBytes(v []byte) {
	copy(p.grow(len(v)), v)
}

// ReadBytes reads bytes from the beginning of unread payload; bytes are not copied
func (p *Packet) ReadBytes(size uint32) []byte {
	return p.read(size)
}

// AppendVarStr appends a varsize string to the end of payload
func (p *Packet) AppendVarStr(s string) {
	p.AppendUint32(uint32(len(s)))
	copy(p.grow(len(s)), s)
}

// ReadVarStr reads a varsize string from the beginning of unread payload
func (p *Packet) ReadVarStr() string {
	return string(p.ReadVarBytes())
}

// AppendVarBytes appends varsize bytes to the end of payload
func (p *Packet) AppendVarBytes(v []byte) {
	p.AppendUint32(uint32(len(v)))
	p.AppendBytes(v)
}

// ReadVarBytes reads a varsize slice of bytes from the beginning of unread payload
func (p *Packet) ReadVarBytes() []byte {
	blen := p.ReadUint32()
	return p.ReadBytes(blen)
}

// AppendObjectID appends one object ID to the end of payload
func (p *Packet) AppendObjectID(id common.ObjectID) {
	p.AppendUint64(uint64(id))
}

// ReadObjectID reads one object ID from the beginning of unread payload
func (p *Packet) ReadObjectID() common.ObjectID {
	return common.ObjectID(p.ReadUint64())
}

// AppendData appends one data of any type to the end of payload
func (p *Packet) AppendData(msg interface{}) {
	dataBytes, err := MSG_PACKER.PackMsg(msg, nil)
	if err != nil {
		gwlog.Panic(err)
	}
	p.AppendVarBytes(dataBytes)
}

// ReadData reads one data of any type from the beginning of unread payload
func (p *Packet) ReadData(msg interface{}) {
	b := p.ReadVarBytes()
	if err := MSG_PACKER.UnpackMsg(b, msg); err != nil {
		gwlog.Panic(err)
	}
}

// AppendStringList appends a list of strings to the end of payload
func (p *Packet) AppendStringList(list []string) {
	p.AppendUint16(uint16(len(list)))
	for _, s := range list {
		p.AppendVarStr(s)
	}
}

// ReadStringList reads a list of strings from the beginning of unread payload
func (p *Packet) ReadStringList() []string {
	listlen := int(p.ReadUint16())
	list := make([]string, listlen)
	for i := 0; i < listlen; i++ {
		list[i] = p.ReadVarStr()
	}
	return list
}
