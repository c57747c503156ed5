package proto

import (
	"fmt"

	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/netutil"
	"github.com/goreplica/goreplica/engine/propsync"
	"github.com/pkg/errors"
)

// Handshake is sent by both sides once the connection is up
type Handshake struct {
	Peer         common.PeerID
	Mode         common.Mode
	Fingerprints map[string]uint64
}

// ConstructObject creates an Object on the receiver
type ConstructObject struct {
	ObjectID   common.ObjectID
	Name       string
	Mode       common.Mode
	Owner      common.PeerID
	Template   string
	Parent     common.ObjectID
	Properties propsync.Transaction
}

// ConstructComponent creates a Component on a constructed Object of the receiver
type ConstructComponent struct {
	ObjectID   common.ObjectID
	TypeCode   common.ComponentType
	Name       string
	Mode       common.Mode
	Owner      common.PeerID
	Template   string
	Properties propsync.Transaction
}

// ConstructAck acknowledges a ConstructObject (empty Component) or ConstructComponent
type ConstructAck struct {
	ObjectID  common.ObjectID
	Component string
}

// Serialize carries changed properties of an Object (empty Component) or Component
type Serialize struct {
	ObjectID    common.ObjectID
	Component   string
	Transaction propsync.Transaction
}

// DestroyComponent destroys a Component on the receiver
type DestroyComponent struct {
	ObjectID  common.ObjectID
	Component string
}

// DestroyObject destroys an Object on the receiver
type DestroyObject struct {
	ObjectID common.ObjectID
}

// PluginConstruct creates a plugin on the receiver
type PluginConstruct struct {
	PluginType uint8
	Properties propsync.Transaction
}

// PluginSerialize carries changed properties of a plugin
type PluginSerialize struct {
	PluginType  uint8
	Transaction propsync.Transaction
}

// PluginDestroy destroys a plugin on the receiver
type PluginDestroy struct {
	PluginType uint8
}

// EncodeMessage allocates a packet holding the message
func EncodeMessage(msg interface{}) *netutil.Packet {
	packet := netutil.NewPacket()
	switch m := msg.(type) {
	case *Handshake:
		packet.AppendUint16(MT_HANDSHAKE)
		packet.AppendVarStr(string(m.Peer))
		packet.AppendByte(byte(m.Mode))
		packet.AppendData(m.Fingerprints)
	case *ConstructObject:
		packet.AppendUint16(MT_CONSTRUCT_OBJECT)
		packet.AppendObjectID(m.ObjectID)
		packet.AppendVarStr(m.Name)
		packet.AppendByte(byte(m.Mode))
		packet.AppendVarStr(string(m.Owner))
		packet.AppendVarStr(m.Template)
		packet.AppendObjectID(m.Parent)
		appendTransaction(packet, m.Properties)
	case *ConstructComponent:
		packet.AppendUint16(MT_CONSTRUCT_COMPONENT)
		packet.AppendObjectID(m.ObjectID)
		packet.AppendByte(byte(m.TypeCode))
		packet.AppendVarStr(m.Name)
		packet.AppendByte(byte(m.Mode))
		packet.AppendVarStr(string(m.Owner))
		packet.AppendVarStr(m.Template)
		appendTransaction(packet, m.Properties)
	case *ConstructAck:
		packet.AppendUint16(MT_CONSTRUCT_ACK)
		packet.AppendObjectID(m.ObjectID)
		packet.AppendVarStr(m.Component)
	case *Serialize:
		packet.AppendUint16(MT_SERIALIZE)
		packet.AppendObjectID(m.ObjectID)
		packet.AppendVarStr(m.Component)
		appendTransaction(packet, m.Transaction)
	case *DestroyComponent:
		packet.AppendUint16(MT_DESTROY_COMPONENT)
		packet.AppendObjectID(m.ObjectID)
		packet.AppendVarStr(m.Component)
	case *DestroyObject:
		packet.AppendUint16(MT_DESTROY_OBJECT)
		packet.AppendObjectID(m.ObjectID)
	case *PluginConstruct:
		packet.AppendUint16(MT_PLUGIN_CONSTRUCT)
		packet.AppendByte(m.PluginType)
		appendTransaction(packet, m.Properties)
	case *PluginSerialize:
		packet.AppendUint16(MT_PLUGIN_SERIALIZE)
		packet.AppendByte(m.PluginType)
		appendTransaction(packet, m.Transaction)
	case *PluginDestroy:
		packet.AppendUint16(MT_PLUGIN_DESTROY)
		packet.AppendByte(m.PluginType)
	default:
		packet.Release()
		panic(fmt.Errorf("EncodeMessage: unknown message %T", msg))
	}
	return packet
}

// DecodeMessage reads one message from the packet
//
// Malformed packets return an error caused by common.ErrDecodeFailure. Byte slices of the
// result do not alias the packet, so it can be released right after.
func DecodeMessage(packet *netutil.Packet) (msgtype MsgType, msg interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			msg = nil
			err = errors.Wrapf(common.ErrDecodeFailure, "%s: %v", msgtype, r)
		}
	}()

	msgtype = MsgType(packet.ReadUint16())
	switch msgtype {
	case MT_HANDSHAKE:
		m := &Handshake{}
		m.Peer = common.PeerID(packet.ReadVarStr())
		m.Mode = readMode(packet)
		packet.ReadData(&m.Fingerprints)
		msg = m
	case MT_CONSTRUCT_OBJECT:
		m := &ConstructObject{}
		m.ObjectID = packet.ReadObjectID()
		m.Name = packet.ReadVarStr()
		m.Mode = readMode(packet)
		m.Owner = common.PeerID(packet.ReadVarStr())
		m.Template = packet.ReadVarStr()
		m.Parent = packet.ReadObjectID()
		m.Properties = readTransaction(packet)
		msg = m
	case MT_CONSTRUCT_COMPONENT:
		m := &ConstructComponent{}
		m.ObjectID = packet.ReadObjectID()
		m.TypeCode = common.ComponentType(packet.ReadOneByte())
		m.Name = packet.ReadVarStr()
		m.Mode = readMode(packet)
		m.Owner = common.PeerID(packet.ReadVarStr())
		m.Template = packet.ReadVarStr()
		m.Properties = readTransaction(packet)
		msg = m
	case MT_CONSTRUCT_ACK:
		msg = &ConstructAck{ObjectID: packet.ReadObjectID(), Component: packet.ReadVarStr()}
	case MT_SERIALIZE:
		m := &Serialize{}
		m.ObjectID = packet.ReadObjectID()
		m.Component = packet.ReadVarStr()
		m.Transaction = readTransaction(packet)
		msg = m
	case MT_DESTROY_COMPONENT:
		msg = &DestroyComponent{ObjectID: packet.ReadObjectID(), Component: packet.ReadVarStr()}
	case MT_DESTROY_OBJECT:
		msg = &DestroyObject{ObjectID: packet.ReadObjectID()}
	case MT_PLUGIN_CONSTRUCT:
		m := &PluginConstruct{PluginType: packet.ReadOneByte()}
		m.Properties = readTransaction(packet)
		msg = m
	case MT_PLUGIN_SERIALIZE:
		m := &PluginSerialize{PluginType: packet.ReadOneByte()}
		m.Transaction = readTransaction(packet)
		msg = m
	case MT_PLUGIN_DESTROY:
		msg = &PluginDestroy{PluginType: packet.ReadOneByte()}
	default:
		return msgtype, nil, errors.Wrapf(common.ErrDecodeFailure, "unknown message type %d", msgtype)
	}
	return
}

func readMode(packet *netutil.Packet) common.Mode {
	mode := common.Mode(packet.ReadOneByte())
	if mode != common.ModeClient && mode != common.ModeServer {
		panic(fmt.Errorf("invalid mode %d", mode))
	}
	return mode
}

func appendTransaction(packet *netutil.Packet, txn propsync.Transaction) {
	packet.AppendUint16(uint16(len(txn.Entries)))
	for _, e := range txn.Entries {
		packet.AppendVarStr(e.Name)
		packet.AppendVarBytes(e.Value)
	}
}

func readTransaction(packet *netutil.Packet) propsync.Transaction {
	n := int(packet.ReadUint16())
	if n == 0 {
		return propsync.Transaction{}
	}
	txn := propsync.Transaction{Entries: make([]propsync.Entry, n)}
	for i := 0; i < n; i++ {
		txn.Entries[i].Name = packet.ReadVarStr()
		value := packet.ReadVarBytes()
		txn.Entries[i].Value = append([]byte(nil), value...)
	}
	return txn
}
