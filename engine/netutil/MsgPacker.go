package netutil

import (
	"bytes"

	"github.com/vmihailenco/msgpack"
)

// MsgPacker packs and unpacks structured message data
type MsgPacker interface {
	PackMsg(msg interface{}, buf []byte) ([]byte, error)
	UnpackMsg(data []byte, msg interface{}) error
}

// MSG_PACKER is the packer used by Packet.AppendData and Packet.ReadData
var MSG_PACKER MsgPacker = MessagePackMsgPacker{}

// MessagePackMsgPacker packs messages in MessagePack format, struct fields keyed by their
// msgpack tags
type MessagePackMsgPacker struct{}

// PackMsg appends the encoding of msg to buf
func (MessagePackMsgPacker) PackMsg(msg interface{}, buf []byte) ([]byte, error) {
	w := bytes.NewBuffer(buf)
	if err := msgpack.NewEncoder(w).Encode(msg); err != nil {
		return buf, err
	}
	return w.Bytes(), nil
}

// UnpackMsg decodes data into msg
func (MessagePackMsgPacker) UnpackMsg(data []byte, msg interface{}) error {
	return msgpack.NewDecoder(bytes.NewReader(data)).Decode(msg)
}
