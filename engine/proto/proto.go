package proto

// MsgType is the type of message types
type MsgType uint16

const (
	// MT_INVALID is the invalid message type
	MT_INVALID = iota
	// MT_HANDSHAKE is the first message of each side, carrying peer identity and schema fingerprints
	MT_HANDSHAKE
	// MT_CONSTRUCT_OBJECT constructs an Object on the receiver
	MT_CONSTRUCT_OBJECT
	// MT_CONSTRUCT_COMPONENT constructs a Component of a constructed Object on the receiver
	MT_CONSTRUCT_COMPONENT
	// MT_CONSTRUCT_ACK acknowledges a construct message
	MT_CONSTRUCT_ACK
	// MT_SERIALIZE carries a property transaction of an Object or Component
	MT_SERIALIZE
	// MT_DESTROY_COMPONENT destroys a Component on the receiver
	MT_DESTROY_COMPONENT
	// MT_DESTROY_OBJECT destroys an Object on the receiver
	MT_DESTROY_OBJECT
)

// Message types of client-server plugins
const (
	// MT_PLUGIN_MSG_TYPE_START is the first message type handled by the plugin manager
	MT_PLUGIN_MSG_TYPE_START = 100 + iota
	// MT_PLUGIN_CONSTRUCT constructs a plugin on the client
	MT_PLUGIN_CONSTRUCT
	// MT_PLUGIN_SERIALIZE carries a property transaction of a plugin
	MT_PLUGIN_SERIALIZE
	// MT_PLUGIN_DESTROY destroys a plugin on the client
	MT_PLUGIN_DESTROY
	// MT_PLUGIN_MSG_TYPE_STOP is the last message type handled by the plugin manager
	MT_PLUGIN_MSG_TYPE_STOP = 199
)

// IsPluginMsgType returns if the message type should be handled by the plugin manager
func IsPluginMsgType(msgtype MsgType) bool {
	return msgtype > MT_PLUGIN_MSG_TYPE_START && msgtype < MT_PLUGIN_MSG_TYPE_STOP
}

var msgTypeNames = map[MsgType]string{
	MT_HANDSHAKE:           "HANDSHAKE",
	MT_CONSTRUCT_OBJECT:    "CONSTRUCT_OBJECT",
	MT_CONSTRUCT_COMPONENT: "CONSTRUCT_COMPONENT",
	MT_CONSTRUCT_ACK:       "CONSTRUCT_ACK",
	MT_SERIALIZE:           "SERIALIZE",
	MT_DESTROY_COMPONENT:   "DESTROY_COMPONENT",
	MT_DESTROY_OBJECT:      "DESTROY_OBJECT",
	MT_PLUGIN_CONSTRUCT:    "PLUGIN_CONSTRUCT",
	MT_PLUGIN_SERIALIZE:    "PLUGIN_SERIALIZE",
	MT_PLUGIN_DESTROY:      "PLUGIN_DESTROY",
}

func (mt MsgType) String() string {
	if name, ok := msgTypeNames[mt]; ok {
		return name
	}
	return "MT_INVALID"
}
