package common

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// ObjectID is the network-wide unique identifier of an Object
type ObjectID uint64

// IsNil returns if ObjectID is nil
func (id ObjectID) IsNil() bool {
	return id == 0
}

func (id ObjectID) String() string {
	return fmt.Sprintf("%d", uint64(id))
}

// ClientObjectIDBase returns the first ObjectID a client peer allocates from
//
// Client allocated IDs carry a hash of the peer GUID in the high 32 bits so that
// different clients never allocate overlapping ranges.
func ClientObjectIDBase(peer PeerID) ObjectID {
	prefix := xxhash.Sum64String(string(peer)) >> 32
	if prefix == 0 {
		prefix = 1
	}
	return ObjectID(prefix << 32)
}

// PeerID is the opaque GUID of a network peer
type PeerID string

// IsNil returns if PeerID is nil
func (id PeerID) IsNil() bool {
	return id == ""
}

// GenPeerID generates a new PeerID
func GenPeerID() PeerID {
	return PeerID(uuid.New().String())
}

// ComponentType is the stable numeric type code of a Component kind
type ComponentType uint8

func (t ComponentType) String() string {
	return fmt.Sprintf("0x%02X", uint8(t))
}

// Mode tells which side authored an entity
type Mode uint8

const (
	// ModeClient entities are authored by a client
	ModeClient Mode = iota
	// ModeServer entities are authored by the server
	ModeServer
)

func (m Mode) String() string {
	if m == ModeServer {
		return "SERVER"
	}
	return "CLIENT"
}

// NetworkingType tells whether an entity is replicated
type NetworkingType uint8

const (
	// Local entities are never replicated
	Local NetworkingType = iota
	// Remote entities are replicated to peers
	Remote
)

func (nt NetworkingType) String() string {
	if nt == Remote {
		return "REMOTE"
	}
	return "LOCAL"
}

// Vector3 is the value type of vector properties
type Vector3 struct {
	X float32 `msgpack:"x" yaml:"x" bson:"x"`
	Y float32 `msgpack:"y" yaml:"y" bson:"y"`
	Z float32 `msgpack:"z" yaml:"z" bson:"z"`
}

func (v Vector3) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", v.X, v.Y, v.Z)
}
