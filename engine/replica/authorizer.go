package replica

import (
	"fmt"

	"github.com/goreplica/goreplica/engine/common"
)

// RequestKind is the kind of a client request checked by an Authorizer
type RequestKind uint8

const (
	// RequestConstruct is a client constructing an Object or Component on the server
	RequestConstruct RequestKind = iota
	// RequestSerialize is a client changing properties of an entity it owns
	RequestSerialize
	// RequestDestroy is a client destroying an Object or Component
	RequestDestroy
)

var requestKindNames = [...]string{"Construct", "Serialize", "Destroy"}

func (k RequestKind) String() string {
	if int(k) < len(requestKindNames) {
		return requestKindNames[k]
	}
	return fmt.Sprintf("RequestKind(%d)", k)
}

// Request describes a message received from a client
type Request struct {
	Kind      RequestKind
	Peer      common.PeerID
	ObjectID  common.ObjectID
	Component string // empty for Objects
	TypeCode  common.ComponentType
	Changes   int // number of entries of a serialize
}

func (req Request) String() string {
	if req.Component == "" {
		return fmt.Sprintf("%s<%s %s>", req.Kind, req.Peer, req.ObjectID)
	}
	return fmt.Sprintf("%s<%s %s.%s>", req.Kind, req.Peer, req.ObjectID, req.Component)
}

// Authorizer decides whether messages of clients are accepted by the server
//
// A non-nil error drops the message; it should be caused by common.ErrPermissionDenied.
type Authorizer interface {
	Authorize(req Request) error
}

// AuthorizerFunc adapts a function to Authorizer
type AuthorizerFunc func(req Request) error

// Authorize calls f(req)
func (f AuthorizerFunc) Authorize(req Request) error {
	return f(req)
}

type allowAll struct{}

func (allowAll) Authorize(req Request) error {
	return nil
}
