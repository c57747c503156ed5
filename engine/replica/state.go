package replica

import (
	"fmt"

	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/object"
)

// ViewState is the construction state of an entity as seen by one peer
type ViewState uint8

const (
	// Unconstructed entities have not been announced to the peer
	Unconstructed ViewState = iota
	// PendingConstruction entities were sent to the peer and are not acknowledged yet
	PendingConstruction
	// Constructed entities are acknowledged by the peer and receive property transactions
	Constructed
	// PendingDestruction entities are being destroyed on the peer
	PendingDestruction
	// Destroyed entities were removed from the peer
	Destroyed
)

var viewStateNames = [...]string{
	"Unconstructed", "PendingConstruction", "Constructed", "PendingDestruction", "Destroyed",
}

func (s ViewState) String() string {
	if int(s) < len(viewStateNames) {
		return viewStateNames[s]
	}
	return fmt.Sprintf("ViewState(%d)", s)
}

// entityKey addresses an Object (empty component) or one of its Components on the wire
type entityKey struct {
	id        common.ObjectID
	component string
}

func objectKey(o *object.Object) entityKey {
	return entityKey{id: o.ID()}
}

func componentKey(c *object.Component) entityKey {
	return entityKey{id: c.Object().ID(), component: c.Name()}
}

func (k entityKey) isObject() bool {
	return k.component == ""
}

func (k entityKey) String() string {
	if k.component == "" {
		return k.id.String()
	}
	return k.id.String() + "." + k.component
}

// view is what one peer knows about one entity
type view struct {
	state    ViewState
	sentTick uint64 // tick the construct message was sent in
	skipped  bool   // a transaction was not sent while construction was pending
}
