package object

import (
	"fmt"

	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/gwutils"
)

// EventKind is the kind of an object manager event
type EventKind uint8

const (
	// ObjectCreated fires after an Object is created
	ObjectCreated EventKind = iota
	// ObjectDestroyed fires when an Object is destroyed, after its components and children
	ObjectDestroyed
	// ComponentCreated fires after a Component is created
	ComponentCreated
	// ComponentDestroyed fires when a Component is destroyed
	ComponentDestroyed
	// PropertyChanged fires after a property of an Object or Component changed
	PropertyChanged
	// NetworkingChanged fires after the local override of a Component changed
	NetworkingChanged
)

var eventKindNames = [...]string{
	"ObjectCreated", "ObjectDestroyed", "ComponentCreated", "ComponentDestroyed", "PropertyChanged", "NetworkingChanged",
}

func (k EventKind) String() string {
	if int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", k)
}

// Event is a local notification of the object manager
//
// Component is nil for Object events. Origin is the peer the change was received from,
// empty for local changes.
type Event struct {
	Kind      EventKind
	Object    *Object
	Component *Component
	Property  string
	Origin    common.PeerID
}

// IsRemote returns if the change was received from a peer
func (ev Event) IsRemote() bool {
	return !ev.Origin.IsNil()
}

func (ev Event) String() string {
	if ev.Component != nil {
		return fmt.Sprintf("%s(%s.%s)", ev.Kind, ev.Object, ev.Component.Name())
	}
	return fmt.Sprintf("%s(%s)", ev.Kind, ev.Object)
}

// EventListener receives object manager events on the tick goroutine
type EventListener func(ev Event)

// ListenerHandle identifies a subscribed EventListener
type ListenerHandle uint32

type listenerEntry struct {
	handle   ListenerHandle
	listener EventListener
}

type eventBus struct {
	listeners  []listenerEntry
	nextHandle ListenerHandle
}

func (bus *eventBus) subscribe(l EventListener) ListenerHandle {
	bus.nextHandle++
	bus.listeners = append(bus.listeners, listenerEntry{bus.nextHandle, l})
	return bus.nextHandle
}

func (bus *eventBus) unsubscribe(h ListenerHandle) bool {
	for i, entry := range bus.listeners {
		if entry.handle == h {
			bus.listeners = append(bus.listeners[:i:i], bus.listeners[i+1:]...)
			return true
		}
	}
	return false
}

func (bus *eventBus) emit(ev Event) {
	listeners := bus.listeners
	for _, entry := range listeners {
		l := entry.listener
		gwutils.RunPanicless(func() {
			l(ev)
		})
	}
}
