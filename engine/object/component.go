package object

import (
	"fmt"
	"reflect"

	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/consts"
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/goreplica/goreplica/engine/propsync"
	"github.com/pkg/errors"
)

var componentStructType = reflect.TypeOf(Component{})

// IComponent declares functions that is defined in Component
//
// Custom component types embed Component and override what they need.
type IComponent interface {
	DescribeComponentType(desc *ComponentTypeDesc) // Define properties and flags in this function
	OnCreated()                                    // Called after the component is created and its properties are set
	OnDestroy()                                    // Called just before the component is destroyed
	OnPropertyChanged(name string)                 // Called after a property changed
}

// Component is a typed, named unit of data attached to an Object
type Component struct {
	I IComponent

	desc          *ComponentTypeDesc
	name          string
	object        *Object
	mode          common.Mode
	owner         common.PeerID
	origin        common.PeerID
	localOverride bool
	template      string
	overridden    common.StringSet
	sync          *propsync.Synchronizer
	destroyed     bool
}

func (c *Component) String() string {
	if c.object == nil {
		return fmt.Sprintf("%s<%s>", c.desc.typeName, c.name)
	}
	return fmt.Sprintf("%s<%s.%s>", c.desc.typeName, c.object.id, c.name)
}

// Name returns the instance name, unique within the owning Object
func (c *Component) Name() string {
	return c.name
}

// TypeCode returns the type code
func (c *Component) TypeCode() common.ComponentType {
	return c.desc.typeCode
}

// TypeName returns the type name
func (c *Component) TypeName() string {
	return c.desc.typeName
}

// TypeDesc returns the component type
func (c *Component) TypeDesc() *ComponentTypeDesc {
	return c.desc
}

// Object returns the owning Object
func (c *Component) Object() *Object {
	return c.object
}

// Mode returns which side authored the component
func (c *Component) Mode() common.Mode {
	return c.mode
}

// Owner returns the peer that created the component
func (c *Component) Owner() common.PeerID {
	return c.owner
}

// Origin returns the peer the component was received from, empty for local components
func (c *Component) Origin() common.PeerID {
	return c.origin
}

// Template returns the name of the template the component was created from
func (c *Component) Template() string {
	return c.template
}

// IsAuthority returns if this peer may originate changes of the component
func (c *Component) IsAuthority() bool {
	return c.owner == c.object.manager.self
}

// IsForcedLocal returns if the component is never replicated regardless of its Object
func (c *Component) IsForcedLocal() bool {
	if c.localOverride || c.desc.HasFlag(ClientOnly) || c.desc.HasFlag(ServerOnly) {
		return true
	}
	return c.owner != c.object.owner
}

// NetworkingType returns the effective networking type
func (c *Component) NetworkingType() common.NetworkingType {
	if c.IsForcedLocal() {
		return common.Local
	}
	return c.object.NetworkingType()
}

// IsReplicated returns if the component is replicated to peers
func (c *Component) IsReplicated() bool {
	return c.NetworkingType() == common.Remote
}

// LocalOverride returns if the component was forced local
func (c *Component) LocalOverride() bool {
	return c.localOverride
}

// SetLocalOverride forces the component local (or back to its Object networking type)
func (c *Component) SetLocalOverride(override bool) error {
	if c.destroyed {
		return errors.Wrapf(common.ErrNotFound, "%s destroyed", c)
	}
	if c.desc.HasFlag(ClientOnly) || c.desc.HasFlag(ServerOnly) {
		return errors.Errorf("%s: local override not allowed on client only or server only components", c)
	}
	if !c.IsAuthority() {
		return errors.Errorf("%s: local override not allowed on replicas", c)
	}
	if c.localOverride == override {
		return nil
	}
	c.localOverride = override
	c.sync.Discard()
	c.object.manager.emit(Event{Kind: NetworkingChanged, Object: c.object, Component: c})
	return nil
}

// IsDestroyed returns if the component is destroyed
func (c *Component) IsDestroyed() bool {
	return c.destroyed
}

// Synchronizer returns the property synchronizer of the component
func (c *Component) Synchronizer() *propsync.Synchronizer {
	return c.sync
}

// Get reads a property
func (c *Component) Get(name string) (interface{}, error) {
	return c.sync.Get(name)
}

// Set writes a property, marking it dirty if it is synchronized
//
// Properties set on a component created from a template are remembered as overridden.
func (c *Component) Set(name string, value interface{}) error {
	if c.destroyed {
		return errors.Wrapf(common.ErrNotFound, "%s destroyed", c)
	}
	if err := c.sync.Set(name, value); err != nil {
		return err
	}
	if c.template != "" {
		c.overridden.Add(name)
	}
	c.notifyPropertyChanged(name, "")
	return nil
}

// MarkDirty marks a synchronized property dirty after the custom struct field was changed directly
func (c *Component) MarkDirty(name string) error {
	return c.sync.MarkDirty(name)
}

// IsOverridden returns if a template property was overridden on this instance
func (c *Component) IsOverridden(name string) bool {
	return c.overridden.Contains(name)
}

// Destroy destroys the component
func (c *Component) Destroy() error {
	if c.destroyed {
		return nil
	}
	return c.object.manager.DestroyComponent(c.object, c.name)
}

func (c *Component) notifyPropertyChanged(name string, origin common.PeerID) {
	if consts.DEBUG_OBJECTS {
		gwlog.Debugf("%s: property %s changed", c, name)
	}
	i := c.I
	c.object.manager.runHook(c, "OnPropertyChanged", func() {
		i.OnPropertyChanged(name)
	})
	c.object.manager.emit(Event{Kind: PropertyChanged, Object: c.object, Component: c, Property: name, Origin: origin})
}

// DescribeComponentType defines no properties by default
func (c *Component) DescribeComponentType(desc *ComponentTypeDesc) {
}

// OnCreated is called when the component is created
//
// Can override this function in custom component type
func (c *Component) OnCreated() {
}

// OnDestroy is called when the component is destroying
//
// Can override this function in custom component type
func (c *Component) OnDestroy() {
}

// OnPropertyChanged is called after a property changed
//
// Can override this function in custom component type
func (c *Component) OnPropertyChanged(name string) {
}
