package object

import (
	"fmt"
	"sort"

	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/goreplica/goreplica/engine/propsync"
	"github.com/pkg/errors"
)

// Object is a named container of Components, the unit of replication
type Object struct {
	manager    *Manager
	id         common.ObjectID
	name       string
	mode       common.Mode
	networking common.NetworkingType
	owner      common.PeerID
	origin     common.PeerID
	template   string
	overridden common.StringSet
	parent     common.ObjectID
	children   common.ObjectIDSet
	components map[string]*Component
	order      []*Component
	active     bool
	sync       *propsync.Synchronizer
	destroyed  bool
}

func (o *Object) String() string {
	if o == nil {
		return "Object<nil>"
	}
	return fmt.Sprintf("Object<%s|%s>", o.id, o.name)
}

// ReflectTypeName returns the reflected type name of Objects
func (o *Object) ReflectTypeName() string {
	return ObjectTypeName
}

// ID returns the network-wide unique ID
func (o *Object) ID() common.ObjectID {
	return o.id
}

// Name returns the unique display name
func (o *Object) Name() string {
	return o.name
}

// Mode returns which side authored the Object
func (o *Object) Mode() common.Mode {
	return o.mode
}

// NetworkingType returns LOCAL when the manager is offline, the creation networking type otherwise
func (o *Object) NetworkingType() common.NetworkingType {
	if o.manager.offline {
		return common.Local
	}
	return o.networking
}

// IsReplicated returns if the Object is replicated to peers
func (o *Object) IsReplicated() bool {
	return o.NetworkingType() == common.Remote
}

// Owner returns the peer that created the Object
func (o *Object) Owner() common.PeerID {
	return o.owner
}

// Origin returns the peer the Object was received from, empty for local Objects
func (o *Object) Origin() common.PeerID {
	return o.origin
}

// IsAuthority returns if this peer created the Object
func (o *Object) IsAuthority() bool {
	return o.owner == o.manager.self
}

// Template returns the name of the template the Object was created from
func (o *Object) Template() string {
	return o.template
}

// IsActive returns the Active property
func (o *Object) IsActive() bool {
	return o.active
}

// SetActive sets the Active property
func (o *Object) SetActive(active bool) error {
	return o.Set("Active", active)
}

// Parent returns the parent Object, nil for root Objects
func (o *Object) Parent() *Object {
	if o.parent.IsNil() {
		return nil
	}
	return o.manager.objects[o.parent]
}

// ParentID returns the ID of the parent Object
func (o *Object) ParentID() common.ObjectID {
	return o.parent
}

// Children returns the child Objects in ID order
func (o *Object) Children() []*Object {
	children := make([]*Object, 0, len(o.children))
	for _, id := range o.children.ToList() {
		if child := o.manager.objects[id]; child != nil {
			children = append(children, child)
		}
	}
	return children
}

// Component returns the component by name, nil if not found
func (o *Object) Component(name string) *Component {
	return o.components[name]
}

// ComponentsByType returns the components of a type in creation order
func (o *Object) ComponentsByType(typeCode common.ComponentType) []*Component {
	var res []*Component
	for _, c := range o.order {
		if c.desc.typeCode == typeCode {
			res = append(res, c)
		}
	}
	return res
}

// Components returns every component in creation order
func (o *Object) Components() []*Component {
	return append([]*Component(nil), o.order...)
}

// Synchronizer returns the property synchronizer of the Object
func (o *Object) Synchronizer() *propsync.Synchronizer {
	return o.sync
}

// Get reads an Object property
func (o *Object) Get(name string) (interface{}, error) {
	return o.sync.Get(name)
}

// Set writes an Object property
func (o *Object) Set(name string, value interface{}) error {
	if o.destroyed {
		return errors.Wrapf(common.ErrNotFound, "%s destroyed", o)
	}
	if err := o.sync.Set(name, value); err != nil {
		return err
	}
	if o.template != "" {
		o.overridden.Add(name)
	}
	o.notifyPropertyChanged(name, "")
	return nil
}

// IsOverridden returns if a template property was overridden on this Object
func (o *Object) IsOverridden(name string) bool {
	return o.overridden.Contains(name)
}

func (o *Object) notifyPropertyChanged(name string, origin common.PeerID) {
	o.manager.emit(Event{Kind: PropertyChanged, Object: o, Property: name, Origin: origin})
}

// Destroy destroys the Object with its components and children
func (o *Object) Destroy() error {
	if o.destroyed {
		return nil
	}
	return o.manager.DestroyObject(o.id)
}

// IsDestroyed returns if the Object is destroyed
func (o *Object) IsDestroyed() bool {
	return o.destroyed
}

// Duplicate creates a new root Object with copies of every component and synchronized property
//
// Children are not duplicated.
func (o *Object) Duplicate(newName string) (*Object, error) {
	m := o.manager
	dup, err := m.createObject(objectInit{
		id:         m.allocID(),
		name:       newName,
		mode:       o.mode,
		networking: o.networking,
		owner:      m.self,
		template:   o.template,
	})
	if err != nil {
		return nil, err
	}
	dup.overridden = copyStringSet(o.overridden)
	copySyncedProperties(o.sync, dup.sync)
	m.objectCreated(dup)

	for _, c := range o.order {
		nc, err := m.createComponent(dup, componentInit{
			desc:     c.desc,
			name:     c.name,
			mode:     m.mode,
			owner:    m.self,
			template: c.template,
		})
		if err != nil {
			gwlog.Warnf("%s: duplicate %s failed: %v", dup, c, err)
			continue
		}
		nc.overridden = copyStringSet(c.overridden)
		nc.localOverride = c.localOverride
		copySyncedProperties(c.sync, nc.sync)
		m.componentCreated(nc)
	}
	return dup, nil
}

// ReapplyTemplate applies the template presets again, skipping overridden properties
func (o *Object) ReapplyTemplate() error {
	if o.template == "" {
		return errors.Errorf("%s was not created from a template", o)
	}
	tmpl, err := o.manager.loadTemplate(o.template)
	if err != nil {
		return err
	}
	for _, name := range applyPresets(o.sync, tmpl.Properties, o.overridden) {
		o.notifyPropertyChanged(name, "")
	}
	for _, c := range o.order {
		if c.template == "" {
			continue
		}
		ct := tmpl.Component(c.name)
		if ct == nil {
			continue
		}
		for _, name := range applyPresets(c.sync, ct.Properties, c.overridden) {
			c.notifyPropertyChanged(name, "")
		}
	}
	return nil
}

func copySyncedProperties(from, to *propsync.Synchronizer) {
	for _, d := range from.Desc().SyncedProperties() {
		if d.ReadOnly() {
			continue
		}
		v, err := from.Get(d.Name())
		if err != nil {
			continue
		}
		if err := to.Set(d.Name(), v); err != nil {
			gwlog.Warnf("copy property %s.%s failed: %v", from.Desc().Name(), d.Name(), err)
		}
	}
}

func copyStringSet(ss common.StringSet) common.StringSet {
	res := common.StringSet{}
	for s := range ss {
		res.Add(s)
	}
	return res
}

func sortObjects(objects []*Object) {
	sort.Slice(objects, func(i, j int) bool {
		return objects[i].id < objects[j].id
	})
}
