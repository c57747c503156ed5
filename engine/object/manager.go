package object

import (
	"reflect"

	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/consts"
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/goreplica/goreplica/engine/gwutils"
	"github.com/goreplica/goreplica/engine/propsync"
	"github.com/goreplica/goreplica/engine/template"
	"github.com/pkg/errors"
)

// TemplateSource loads ObjectTemplates by name
type TemplateSource interface {
	LoadObjectTemplate(name string) (*template.ObjectTemplate, error)
}

// Config configures a Manager
type Config struct {
	Self      common.PeerID
	Mode      common.Mode
	Offline   bool // every Object and Component is forced LOCAL
	Types     *TypeRegistry
	Templates TemplateSource
}

// Manager owns the Objects of one peer and notifies subscribers about their lifecycle
//
// A Manager is only used from the tick goroutine.
type Manager struct {
	self      common.PeerID
	mode      common.Mode
	offline   bool
	types     *TypeRegistry
	templates TemplateSource

	objects      map[common.ObjectID]*Object
	byName       map[string]*Object
	idBase       common.ObjectID
	idLimit      common.ObjectID
	nextID       common.ObjectID
	events       eventBus
	destroyQueue []common.ObjectID
	applyOrigin  common.PeerID
}

// NewManager creates an object manager
func NewManager(config Config) *Manager {
	if config.Types == nil {
		config.Types = DefaultTypes()
	}
	if config.Self.IsNil() {
		config.Self = common.GenPeerID()
	}
	m := &Manager{
		self:      config.Self,
		mode:      config.Mode,
		offline:   config.Offline,
		types:     config.Types,
		templates: config.Templates,
		objects:   map[common.ObjectID]*Object{},
		byName:    map[string]*Object{},
	}
	if m.mode == common.ModeServer {
		m.idBase = 0
		m.idLimit = 1 << 32
	} else {
		m.idBase = common.ClientObjectIDBase(m.self)
		m.idLimit = m.idBase + 1<<32 - 1
	}
	m.nextID = m.idBase + 1
	return m
}

func (m *Manager) String() string {
	return "ObjectManager<" + m.mode.String() + "|" + string(m.self) + ">"
}

// Self returns the local peer ID
func (m *Manager) Self() common.PeerID {
	return m.self
}

// Mode returns whether this manager runs on a server or a client
func (m *Manager) Mode() common.Mode {
	return m.mode
}

// IsOffline returns if everything is forced LOCAL
func (m *Manager) IsOffline() bool {
	return m.offline
}

// Types returns the component type registry
func (m *Manager) Types() *TypeRegistry {
	return m.types
}

// Subscribe registers an event listener
func (m *Manager) Subscribe(l EventListener) ListenerHandle {
	return m.events.subscribe(l)
}

// Unsubscribe removes an event listener
func (m *Manager) Unsubscribe(h ListenerHandle) bool {
	return m.events.unsubscribe(h)
}

func (m *Manager) emit(ev Event) {
	if consts.DEBUG_OBJECTS {
		gwlog.Debugf("%s: %s", m, ev)
	}
	m.events.emit(ev)
}

func (m *Manager) runHook(c *Component, hook string, f func()) {
	if gwutils.RunPanicless(f) {
		gwlog.Errorf("%s: %s paniced", c, hook)
	}
}

func (m *Manager) allocID() common.ObjectID {
	for {
		id := m.nextID
		m.nextID++
		if _, ok := m.objects[id]; !ok {
			return id
		}
	}
}

func (m *Manager) reserveID(id common.ObjectID) {
	if id >= m.nextID && id < m.idLimit {
		m.nextID = id + 1
	}
}

// CreateObject creates a root Object with a newly allocated ID
func (m *Manager) CreateObject(name string, mode common.Mode, networking common.NetworkingType) (*Object, error) {
	return m.createLocalObject(m.allocID(), name, mode, networking, 0)
}

// CreateObjectWithID creates a root Object with the given ID
func (m *Manager) CreateObjectWithID(id common.ObjectID, name string, mode common.Mode, networking common.NetworkingType) (*Object, error) {
	if id.IsNil() {
		return nil, errors.New("object id must not be 0")
	}
	return m.createLocalObject(id, name, mode, networking, 0)
}

// CreateChildObject creates an Object under parent; children are destroyed with their parent
func (m *Manager) CreateChildObject(parent *Object, name string, mode common.Mode, networking common.NetworkingType) (*Object, error) {
	if parent == nil || parent.destroyed {
		return nil, errors.Wrap(common.ErrNotFound, "parent object")
	}
	return m.createLocalObject(m.allocID(), name, mode, networking, parent.id)
}

func (m *Manager) createLocalObject(id common.ObjectID, name string, mode common.Mode, networking common.NetworkingType, parent common.ObjectID) (*Object, error) {
	o, err := m.createObject(objectInit{
		id:         id,
		name:       name,
		mode:       mode,
		networking: networking,
		owner:      m.self,
		parent:     parent,
	})
	if err != nil {
		return nil, err
	}
	m.objectCreated(o)
	return o, nil
}

// CreateObjectFromTemplate creates an Object and its Components from a named template
//
// Components that can not exist on this side (ClientOnly on a server, ServerOnly on a client)
// are skipped.
func (m *Manager) CreateObjectFromTemplate(templateName string, name string, mode common.Mode, networking common.NetworkingType) (*Object, error) {
	tmpl, err := m.loadTemplate(templateName)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = tmpl.Name
	}

	o, err := m.createObject(objectInit{
		id:         m.allocID(),
		name:       name,
		mode:       mode,
		networking: networking,
		owner:      m.self,
		template:   templateName,
		presets:    tmpl.Properties,
	})
	if err != nil {
		return nil, err
	}
	m.objectCreated(o)

	for i := range tmpl.Components {
		ct := &tmpl.Components[i]
		desc, err := m.types.LookupByName(ct.Type)
		if err != nil {
			m.DestroyObject(o.id)
			return nil, errors.Wrapf(err, "template %s", templateName)
		}
		if !m.sideAllows(desc) {
			gwlog.Debugf("%s: template %s skips %s component %s", m, templateName, desc, ct.Name)
			continue
		}
		if _, err := m.createLocalComponent(o, desc, ct.Name, templateName, ct.Properties); err != nil {
			m.DestroyObject(o.id)
			return nil, errors.Wrapf(err, "template %s", templateName)
		}
	}
	return o, nil
}

func (m *Manager) loadTemplate(name string) (*template.ObjectTemplate, error) {
	if m.templates == nil {
		return nil, errors.Wrapf(common.ErrNotFound, "template %s: no template source", name)
	}
	return m.templates.LoadObjectTemplate(name)
}

type objectInit struct {
	id         common.ObjectID
	name       string
	mode       common.Mode
	networking common.NetworkingType
	owner      common.PeerID
	origin     common.PeerID
	template   string
	parent     common.ObjectID
	presets    []template.PropertyPreset
	snapshot   propsync.Transaction
}

// createObject registers a new Object without emitting ObjectCreated
func (m *Manager) createObject(args objectInit) (*Object, error) {
	if _, ok := m.objects[args.id]; ok {
		return nil, errors.Wrapf(common.ErrDuplicateName, "object id %s", args.id)
	}
	if args.name != "" {
		if _, ok := m.byName[args.name]; ok {
			return nil, errors.Wrapf(common.ErrDuplicateName, "object %s", args.name)
		}
	}
	var parent *Object
	if !args.parent.IsNil() {
		parent = m.objects[args.parent]
		if parent == nil {
			return nil, errors.Wrapf(common.ErrNotFound, "parent object %s", args.parent)
		}
	}

	o := &Object{
		manager:    m,
		id:         args.id,
		name:       args.name,
		mode:       args.mode,
		networking: args.networking,
		owner:      args.owner,
		origin:     args.origin,
		template:   args.template,
		overridden: common.StringSet{},
		parent:     args.parent,
		children:   common.ObjectIDSet{},
		components: map[string]*Component{},
		active:     true,
	}
	o.sync = propsync.Attach(m.types.ObjectType(), o)
	applyPresets(o.sync, args.presets, nil)
	if err := o.sync.Apply(args.snapshot); err != nil {
		return nil, err
	}
	o.sync.Discard()
	o.sync.OnChanged(func(name string) {
		o.notifyPropertyChanged(name, m.applyOrigin)
	})

	m.objects[o.id] = o
	if o.name != "" {
		m.byName[o.name] = o
	}
	if parent != nil {
		parent.children.Add(o.id)
	}
	m.reserveID(o.id)
	return o, nil
}

func (m *Manager) objectCreated(o *Object) {
	if consts.DEBUG_OBJECTS {
		gwlog.Debugf("%s: created %s owner=%s networking=%s", m, o, o.owner, o.NetworkingType())
	}
	m.emit(Event{Kind: ObjectCreated, Object: o, Origin: o.origin})
}

// CreateComponent creates a component of a registered type on the Object
//
// An empty name defaults to the type name. Fails with common.ErrDuplicateName if the name is
// taken, common.ErrUnknownType if the type is not registered or can not exist on this side,
// and common.ErrDuplicateType for a second component of a type without the Multiple flag.
func (m *Manager) CreateComponent(o *Object, typeCode common.ComponentType, name string) (*Component, error) {
	desc, err := m.types.Lookup(typeCode)
	if err != nil {
		return nil, err
	}
	if !m.sideAllows(desc) {
		return nil, errors.Wrapf(common.ErrUnknownType, "%s can not be created on %s", desc, m.mode)
	}
	return m.createLocalComponent(o, desc, name, "", nil)
}

func (m *Manager) createLocalComponent(o *Object, desc *ComponentTypeDesc, name string, templateName string, presets []template.PropertyPreset) (*Component, error) {
	c, err := m.createComponent(o, componentInit{
		desc:     desc,
		name:     name,
		mode:     m.mode,
		owner:    m.self,
		template: templateName,
		presets:  presets,
	})
	if err != nil {
		return nil, err
	}
	m.componentCreated(c)
	return c, nil
}

func (m *Manager) sideAllows(desc *ComponentTypeDesc) bool {
	if desc.HasFlag(ClientOnly) && m.mode == common.ModeServer {
		return false
	}
	if desc.HasFlag(ServerOnly) && m.mode == common.ModeClient {
		return false
	}
	return true
}

type componentInit struct {
	desc     *ComponentTypeDesc
	name     string
	mode     common.Mode
	owner    common.PeerID
	origin   common.PeerID
	template string
	presets  []template.PropertyPreset
	snapshot propsync.Transaction
}

// createComponent instantiates and attaches a component without calling OnCreated or emitting ComponentCreated
func (m *Manager) createComponent(o *Object, args componentInit) (*Component, error) {
	if o == nil || o.destroyed {
		return nil, errors.Wrap(common.ErrNotFound, "object")
	}
	desc := args.desc
	name := args.name
	if name == "" {
		name = desc.typeName
	}
	if _, ok := o.components[name]; ok {
		return nil, errors.Wrapf(common.ErrDuplicateName, "%s component %s", o, name)
	}
	if !desc.HasFlag(Multiple) && len(o.ComponentsByType(desc.typeCode)) > 0 {
		return nil, errors.Wrapf(common.ErrDuplicateType, "%s already has a %s component", o, desc.typeName)
	}

	instance := reflect.New(desc.componentType)
	ic := instance.Interface().(IComponent)
	c := instance.Elem().FieldByName("Component").Addr().Interface().(*Component)
	*c = Component{
		I:          ic,
		desc:       desc,
		name:       name,
		object:     o,
		mode:       args.mode,
		owner:      args.owner,
		origin:     args.origin,
		template:   args.template,
		overridden: common.StringSet{},
	}
	c.sync = propsync.Attach(desc.reflected, ic)
	applyPresets(c.sync, args.presets, nil)
	if err := c.sync.Apply(args.snapshot); err != nil {
		return nil, err
	}
	c.sync.Discard()
	c.sync.OnChanged(func(prop string) {
		c.notifyPropertyChanged(prop, m.applyOrigin)
	})

	o.components[name] = c
	o.order = append(o.order, c)
	return c, nil
}

func (m *Manager) componentCreated(c *Component) {
	if consts.DEBUG_OBJECTS {
		gwlog.Debugf("%s: created %s owner=%s networking=%s", m, c, c.owner, c.NetworkingType())
	}
	i := c.I
	m.runHook(c, "OnCreated", i.OnCreated)
	m.emit(Event{Kind: ComponentCreated, Object: c.object, Component: c, Origin: c.origin})
}

// ConstructRemoteObject creates the local replica of an Object received from a peer
func (m *Manager) ConstructRemoteObject(id common.ObjectID, name string, mode common.Mode, owner common.PeerID, origin common.PeerID, templateName string, parent common.ObjectID, snapshot propsync.Transaction) (*Object, error) {
	args := objectInit{
		id:         id,
		name:       name,
		mode:       mode,
		networking: common.Remote,
		owner:      owner,
		origin:     origin,
		template:   templateName,
		parent:     parent,
		snapshot:   snapshot,
	}
	if templateName != "" {
		if tmpl, err := m.loadTemplate(templateName); err == nil {
			args.presets = tmpl.Properties
		} else {
			gwlog.Warnf("%s: load template %s of remote object %s failed: %v", m, templateName, id, err)
		}
	}
	o, err := m.createObject(args)
	if err != nil {
		return nil, err
	}
	m.objectCreated(o)
	return o, nil
}

// ConstructRemoteComponent creates the local replica of a Component received from a peer
func (m *Manager) ConstructRemoteComponent(o *Object, typeCode common.ComponentType, name string, mode common.Mode, owner common.PeerID, origin common.PeerID, templateName string, snapshot propsync.Transaction) (*Component, error) {
	desc, err := m.types.Lookup(typeCode)
	if err != nil {
		return nil, err
	}
	args := componentInit{
		desc:     desc,
		name:     name,
		mode:     mode,
		owner:    owner,
		origin:   origin,
		template: templateName,
		snapshot: snapshot,
	}
	if templateName != "" {
		if tmpl, err := m.loadTemplate(templateName); err == nil {
			if ct := tmpl.Component(name); ct != nil {
				args.presets = ct.Properties
			}
		} else {
			gwlog.Warnf("%s: load template %s of remote component %s failed: %v", m, templateName, name, err)
		}
	}
	c, err := m.createComponent(o, args)
	if err != nil {
		return nil, err
	}
	m.componentCreated(c)
	return c, nil
}

// ApplyTransaction applies a transaction received from origin to an Object, or to one of its
// Components if c is not nil
func (m *Manager) ApplyTransaction(o *Object, c *Component, txn propsync.Transaction, origin common.PeerID) error {
	m.applyOrigin = origin
	defer func() {
		m.applyOrigin = ""
	}()
	if c != nil {
		return c.sync.Apply(txn)
	}
	return o.sync.Apply(txn)
}

// FindObject returns the Object with the ID
func (m *Manager) FindObject(id common.ObjectID) (*Object, error) {
	o := m.objects[id]
	if o == nil {
		return nil, errors.Wrapf(common.ErrNotFound, "object %s", id)
	}
	return o, nil
}

// FindObjectByName returns the Object with the name
func (m *Manager) FindObjectByName(name string) (*Object, error) {
	o := m.byName[name]
	if o == nil {
		return nil, errors.Wrapf(common.ErrNotFound, "object %s", name)
	}
	return o, nil
}

// Objects returns every Object in ID order
func (m *Manager) Objects() []*Object {
	objects := make([]*Object, 0, len(m.objects))
	for _, o := range m.objects {
		objects = append(objects, o)
	}
	sortObjects(objects)
	return objects
}

// Len returns the number of Objects
func (m *Manager) Len() int {
	return len(m.objects)
}

// DestroyObject destroys the Object: children first, then its components in reverse creation
// order, then the Object itself
func (m *Manager) DestroyObject(id common.ObjectID) error {
	return m.DestroyRemoteObject(id, "")
}

// DestroyRemoteObject is DestroyObject for a destruction received from origin
func (m *Manager) DestroyRemoteObject(id common.ObjectID, origin common.PeerID) error {
	o := m.objects[id]
	if o == nil {
		return errors.Wrapf(common.ErrNotFound, "object %s", id)
	}
	m.destroyObject(o, origin)
	return nil
}

func (m *Manager) destroyObject(o *Object, origin common.PeerID) {
	if o.destroyed {
		return
	}
	o.destroyed = true

	for _, child := range o.Children() {
		m.destroyObject(child, origin)
	}
	components := o.Components()
	for i := len(components) - 1; i >= 0; i-- {
		m.destroyComponent(components[i], origin)
	}
	o.sync.Discard()

	delete(m.objects, o.id)
	if o.name != "" && m.byName[o.name] == o {
		delete(m.byName, o.name)
	}
	if parent := m.objects[o.parent]; parent != nil {
		parent.children.Del(o.id)
	}
	if consts.DEBUG_OBJECTS {
		gwlog.Debugf("%s: destroyed %s", m, o)
	}
	m.emit(Event{Kind: ObjectDestroyed, Object: o, Origin: origin})
}

// QueueDestroyObject destroys the Object on the next Tick
func (m *Manager) QueueDestroyObject(id common.ObjectID) {
	m.destroyQueue = append(m.destroyQueue, id)
}

// DestroyComponent destroys one component of the Object
func (m *Manager) DestroyComponent(o *Object, name string) error {
	return m.DestroyRemoteComponent(o, name, "")
}

// DestroyRemoteComponent is DestroyComponent for a destruction received from origin
func (m *Manager) DestroyRemoteComponent(o *Object, name string, origin common.PeerID) error {
	if o == nil || o.destroyed {
		return errors.Wrap(common.ErrNotFound, "object")
	}
	c := o.components[name]
	if c == nil {
		return errors.Wrapf(common.ErrNotFound, "%s component %s", o, name)
	}
	m.destroyComponent(c, origin)
	return nil
}

func (m *Manager) destroyComponent(c *Component, origin common.PeerID) {
	if c.destroyed {
		return
	}
	i := c.I
	m.runHook(c, "OnDestroy", i.OnDestroy)
	c.destroyed = true
	c.sync.Discard()

	o := c.object
	delete(o.components, c.name)
	for idx, oc := range o.order {
		if oc == c {
			o.order = append(o.order[:idx:idx], o.order[idx+1:]...)
			break
		}
	}
	m.emit(Event{Kind: ComponentDestroyed, Object: o, Component: c, Origin: origin})
}

// Tick runs deferred destructions
func (m *Manager) Tick() {
	if len(m.destroyQueue) == 0 {
		return
	}
	queue := m.destroyQueue
	m.destroyQueue = nil
	for _, id := range queue {
		if o := m.objects[id]; o != nil {
			m.destroyObject(o, "")
		}
	}
}

// Reset destroys every Object
func (m *Manager) Reset() {
	for _, o := range m.Objects() {
		if o.parent.IsNil() {
			m.destroyObject(o, "")
		}
	}
	for _, o := range m.Objects() {
		m.destroyObject(o, "")
	}
	m.destroyQueue = nil
}

// applyPresets sets template presets, skipping read-only, unknown and skipped properties
//
// Returns the names of the properties that were set.
func applyPresets(s *propsync.Synchronizer, presets []template.PropertyPreset, skip common.StringSet) []string {
	var names []string
	for _, p := range presets {
		if skip.Contains(p.Name) {
			continue
		}
		d, err := s.Desc().Property(p.Name)
		if err != nil {
			gwlog.Warnf("template: %v", err)
			continue
		}
		if d.ReadOnly() {
			continue
		}
		v, err := d.Coerce(p.Value)
		if err != nil {
			gwlog.Warnf("template: %v", err)
			continue
		}
		if err := s.Set(p.Name, v); err != nil {
			gwlog.Warnf("template: %v", err)
			continue
		}
		names = append(names, p.Name)
	}
	return names
}
