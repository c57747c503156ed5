// Package plugin hosts client-server plugins: singleton subsystems owned by the server and
// replicated to every client over the replica connections.
//
// A plugin is a reflected struct embedding Plugin. Its synchronized properties are sent in
// the construction snapshot and serialized every tick like Component properties.
package plugin

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/goreplica/goreplica/engine/propsync"
	"github.com/goreplica/goreplica/engine/reflection"
	"github.com/pkg/errors"
)

// PluginType is the stable code of a plugin type on the wire
type PluginType uint8

// Codes of the built-in plugins
const (
	PermissionManagerType PluginType = 0
	ResourceManagerType   PluginType = 1
	ServerNeighborsType   PluginType = 3
	ServerStatsType       PluginType = 7
)

func (t PluginType) String() string {
	return fmt.Sprintf("PluginType(%d)", uint8(t))
}

// IPlugin is implemented by pointers to structs embedding Plugin
type IPlugin interface {
	// DescribePlugin returns the properties of the plugin type, called once at registration
	DescribePlugin() []*reflection.PropertyDescriptor
	// Create seeds the initial state, only called where the plugin was created locally
	Create()
	OnCreated()
	OnTick()
	OnDestroy()
	OnPropertyChanged(name string)

	Type() PluginType
	base() *Plugin
}

// PeerObserver is implemented by plugins interested in peer connections
type PeerObserver interface {
	OnPeerConnected(peer common.PeerID)
	OnPeerDisconnected(peer common.PeerID)
}

var pluginStructType = reflect.TypeOf(Plugin{})

// Plugin is the base of every plugin
type Plugin struct {
	I         IPlugin
	desc      *TypeDesc
	manager   *Manager
	authority bool
	origin    common.PeerID
	sync      *propsync.Synchronizer
	destroyed bool
}

func (p *Plugin) base() *Plugin {
	return p
}

func (p *Plugin) String() string {
	if p.desc == nil {
		return "Plugin<nil>"
	}
	return fmt.Sprintf("%s<%d>", p.desc.name, p.desc.typ)
}

// Type returns the plugin type code
func (p *Plugin) Type() PluginType {
	return p.desc.typ
}

// TypeName returns the plugin type name
func (p *Plugin) TypeName() string {
	return p.desc.name
}

// Manager returns the plugin manager
func (p *Plugin) Manager() *Manager {
	return p.manager
}

// IsAuthority returns if the plugin was created on this peer
func (p *Plugin) IsAuthority() bool {
	return p.authority
}

// Origin returns the peer the plugin was constructed by, empty on the authority
func (p *Plugin) Origin() common.PeerID {
	return p.origin
}

// IsDestroyed returns if the plugin is destroyed
func (p *Plugin) IsDestroyed() bool {
	return p.destroyed
}

// Synchronizer returns the change tracker of the plugin
func (p *Plugin) Synchronizer() *propsync.Synchronizer {
	return p.sync
}

// Get reads a property
func (p *Plugin) Get(name string) (interface{}, error) {
	return p.sync.Get(name)
}

// Set writes a property; synchronized properties are sent to clients on the next tick
func (p *Plugin) Set(name string, value interface{}) error {
	if p.destroyed {
		return errors.Wrapf(common.ErrNotFound, "%s destroyed", p)
	}
	if err := p.sync.Set(name, value); err != nil {
		return err
	}
	i := p.I
	p.manager.runHook(p, "OnPropertyChanged", func() {
		i.OnPropertyChanged(name)
	})
	return nil
}

// DescribePlugin is overridden by plugins with properties
func (p *Plugin) DescribePlugin() []*reflection.PropertyDescriptor {
	return nil
}

// Create is overridden by plugins with initial state
func (p *Plugin) Create() {
}

// OnCreated is called after the plugin is created, on the authority and on replicas
func (p *Plugin) OnCreated() {
}

// OnTick is called every tick
func (p *Plugin) OnTick() {
}

// OnDestroy is called before the plugin is removed
func (p *Plugin) OnDestroy() {
}

// OnPropertyChanged is called after a property was set or received
func (p *Plugin) OnPropertyChanged(name string) {
}

// TypeDesc describes a registered plugin type
type TypeDesc struct {
	typ        PluginType
	name       string
	pluginType reflect.Type
	reflected  *reflection.TypeDesc
}

// Type returns the plugin type code
func (desc *TypeDesc) Type() PluginType {
	return desc.typ
}

// Name returns the plugin type name
func (desc *TypeDesc) Name() string {
	return desc.name
}

// Reflected returns the reflected type of the plugin
func (desc *TypeDesc) Reflected() *reflection.TypeDesc {
	return desc.reflected
}

// Registry holds the plugin types a peer can instantiate
type Registry struct {
	sync.RWMutex
	reflection *reflection.Registry
	byType     map[PluginType]*TypeDesc
}

// NewRegistry creates a registry holding the built-in plugin types
func NewRegistry() *Registry {
	r := &Registry{
		reflection: reflection.NewRegistry(),
		byType:     map[PluginType]*TypeDesc{},
	}
	r.mustRegister(PermissionManagerType, "PermissionManager", &PermissionManager{})
	r.mustRegister(ResourceManagerType, "ResourceManager", &ResourceManager{})
	r.mustRegister(ServerNeighborsType, "ServerNeighbors", &ServerNeighbors{})
	r.mustRegister(ServerStatsType, "ServerStats", &ServerStats{})
	return r
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process wide plugin registry
func DefaultRegistry() *Registry {
	return defaultRegistry
}

func (r *Registry) mustRegister(typ PluginType, name string, prototype IPlugin) {
	if _, err := r.Register(typ, name, prototype); err != nil {
		gwlog.Panicf("register plugin %s failed: %v", name, err)
	}
}

// Register registers a plugin type; prototype must be a pointer to a struct embedding Plugin
func (r *Registry) Register(typ PluginType, name string, prototype IPlugin) (*TypeDesc, error) {
	r.Lock()
	defer r.Unlock()

	if ex, ok := r.byType[typ]; ok {
		return nil, errors.Wrapf(common.ErrDuplicateType, "plugin type %d already used by %s", typ, ex.name)
	}
	pluginType := reflect.TypeOf(prototype)
	if pluginType.Kind() == reflect.Ptr {
		pluginType = pluginType.Elem()
	}
	if f, ok := pluginType.FieldByName("Plugin"); !ok || f.Type != pluginStructType {
		return nil, errors.Errorf("plugin %s: %s must embed plugin.Plugin", name, pluginType)
	}
	reflected, err := r.reflection.Register(name, prototype.DescribePlugin()...)
	if err != nil {
		return nil, err
	}
	desc := &TypeDesc{typ: typ, name: name, pluginType: pluginType, reflected: reflected}
	r.byType[typ] = desc
	gwlog.Infof(">>> RegisterPlugin %s => %s <<<", name, pluginType.Name())
	return desc, nil
}

// Lookup returns a plugin type by code
func (r *Registry) Lookup(typ PluginType) (*TypeDesc, error) {
	r.RLock()
	defer r.RUnlock()
	desc := r.byType[typ]
	if desc == nil {
		return nil, errors.Wrapf(common.ErrUnknownType, "plugin type %d", typ)
	}
	return desc, nil
}

// Types returns the registered plugin types in code order
func (r *Registry) Types() []*TypeDesc {
	r.RLock()
	defer r.RUnlock()
	descs := make([]*TypeDesc, 0, len(r.byType))
	for _, desc := range r.byType {
		descs = append(descs, desc)
	}
	sort.Slice(descs, func(i, j int) bool {
		return descs[i].typ < descs[j].typ
	})
	return descs
}

func (desc *TypeDesc) instantiate() IPlugin {
	v := reflect.New(desc.pluginType)
	i := v.Interface().(IPlugin)
	p := v.Elem().FieldByName("Plugin").Addr().Interface().(*Plugin)
	p.I = i
	p.desc = desc
	return i
}
