package plugin

import (
	"fmt"
	"sort"
	"time"

	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/config"
	"github.com/goreplica/goreplica/engine/consts"
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/goreplica/goreplica/engine/gwutils"
	"github.com/goreplica/goreplica/engine/opmon"
	"github.com/goreplica/goreplica/engine/propsync"
	"github.com/goreplica/goreplica/engine/proto"
	"github.com/goreplica/goreplica/engine/replica"
	"github.com/pkg/errors"
)

// Config configures a Manager
type Config struct {
	Mode       common.Mode
	Registry   *Registry
	Replica    *replica.Manager // nil when offline
	Permission config.PermissionConfig
	Plugins    config.PluginsConfig
	Neighbors  map[string]string
}

// Manager hosts the plugins of one peer
//
// Plugins created on a server are constructed on every connected client and their changes are
// serialized each tick. Clients instantiate plugins from the registry when the server
// constructs them.
type Manager struct {
	config   Config
	registry *Registry
	replica  *replica.Manager
	plugins  map[PluginType]IPlugin
}

// NewManager creates a plugin manager and attaches it to the replica manager
func NewManager(cfg Config) *Manager {
	if cfg.Registry == nil {
		cfg.Registry = DefaultRegistry()
	}
	m := &Manager{
		config:   cfg,
		registry: cfg.Registry,
		replica:  cfg.Replica,
		plugins:  map[PluginType]IPlugin{},
	}
	if m.replica != nil {
		m.replica.AddPeerListener(m)
	}
	return m
}

func (m *Manager) String() string {
	return fmt.Sprintf("PluginManager<%s>", m.config.Mode)
}

// Mode returns the mode of the peer
func (m *Manager) Mode() common.Mode {
	return m.config.Mode
}

// Config returns the configuration plugins are seeded from
func (m *Manager) Config() *Config {
	return &m.config
}

// Replica returns the replica manager, nil when offline
func (m *Manager) Replica() *replica.Manager {
	return m.replica
}

// Plugin returns the plugin of the type, or nil
func (m *Manager) Plugin(typ PluginType) IPlugin {
	return m.plugins[typ]
}

// Plugins returns every plugin in type order
func (m *Manager) Plugins() []IPlugin {
	types := make([]int, 0, len(m.plugins))
	for typ := range m.plugins {
		types = append(types, int(typ))
	}
	sort.Ints(types)
	plugins := make([]IPlugin, len(types))
	for i, typ := range types {
		plugins[i] = m.plugins[PluginType(typ)]
	}
	return plugins
}

func (m *Manager) runHook(p *Plugin, hook string, f func()) {
	if gwutils.RunPanicless(f) {
		gwlog.Errorf("%s: %s.%s paniced", m, p, hook)
	}
}

// CreatePlugin creates a plugin owned by this peer
//
// On a server the plugin is constructed on every connected client.
func (m *Manager) CreatePlugin(typ PluginType) (IPlugin, error) {
	if m.plugins[typ] != nil {
		return nil, errors.Wrapf(common.ErrDuplicateType, "plugin %d exists", typ)
	}
	desc, err := m.registry.Lookup(typ)
	if err != nil {
		return nil, err
	}
	i := m.instantiate(desc, true, "", propsync.Transaction{})
	p := i.base()
	m.runHook(p, "Create", i.Create)
	m.created(i)

	if m.broadcasts() {
		for _, conn := range m.replica.Connections() {
			m.sendConstruct(conn, i)
		}
	}
	return i, nil
}

// DestroyPlugin destroys a plugin; plugins owned by a server are destroyed on the clients too
func (m *Manager) DestroyPlugin(typ PluginType) error {
	i := m.plugins[typ]
	if i == nil {
		return errors.Wrapf(common.ErrNotFound, "plugin %d", typ)
	}
	m.destroy(i)
	if i.base().authority && m.broadcasts() {
		for _, conn := range m.replica.Connections() {
			if err := conn.SendMessage(&proto.PluginDestroy{PluginType: uint8(typ)}); err != nil {
				gwlog.Warnf("%s: destroy %s on %s failed: %v", m, i.base(), conn.Peer(), err)
			}
		}
	}
	return nil
}

// broadcasts returns if locally created plugins are replicated to peers
func (m *Manager) broadcasts() bool {
	return m.replica != nil && m.config.Mode == common.ModeServer
}

func (m *Manager) instantiate(desc *TypeDesc, authority bool, origin common.PeerID, snapshot propsync.Transaction) IPlugin {
	i := desc.instantiate()
	p := i.base()
	p.manager = m
	p.authority = authority
	p.origin = origin
	p.sync = propsync.Attach(desc.reflected, i)
	if err := p.sync.Apply(snapshot); err != nil {
		gwlog.Warnf("%s: apply construction of %s failed: %v", m, p, err)
	}
	p.sync.Discard()
	p.sync.OnChanged(func(name string) {
		m.runHook(p, "OnPropertyChanged", func() {
			i.OnPropertyChanged(name)
		})
	})
	m.plugins[desc.typ] = i
	return i
}

func (m *Manager) created(i IPlugin) {
	p := i.base()
	m.runHook(p, "OnCreated", i.OnCreated)
	if a, ok := i.(replica.Authorizer); ok && p.authority && m.replica != nil {
		m.replica.SetAuthorizer(a)
	}
	if consts.DEBUG_PLUGINS {
		gwlog.Debugf("%s: created %s authority=%v", m, p, p.authority)
	}
}

func (m *Manager) destroy(i IPlugin) {
	p := i.base()
	m.runHook(p, "OnDestroy", i.OnDestroy)
	p.destroyed = true
	p.sync.Discard()
	delete(m.plugins, p.desc.typ)
	if _, ok := i.(replica.Authorizer); ok && p.authority && m.replica != nil {
		m.replica.SetAuthorizer(nil)
	}
	if consts.DEBUG_PLUGINS {
		gwlog.Debugf("%s: destroyed %s", m, p)
	}
}

func (m *Manager) sendConstruct(conn *replica.Connection, i IPlugin) {
	p := i.base()
	err := conn.SendMessage(&proto.PluginConstruct{
		PluginType: uint8(p.desc.typ),
		Properties: p.sync.Snapshot(),
	})
	if err != nil {
		gwlog.Warnf("%s: construct %s on %s failed: %v", m, p, conn.Peer(), err)
	}
}

// OnTick ticks every plugin, then serializes the changes of owned plugins
func (m *Manager) OnTick() {
	monop := opmon.StartOperation("plugin.tick")
	defer monop.Finish(time.Millisecond * 50)

	plugins := m.Plugins()
	for _, i := range plugins {
		m.runHook(i.base(), "OnTick", i.OnTick)
	}

	var conns []*replica.Connection
	if m.broadcasts() {
		conns = m.replica.Connections()
	}
	for _, i := range plugins {
		p := i.base()
		if p.destroyed || !p.sync.IsDirty() {
			continue
		}
		if !p.authority || conns == nil {
			p.sync.Discard()
			continue
		}
		txn := p.sync.Flush()
		for _, conn := range conns {
			if err := conn.SendMessage(&proto.PluginSerialize{PluginType: uint8(p.desc.typ), Transaction: txn}); err != nil {
				gwlog.Warnf("%s: serialize %s to %s failed: %v", m, p, conn.Peer(), err)
			}
		}
	}
}

// OnPeerConnected constructs the owned plugins on the peer
func (m *Manager) OnPeerConnected(conn *replica.Connection) {
	if m.broadcasts() {
		for _, i := range m.Plugins() {
			if i.base().authority {
				m.sendConstruct(conn, i)
			}
		}
	}
	for _, i := range m.Plugins() {
		if po, ok := i.(PeerObserver); ok {
			po.OnPeerConnected(conn.Peer())
		}
	}
}

// OnPeerDisconnected destroys the plugins constructed by the peer
func (m *Manager) OnPeerDisconnected(conn *replica.Connection) {
	for _, i := range m.Plugins() {
		if i.base().origin == conn.Peer() {
			m.destroy(i)
		}
	}
	for _, i := range m.Plugins() {
		if po, ok := i.(PeerObserver); ok {
			po.OnPeerDisconnected(conn.Peer())
		}
	}
}

// OnPluginMessage handles plugin messages; only servers may send them
func (m *Manager) OnPluginMessage(conn *replica.Connection, msgtype proto.MsgType, msg interface{}) {
	if !conn.IsServer() {
		gwlog.Warnf("%s: %s from client %s dropped", m, msgtype, conn.Peer())
		return
	}
	switch msg := msg.(type) {
	case *proto.PluginConstruct:
		typ := PluginType(msg.PluginType)
		if ex := m.plugins[typ]; ex != nil {
			if consts.DEBUG_PLUGINS {
				gwlog.Debugf("%s: duplicate construct of %s from %s", m, ex.base(), conn.Peer())
			}
			return
		}
		desc, err := m.registry.Lookup(typ)
		if err != nil {
			gwlog.Warnf("%s: construct from %s: %v", m, conn.Peer(), err)
			return
		}
		m.created(m.instantiate(desc, false, conn.Peer(), msg.Properties))
	case *proto.PluginSerialize:
		i := m.plugins[PluginType(msg.PluginType)]
		if i == nil || i.base().authority {
			gwlog.Warnf("%s: serialize of plugin %d from %s dropped", m, msg.PluginType, conn.Peer())
			return
		}
		if err := i.base().sync.Apply(msg.Transaction); err != nil {
			gwlog.Warnf("%s: apply %s from %s failed: %v", m, i.base(), conn.Peer(), err)
		}
	case *proto.PluginDestroy:
		i := m.plugins[PluginType(msg.PluginType)]
		if i == nil || i.base().authority {
			return
		}
		m.destroy(i)
	default:
		gwlog.Warnf("%s: unexpected %s from %s", m, msgtype, conn.Peer())
	}
}
