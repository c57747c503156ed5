// Package node wires the object manager, the replica manager and the plugins of one peer to a
// tick loop.
package node

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/config"
	"github.com/goreplica/goreplica/engine/consts"
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/goreplica/goreplica/engine/object"
	"github.com/goreplica/goreplica/engine/opmon"
	"github.com/goreplica/goreplica/engine/plugin"
	"github.com/goreplica/goreplica/engine/replica"
	"github.com/goreplica/goreplica/engine/tick"
	"github.com/goreplica/goreplica/engine/transport"
	"github.com/pkg/errors"
	"github.com/xiaonanln/goTimer"
)

// Config configures a Node
type Config struct {
	Self         common.PeerID
	Mode         common.Mode
	Types        *object.TypeRegistry
	Templates    object.TemplateSource
	Transport    transport.Transport // nil runs the node offline
	TickInterval time.Duration

	Replica    config.ReplicaConfig
	Permission config.PermissionConfig
	Plugins    config.PluginsConfig
	Neighbors  map[string]string
	Registry   *plugin.Registry

	// ServerPlugins are created when a server node starts
	ServerPlugins []plugin.PluginType

	// OpMonDumpInterval > 0 dumps the operation monitor to OpMonOutput (gwlog output if nil)
	OpMonDumpInterval time.Duration
	OpMonOutput       io.Writer
}

// Node is one peer: its objects, its connections and its plugins
type Node struct {
	config    Config
	objects   *object.Manager
	replica   *replica.Manager
	plugins   *plugin.Manager
	transport transport.Transport
	loop      *tick.Loop
	dumpTimer *timer.Timer
}

// New creates a node; nothing runs until Start or Run
func New(cfg Config) *Node {
	n := &Node{
		config:    cfg,
		transport: cfg.Transport,
		loop:      tick.NewLoop(cfg.TickInterval),
	}
	n.objects = object.NewManager(object.Config{
		Self:      cfg.Self,
		Mode:      cfg.Mode,
		Offline:   cfg.Transport == nil,
		Types:     cfg.Types,
		Templates: cfg.Templates,
	})
	if n.transport != nil {
		n.replica = replica.NewManager(replica.Config{
			Objects:                 n.objects,
			Transport:               n.transport,
			PendingSerializeTimeout: cfg.Replica.PendingSerializeTimeout,
			MaxPendingSerialize:     cfg.Replica.MaxPendingSerialize,
		})
		n.loop.AddDispatcher(n.transport)
	}
	n.plugins = plugin.NewManager(plugin.Config{
		Mode:       cfg.Mode,
		Registry:   cfg.Registry,
		Replica:    n.replica,
		Permission: cfg.Permission,
		Plugins:    cfg.Plugins,
		Neighbors:  cfg.Neighbors,
	})

	n.loop.Subscribe(consts.TICK_PRIORITY_OBJECTS, n.objects.Tick)
	n.loop.Subscribe(consts.TICK_PRIORITY_PLUGINS, n.plugins.OnTick)
	if n.replica != nil {
		n.loop.Subscribe(consts.TICK_PRIORITY_REPLICA, n.replica.OnTick)
	}
	return n
}

func (n *Node) String() string {
	return fmt.Sprintf("Node<%s|%s>", n.config.Mode, n.objects.Self())
}

// Self returns the peer ID of the node
func (n *Node) Self() common.PeerID {
	return n.objects.Self()
}

// Objects returns the object manager
func (n *Node) Objects() *object.Manager {
	return n.objects
}

// Replica returns the replica manager, nil when offline
func (n *Node) Replica() *replica.Manager {
	return n.replica
}

// Plugins returns the plugin manager
func (n *Node) Plugins() *plugin.Manager {
	return n.plugins
}

// Loop returns the tick loop
func (n *Node) Loop() *tick.Loop {
	return n.loop
}

// Start creates the server plugins; it must be called before the loop runs
func (n *Node) Start() error {
	if n.config.OpMonDumpInterval > 0 && n.dumpTimer == nil {
		n.dumpTimer = timer.AddTimer(n.config.OpMonDumpInterval, n.dumpOpMon)
	}
	if n.config.Mode != common.ModeServer {
		return nil
	}
	for _, typ := range n.config.ServerPlugins {
		if _, err := n.plugins.CreatePlugin(typ); err != nil {
			return errors.Wrapf(err, "create plugin %d", typ)
		}
	}
	return nil
}

// Run ticks the node until ctx is done, then closes it
func (n *Node) Run(ctx context.Context) {
	gwlog.Infof("%s running", n)
	n.loop.Run(ctx)
	n.Close()
}

func (n *Node) dumpOpMon() {
	out := n.config.OpMonOutput
	if out == nil {
		out = gwlog.GetOutput()
	}
	opmon.Dump(out)
}

// Close destroys the plugins and detaches the node from its transport
func (n *Node) Close() {
	if n.dumpTimer != nil {
		n.dumpTimer.Cancel()
		n.dumpTimer = nil
	}
	for _, p := range n.plugins.Plugins() {
		n.plugins.DestroyPlugin(p.Type())
	}
	if n.replica != nil {
		n.replica.Close()
	}
	if n.transport != nil {
		if err := n.transport.Close(); err != nil {
			gwlog.Warnf("%s: close transport failed: %v", n, err)
		}
	}
	gwlog.Infof("%s closed", n)
}
