package server

import (
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/goreplica/goreplica/engine/node"
)

// IServerDelegate receives server lifecycle callbacks on the tick goroutine
type IServerDelegate interface {
	OnServerReady(n *node.Node)
	OnServerTerminating(n *node.Node)
}

// ServerDelegate is the default IServerDelegate
type ServerDelegate struct {
}

// OnServerReady is called after the server plugins are created and listeners are up
func (gd *ServerDelegate) OnServerReady(n *node.Node) {
	gwlog.Infof("%s is ready.", n)
}

// OnServerTerminating is called before the node closes
func (gd *ServerDelegate) OnServerTerminating(n *node.Node) {
	gwlog.Infof("%s is terminating ...", n)
}
