package goreplica

import (
	"github.com/goreplica/goreplica/components/client"
	"github.com/goreplica/goreplica/components/server"
	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/goreplica/goreplica/engine/object"
	"github.com/goreplica/goreplica/engine/plugin"
	"github.com/goreplica/goreplica/engine/reflection"
)

// ServerDelegate is the default server delegate
type ServerDelegate = server.ServerDelegate

// ClientDelegate is the default client delegate
type ClientDelegate = client.ClientDelegate

// RunServer runs a server with the registered component types
//
// This function never returns before the server is terminated
func RunServer(delegate server.IServerDelegate) {
	server.Run(object.DefaultTypes(), delegate)
}

// RunClient runs a client with the registered component types
//
// This function never returns before the client is terminated
func RunClient(delegate client.IClientDelegate) {
	client.Run(object.DefaultTypes(), delegate)
}

// RegisterComponent registers a component type, typeCode must be the same on every peer
func RegisterComponent(typeCode common.ComponentType, typeName string, component object.IComponent) *object.ComponentTypeDesc {
	desc, err := object.RegisterComponent(typeCode, typeName, component)
	if err != nil {
		gwlog.Panicf("register component %s failed: %v", typeName, err)
	}
	return desc
}

// RegisterPlugin registers a plugin type, typ must be the same on every peer
func RegisterPlugin(typ plugin.PluginType, typeName string, prototype plugin.IPlugin) *plugin.TypeDesc {
	desc, err := plugin.DefaultRegistry().Register(typ, typeName, prototype)
	if err != nil {
		gwlog.Panicf("register plugin %s failed: %v", typeName, err)
	}
	return desc
}

// RegisterType registers a plain reflected type
func RegisterType(typeName string, props ...*reflection.PropertyDescriptor) *reflection.TypeDesc {
	desc, err := reflection.Register(typeName, props...)
	if err != nil {
		gwlog.Panicf("register type %s failed: %v", typeName, err)
	}
	return desc
}

// Describe returns the properties of a registered type
func Describe(typeName string) ([]*reflection.PropertyDescriptor, error) {
	return reflection.Describe(typeName)
}

// Get reads a property of a reflected instance
func Get(instance reflection.Reflected, name string) (interface{}, error) {
	return reflection.Get(instance, name)
}

// Set writes a property of a reflected instance
func Set(instance reflection.Reflected, name string, value interface{}) error {
	return reflection.Set(instance, name, value)
}
