package plugin

import (
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/goreplica/goreplica/engine/reflection"
)

// Kinds of resource locations
const (
	ResourceHTTP  = "http"
	ResourceFTP   = "ftp"
	ResourceLocal = "local"
)

var resourceTypeNames = []string{ResourceHTTP, ResourceFTP, ResourceLocal}

// ResourceManager tells clients where to fetch resources from
type ResourceManager struct {
	Plugin

	ResourceLocation string
	ResourceType     int64
}

// DescribePlugin returns the properties of ResourceManager
func (rm *ResourceManager) DescribePlugin() []*reflection.PropertyDescriptor {
	return []*reflection.PropertyDescriptor{
		reflection.NewProperty("ResourceLocation", reflection.KindString,
			func(o interface{}) interface{} { return o.(*ResourceManager).ResourceLocation },
			func(o interface{}, v interface{}) { o.(*ResourceManager).ResourceLocation = v.(string) }).MarkSynced(),
		reflection.NewProperty("ResourceType", reflection.KindEnum,
			func(o interface{}) interface{} { return o.(*ResourceManager).ResourceType },
			func(o interface{}, v interface{}) { o.(*ResourceManager).ResourceType = v.(int64) }).
			WithEnum(resourceTypeNames...).MarkSynced(),
	}
}

// Create seeds the location from the [plugins] config
func (rm *ResourceManager) Create() {
	cfg := rm.Manager().Config().Plugins
	if cfg.ResourceLocation == "" {
		return
	}
	typ := cfg.ResourceType
	if typ == "" {
		typ = ResourceLocal
	}
	if err := rm.SetLocation(cfg.ResourceLocation, typ); err != nil {
		gwlog.Errorf("%s: invalid resource config: %v", rm, err)
	}
}

// SetLocation changes the resource location, typ is one of http, ftp or local
func (rm *ResourceManager) SetLocation(location string, typ string) error {
	if err := rm.Set("ResourceType", typ); err != nil {
		return err
	}
	return rm.Set("ResourceLocation", location)
}

// Location returns the resource location and its type name
func (rm *ResourceManager) Location() (string, string) {
	return rm.ResourceLocation, resourceTypeNames[rm.ResourceType]
}
