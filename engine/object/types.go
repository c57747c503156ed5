package object

import (
	"reflect"
	"sort"
	"sync"

	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/goreplica/goreplica/engine/reflection"
	"github.com/pkg/errors"
)

// ComponentFlag changes how components of a type are created and replicated
type ComponentFlag uint8

const (
	// Multiple allows more than one component of the type per Object
	Multiple ComponentFlag = 1 << iota
	// ClientOnly components only exist on clients and are never replicated
	ClientOnly
	// ServerOnly components only exist on servers and are never replicated
	ServerOnly
	// CanDestroy allows destroying the component on its own, without its Object
	CanDestroy
)

// ObjectTypeName is the reflected type name of Objects
const ObjectTypeName = "Object"

// ComponentTypeDesc describes a registered Component type
type ComponentTypeDesc struct {
	typeCode      common.ComponentType
	typeName      string
	flags         ComponentFlag
	componentType reflect.Type
	props         []*reflection.PropertyDescriptor
	reflected     *reflection.TypeDesc
}

// TypeCode returns the stable numeric type code
func (desc *ComponentTypeDesc) TypeCode() common.ComponentType {
	return desc.typeCode
}

// TypeName returns the type name
func (desc *ComponentTypeDesc) TypeName() string {
	return desc.typeName
}

// Flags returns the type flags
func (desc *ComponentTypeDesc) Flags() ComponentFlag {
	return desc.flags
}

// HasFlag returns if the flag is set
func (desc *ComponentTypeDesc) HasFlag(flag ComponentFlag) bool {
	return desc.flags&flag != 0
}

// Reflected returns the reflected type of the component
func (desc *ComponentTypeDesc) Reflected() *reflection.TypeDesc {
	return desc.reflected
}

// SetFlags sets the type flags, called from DescribeComponentType
func (desc *ComponentTypeDesc) SetFlags(flags ComponentFlag) *ComponentTypeDesc {
	if flags&ClientOnly != 0 && flags&ServerOnly != 0 {
		gwlog.Panicf("component type %s can not be both client only and server only", desc.typeName)
	}
	desc.flags = flags
	return desc
}

// DefineProperty adds a property, called from DescribeComponentType
//
// The getter and setter receive the component instance (a pointer to the custom component struct).
func (desc *ComponentTypeDesc) DefineProperty(prop *reflection.PropertyDescriptor) *ComponentTypeDesc {
	if desc.reflected != nil {
		gwlog.Panicf("component type %s: DefineProperty after registration", desc.typeName)
	}
	gwlog.Debugf("        Property %s.%s", desc.typeName, prop)
	desc.props = append(desc.props, prop)
	return desc
}

func (desc *ComponentTypeDesc) String() string {
	return desc.typeName + "<" + desc.typeCode.String() + ">"
}

// TypeRegistry holds the registered Component types and the reflected Object type
type TypeRegistry struct {
	sync.RWMutex
	reflection *reflection.Registry
	byCode     map[common.ComponentType]*ComponentTypeDesc
	byName     map[string]*ComponentTypeDesc
	objectType *reflection.TypeDesc
}

// NewTypeRegistry creates a registry with its own reflection registry
func NewTypeRegistry() *TypeRegistry {
	return newTypeRegistry(reflection.NewRegistry())
}

func newTypeRegistry(reflectionRegistry *reflection.Registry) *TypeRegistry {
	tr := &TypeRegistry{
		reflection: reflectionRegistry,
		byCode:     map[common.ComponentType]*ComponentTypeDesc{},
		byName:     map[string]*ComponentTypeDesc{},
	}
	objectType, err := reflectionRegistry.Register(ObjectTypeName, objectProperties()...)
	if err != nil {
		gwlog.Panicf("register %s type failed: %v", ObjectTypeName, err)
	}
	tr.objectType = objectType
	return tr
}

var defaultTypes = newTypeRegistry(reflection.Default())

// DefaultTypes returns the process wide type registry
func DefaultTypes() *TypeRegistry {
	return defaultTypes
}

// RegisterComponent registers a custom component type in the default registry
func RegisterComponent(typeCode common.ComponentType, typeName string, component IComponent) (*ComponentTypeDesc, error) {
	return defaultTypes.RegisterComponent(typeCode, typeName, component)
}

// RegisterComponent registers a custom component type
//
// component must be a pointer to a struct embedding Component. Its DescribeComponentType
// is called once to define properties and flags. Registering a type code or type name
// twice fails with common.ErrDuplicateType.
func (tr *TypeRegistry) RegisterComponent(typeCode common.ComponentType, typeName string, component IComponent) (*ComponentTypeDesc, error) {
	tr.Lock()
	defer tr.Unlock()

	if ex, ok := tr.byCode[typeCode]; ok {
		return nil, errors.Wrapf(common.ErrDuplicateType, "type code %s already used by %s", typeCode, ex.typeName)
	}
	if _, ok := tr.byName[typeName]; ok {
		return nil, errors.Wrapf(common.ErrDuplicateType, "component type %s", typeName)
	}

	componentType := reflect.TypeOf(component)
	if componentType.Kind() == reflect.Ptr {
		componentType = componentType.Elem()
	}
	if componentType.Kind() != reflect.Struct {
		return nil, errors.Errorf("component type %s: %s is not a struct", typeName, componentType)
	}
	if f, ok := componentType.FieldByName("Component"); !ok || f.Type != componentStructType {
		return nil, errors.Errorf("component type %s: %s must embed object.Component", typeName, componentType)
	}

	desc := &ComponentTypeDesc{
		typeCode:      typeCode,
		typeName:      typeName,
		componentType: componentType,
	}
	component.DescribeComponentType(desc)

	reflected, err := tr.reflection.Register(typeName, desc.props...)
	if err != nil {
		return nil, err
	}
	desc.reflected = reflected

	tr.byCode[typeCode] = desc
	tr.byName[typeName] = desc
	gwlog.Infof(">>> RegisterComponent %s => %s <<<", desc, componentType.Name())
	return desc, nil
}

// Lookup returns a component type by code
func (tr *TypeRegistry) Lookup(typeCode common.ComponentType) (*ComponentTypeDesc, error) {
	tr.RLock()
	defer tr.RUnlock()
	desc, ok := tr.byCode[typeCode]
	if !ok {
		return nil, errors.Wrapf(common.ErrUnknownType, "component type code %s", typeCode)
	}
	return desc, nil
}

// LookupByName returns a component type by name
func (tr *TypeRegistry) LookupByName(typeName string) (*ComponentTypeDesc, error) {
	tr.RLock()
	defer tr.RUnlock()
	desc, ok := tr.byName[typeName]
	if !ok {
		return nil, errors.Wrapf(common.ErrUnknownType, "component type %s", typeName)
	}
	return desc, nil
}

// ComponentTypes returns all registered component types ordered by type code
func (tr *TypeRegistry) ComponentTypes() []*ComponentTypeDesc {
	tr.RLock()
	defer tr.RUnlock()
	descs := make([]*ComponentTypeDesc, 0, len(tr.byCode))
	for _, desc := range tr.byCode {
		descs = append(descs, desc)
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].typeCode < descs[j].typeCode })
	return descs
}

// ObjectType returns the reflected Object type
func (tr *TypeRegistry) ObjectType() *reflection.TypeDesc {
	return tr.objectType
}

// Fingerprints returns the schema fingerprints of all reflected types
func (tr *TypeRegistry) Fingerprints() map[string]uint64 {
	return tr.reflection.Fingerprints()
}

// Reflection returns the reflection registry holding the component types
func (tr *TypeRegistry) Reflection() *reflection.Registry {
	return tr.reflection
}

func objectProperties() []*reflection.PropertyDescriptor {
	return []*reflection.PropertyDescriptor{
		reflection.NewProperty("Name", reflection.KindString,
			func(o interface{}) interface{} { return o.(*Object).name },
			nil,
		),
		reflection.NewProperty("Active", reflection.KindBool,
			func(o interface{}) interface{} { return o.(*Object).active },
			func(o interface{}, v interface{}) { o.(*Object).active = v.(bool) },
		).MarkSynced(),
	}
}
