package reflection

import (
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/goreplica/goreplica/engine/common"
	"github.com/pkg/errors"
)

// Reflected is implemented by every instance whose properties are described by a registered type
type Reflected interface {
	ReflectTypeName() string
}

// TypeDesc is the ordered property set of one registered type
type TypeDesc struct {
	name        string
	props       []*PropertyDescriptor
	byName      map[string]*PropertyDescriptor
	fingerprint uint64
}

// Name returns the type name
func (td *TypeDesc) Name() string {
	return td.name
}

// Properties returns the property descriptors in registration order
func (td *TypeDesc) Properties() []*PropertyDescriptor {
	return append([]*PropertyDescriptor(nil), td.props...)
}

// SyncedProperties returns the synchronized property descriptors in registration order
func (td *TypeDesc) SyncedProperties() []*PropertyDescriptor {
	var res []*PropertyDescriptor
	for _, d := range td.props {
		if d.Synced() {
			res = append(res, d)
		}
	}
	return res
}

// Property returns the descriptor of a property
func (td *TypeDesc) Property(name string) (*PropertyDescriptor, error) {
	d := td.byName[name]
	if d == nil {
		return nil, errors.Wrapf(common.ErrUnknownProperty, "%s.%s", td.name, name)
	}
	return d, nil
}

// HasProperty checks if the type describes the property
func (td *TypeDesc) HasProperty(name string) bool {
	_, ok := td.byName[name]
	return ok
}

// Fingerprint is a hash over property names and kinds, equal across builds with the same schema
func (td *TypeDesc) Fingerprint() uint64 {
	return td.fingerprint
}

// Get reads a property of instance
func (td *TypeDesc) Get(instance interface{}, name string) (interface{}, error) {
	d, err := td.Property(name)
	if err != nil {
		return nil, err
	}
	return d.get(instance), nil
}

// Set validates value and writes it to instance. The instance is not changed on error.
func (td *TypeDesc) Set(instance interface{}, name string, value interface{}) error {
	d, err := td.Property(name)
	if err != nil {
		return err
	}
	return td.SetProperty(instance, d, value)
}

// SetProperty is Set with an already resolved descriptor
func (td *TypeDesc) SetProperty(instance interface{}, d *PropertyDescriptor, value interface{}) error {
	if d.readOnly {
		return errors.Wrapf(common.ErrReadOnly, "%s.%s", td.name, d.name)
	}
	v, err := d.Validate(value)
	if err != nil {
		return err
	}
	d.set(instance, v)
	return nil
}

// SetValidated writes a value that already passed Validate, skipping the read-only check
//
// Used when applying values that come from the authority of the instance.
func (td *TypeDesc) SetValidated(instance interface{}, d *PropertyDescriptor, value interface{}) {
	if d.set != nil {
		d.set(instance, value)
	}
}

// Registry maps type names to their property descriptors
type Registry struct {
	sync.RWMutex
	types map[string]*TypeDesc
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		types: map[string]*TypeDesc{},
	}
}

// Register registers a type with its properties. Registering a type name twice fails with ErrDuplicateType.
func (r *Registry) Register(typeName string, props ...*PropertyDescriptor) (*TypeDesc, error) {
	td := &TypeDesc{
		name:   typeName,
		byName: make(map[string]*PropertyDescriptor, len(props)),
	}

	var fp strings.Builder
	fp.WriteString(typeName)
	for _, d := range props {
		if err := d.check(); err != nil {
			return nil, errors.Wrapf(err, "register %s", typeName)
		}
		if _, ok := td.byName[d.name]; ok {
			return nil, errors.Wrapf(common.ErrDuplicateName, "register %s: property %s", typeName, d.name)
		}
		td.byName[d.name] = d
		td.props = append(td.props, d)
		fp.WriteByte('|')
		fp.WriteString(d.name)
		fp.WriteByte(':')
		fp.WriteString(d.kind.String())
	}
	td.fingerprint = xxhash.Sum64String(fp.String())

	r.Lock()
	defer r.Unlock()
	if _, ok := r.types[typeName]; ok {
		return nil, errors.Wrapf(common.ErrDuplicateType, "%s", typeName)
	}
	for _, d := range props {
		d.sealed = true
	}
	r.types[typeName] = td
	return td, nil
}

// Lookup returns the TypeDesc of a registered type
func (r *Registry) Lookup(typeName string) (*TypeDesc, error) {
	r.RLock()
	td := r.types[typeName]
	r.RUnlock()
	if td == nil {
		return nil, errors.Wrapf(common.ErrUnknownType, "%s", typeName)
	}
	return td, nil
}

// Describe returns the ordered property descriptors of a type
func (r *Registry) Describe(typeName string) ([]*PropertyDescriptor, error) {
	td, err := r.Lookup(typeName)
	if err != nil {
		return nil, err
	}
	return td.Properties(), nil
}

// Get reads a property of a reflected instance
func (r *Registry) Get(instance Reflected, name string) (interface{}, error) {
	td, err := r.Lookup(instance.ReflectTypeName())
	if err != nil {
		return nil, err
	}
	return td.Get(instance, name)
}

// Set writes a property of a reflected instance
func (r *Registry) Set(instance Reflected, name string, value interface{}) error {
	td, err := r.Lookup(instance.ReflectTypeName())
	if err != nil {
		return err
	}
	return td.Set(instance, name, value)
}

// Types returns all registered type names, sorted
func (r *Registry) Types() []string {
	r.RLock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	r.RUnlock()
	sort.Strings(names)
	return names
}

// Fingerprints returns the fingerprint of every registered type
func (r *Registry) Fingerprints() map[string]uint64 {
	r.RLock()
	defer r.RUnlock()
	res := make(map[string]uint64, len(r.types))
	for name, td := range r.types {
		res[name] = td.fingerprint
	}
	return res
}

var defaultRegistry = NewRegistry()

// Default returns the process wide registry
func Default() *Registry {
	return defaultRegistry
}

// Register registers a type in the default registry
func Register(typeName string, props ...*PropertyDescriptor) (*TypeDesc, error) {
	return defaultRegistry.Register(typeName, props...)
}

// Lookup finds a type in the default registry
func Lookup(typeName string) (*TypeDesc, error) {
	return defaultRegistry.Lookup(typeName)
}

// Describe describes a type of the default registry
func Describe(typeName string) ([]*PropertyDescriptor, error) {
	return defaultRegistry.Describe(typeName)
}

// Get reads a property through the default registry
func Get(instance Reflected, name string) (interface{}, error) {
	return defaultRegistry.Get(instance, name)
}

// Set writes a property through the default registry
func Set(instance Reflected, name string, value interface{}) error {
	return defaultRegistry.Set(instance, name, value)
}
