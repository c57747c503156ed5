package reflection

import (
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/pkg/errors"
)

// Kind is the value kind of a property
type Kind uint8

const (
	// KindBool values are bool
	KindBool Kind = iota
	// KindInt values are int64
	KindInt
	// KindFloat values are float32
	KindFloat
	// KindDouble values are float64
	KindDouble
	// KindString values are string
	KindString
	// KindVector values are common.Vector3
	KindVector
	// KindStruct values are of the struct type given to WithStruct
	KindStruct
	// KindEnum values are int64 ordinals into the names given to WithEnum
	KindEnum
)

var kindNames = [...]string{"bool", "int", "float", "double", "string", "vector", "struct", "enum"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

const (
	// TagSync marks a property as participating in synchronization
	TagSync = "sync"
	// TagPrecision is the number of decimal digits shown for float properties
	TagPrecision = "precision"
)

// Getter reads a property from an instance
type Getter func(instance interface{}) interface{}

// Setter writes an already validated value to an instance
type Setter func(instance interface{}, value interface{})

// PropertyDescriptor is the static metadata of one property of a type
//
// Descriptors are built with NewProperty and the With* / Mark* methods, and can not be
// changed once registered.
type PropertyDescriptor struct {
	name       string
	kind       Kind
	readOnly   bool
	tags       map[string]string
	structType reflect.Type
	enumNames  []string
	get        Getter
	set        Setter
	sealed     bool
}

// NewProperty creates a property descriptor. A nil setter makes the property read-only.
func NewProperty(name string, kind Kind, get Getter, set Setter) *PropertyDescriptor {
	return &PropertyDescriptor{
		name:     name,
		kind:     kind,
		readOnly: set == nil,
		tags:     map[string]string{},
		get:      get,
		set:      set,
	}
}

func (d *PropertyDescriptor) assureNotSealed() {
	if d.sealed {
		gwlog.Panicf("property %s is already registered and can not be changed", d.name)
	}
}

// MarkReadOnly makes the property read-only
func (d *PropertyDescriptor) MarkReadOnly() *PropertyDescriptor {
	d.assureNotSealed()
	d.readOnly = true
	return d
}

// MarkSynced makes the property participate in synchronization
func (d *PropertyDescriptor) MarkSynced() *PropertyDescriptor {
	return d.WithTag(TagSync, "true")
}

// WithTag sets a tag
func (d *PropertyDescriptor) WithTag(key, val string) *PropertyDescriptor {
	d.assureNotSealed()
	d.tags[key] = val
	return d
}

// WithPrecision sets the number of decimal digits for display
func (d *PropertyDescriptor) WithPrecision(digits int) *PropertyDescriptor {
	return d.WithTag(TagPrecision, strconv.Itoa(digits))
}

// WithStruct sets the value type of a struct property from a prototype value
func (d *PropertyDescriptor) WithStruct(prototype interface{}) *PropertyDescriptor {
	d.assureNotSealed()
	t := reflect.TypeOf(prototype)
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	d.structType = t
	return d
}

// WithEnum sets the names of an enum property, ordinals are the indexes
func (d *PropertyDescriptor) WithEnum(names ...string) *PropertyDescriptor {
	d.assureNotSealed()
	d.enumNames = append([]string(nil), names...)
	return d
}

// Name returns the property name
func (d *PropertyDescriptor) Name() string {
	return d.name
}

// Kind returns the property kind
func (d *PropertyDescriptor) Kind() Kind {
	return d.kind
}

// ReadOnly returns if the property is read-only
func (d *PropertyDescriptor) ReadOnly() bool {
	return d.readOnly
}

// Synced returns if the property participates in synchronization
func (d *PropertyDescriptor) Synced() bool {
	_, ok := d.tags[TagSync]
	return ok
}

// Tag returns the value of a tag
func (d *PropertyDescriptor) Tag(key string) (string, bool) {
	v, ok := d.tags[key]
	return v, ok
}

// Tags returns a copy of all tags
func (d *PropertyDescriptor) Tags() map[string]string {
	tags := make(map[string]string, len(d.tags))
	for k, v := range d.tags {
		tags[k] = v
	}
	return tags
}

// Precision returns the display precision, -1 if not tagged
func (d *PropertyDescriptor) Precision() int {
	v, ok := d.tags[TagPrecision]
	if !ok {
		return -1
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}

// StructType returns the value type of a struct property
func (d *PropertyDescriptor) StructType() reflect.Type {
	return d.structType
}

// EnumNames returns the names of an enum property
func (d *PropertyDescriptor) EnumNames() []string {
	return append([]string(nil), d.enumNames...)
}

// EnumName returns the name of an enum ordinal
func (d *PropertyDescriptor) EnumName(ordinal int64) string {
	if ordinal < 0 || ordinal >= int64(len(d.enumNames)) {
		return ""
	}
	return d.enumNames[ordinal]
}

func (d *PropertyDescriptor) String() string {
	return fmt.Sprintf("%s:%s", d.name, d.kind)
}

func (d *PropertyDescriptor) check() error {
	if d.name == "" {
		return errors.New("property name is empty")
	}
	if d.get == nil {
		return errors.Errorf("property %s has no getter", d.name)
	}
	if d.kind > KindEnum {
		return errors.Errorf("property %s has invalid kind %d", d.name, d.kind)
	}
	if d.kind == KindStruct && (d.structType == nil || d.structType.Kind() != reflect.Struct) {
		return errors.Errorf("struct property %s needs a struct type", d.name)
	}
	if d.kind == KindEnum && len(d.enumNames) == 0 {
		return errors.Errorf("enum property %s needs enum names", d.name)
	}
	return nil
}

// Validate checks a value against the property kind and returns it in the normalized form
// (int64 for int and enum, float32 for float, float64 for double, common.Vector3 for vector).
func (d *PropertyDescriptor) Validate(value interface{}) (interface{}, error) {
	switch d.kind {
	case KindBool:
		if v, ok := value.(bool); ok {
			return v, nil
		}
	case KindInt:
		if v, ok := toInt64(value); ok {
			return v, nil
		}
	case KindFloat:
		switch v := value.(type) {
		case float32:
			return v, nil
		case float64:
			return float32(v), nil
		}
	case KindDouble:
		switch v := value.(type) {
		case float32:
			return float64(v), nil
		case float64:
			return v, nil
		}
	case KindString:
		if v, ok := value.(string); ok {
			return v, nil
		}
	case KindVector:
		switch v := value.(type) {
		case common.Vector3:
			return v, nil
		case *common.Vector3:
			if v != nil {
				return *v, nil
			}
		}
	case KindStruct:
		if value != nil {
			rv := reflect.ValueOf(value)
			if rv.Kind() == reflect.Ptr && !rv.IsNil() {
				rv = rv.Elem()
			}
			if rv.Type() == d.structType {
				return rv.Interface(), nil
			}
		}
	case KindEnum:
		if name, ok := value.(string); ok {
			for i, n := range d.enumNames {
				if n == name {
					return int64(i), nil
				}
			}
			return nil, errors.Wrapf(common.ErrTypeMismatch, "%s: invalid enum name %q", d.name, name)
		}
		if v, ok := toInt64(value); ok {
			if v < 0 || v >= int64(len(d.enumNames)) {
				return nil, errors.Wrapf(common.ErrTypeMismatch, "%s: enum ordinal %d out of range", d.name, v)
			}
			return v, nil
		}
	}
	return nil, errors.Wrapf(common.ErrTypeMismatch, "%s: %T is not %s", d.name, value, d.kind)
}

func toInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	}
	return 0, false
}
