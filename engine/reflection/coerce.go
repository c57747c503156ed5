package reflection

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/gwutils"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"
	"github.com/xiaonanln/typeconv"
)

var (
	int64Type   = reflect.TypeOf(int64(0))
	float32Type = reflect.TypeOf(float32(0))
	float64Type = reflect.TypeOf(float64(0))
	boolType    = reflect.TypeOf(false)
	stringType  = reflect.TypeOf("")
)

// Coerce converts a loosely typed value (from templates, config files or databases) to the
// kind of the property and validates it.
func (d *PropertyDescriptor) Coerce(raw interface{}) (interface{}, error) {
	if v, err := d.Validate(raw); err == nil {
		return v, nil
	}
	if raw == nil {
		return nil, errors.Wrapf(common.ErrTypeMismatch, "%s: nil value", d.name)
	}

	var res interface{}
	err := gwutils.CatchPanic(func() {
		switch d.kind {
		case KindBool:
			res = typeconv.Convert(raw, boolType).Interface()
		case KindInt:
			res = typeconv.Int(raw)
		case KindFloat:
			res = typeconv.Convert(raw, float32Type).Interface()
		case KindDouble:
			res = typeconv.Convert(raw, float64Type).Interface()
		case KindString:
			res = typeconv.Convert(raw, stringType).Interface()
		case KindEnum:
			if s, ok := raw.(string); ok {
				res = s
			} else {
				res = typeconv.Convert(raw, int64Type).Interface()
			}
		case KindVector:
			res = coerceVector(raw)
		case KindStruct:
			res = coerceStruct(raw, d.structType)
		}
	})
	if err != nil {
		return nil, errors.Wrapf(common.ErrTypeMismatch, "%s: can not convert %T to %s: %v", d.name, raw, d.kind, err)
	}
	return d.Validate(res)
}

func coerceVector(raw interface{}) common.Vector3 {
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Len() != 3 {
			panic(fmt.Errorf("vector needs 3 elements, got %d", rv.Len()))
		}
		return common.Vector3{
			X: toFloat32(rv.Index(0).Interface()),
			Y: toFloat32(rv.Index(1).Interface()),
			Z: toFloat32(rv.Index(2).Interface()),
		}
	case reflect.Map:
		var v common.Vector3
		for _, key := range rv.MapKeys() {
			val := rv.MapIndex(key).Interface()
			switch strings.ToLower(fmt.Sprint(key.Interface())) {
			case "x":
				v.X = toFloat32(val)
			case "y":
				v.Y = toFloat32(val)
			case "z":
				v.Z = toFloat32(val)
			}
		}
		return v
	}
	panic(fmt.Errorf("%T is not a vector", raw))
}

func toFloat32(v interface{}) float32 {
	return typeconv.Convert(v, float32Type).Interface().(float32)
}

// coerceStruct converts maps (as decoded by yaml, bson or msgpack) to the struct type
// by re-encoding them through msgpack.
func coerceStruct(raw interface{}, structType reflect.Type) interface{} {
	data, err := msgpack.Marshal(raw)
	if err != nil {
		panic(err)
	}
	ptr := reflect.New(structType)
	if err := msgpack.Unmarshal(data, ptr.Interface()); err != nil {
		panic(err)
	}
	return ptr.Elem().Interface()
}
