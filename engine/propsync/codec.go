package propsync

import (
	"reflect"

	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/reflection"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"
)

// EncodeValue encodes a normalized property value for the wire
func EncodeValue(d *reflection.PropertyDescriptor, value interface{}) ([]byte, error) {
	v, err := d.Validate(value)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(v)
}

// DecodeValue decodes wire bytes into the normalized value of the property kind
func DecodeValue(d *reflection.PropertyDescriptor, data []byte) (interface{}, error) {
	var ptr interface{}
	switch d.Kind() {
	case reflection.KindBool:
		ptr = new(bool)
	case reflection.KindInt, reflection.KindEnum:
		ptr = new(int64)
	case reflection.KindFloat:
		ptr = new(float32)
	case reflection.KindDouble:
		ptr = new(float64)
	case reflection.KindString:
		ptr = new(string)
	case reflection.KindVector:
		ptr = new(common.Vector3)
	case reflection.KindStruct:
		ptr = reflect.New(d.StructType()).Interface()
	default:
		return nil, errors.Wrapf(common.ErrDecodeFailure, "%s: unsupported kind %s", d.Name(), d.Kind())
	}

	if err := msgpack.Unmarshal(data, ptr); err != nil {
		return nil, errors.Wrapf(common.ErrDecodeFailure, "%s: %v", d.Name(), err)
	}

	v, err := d.Validate(reflect.ValueOf(ptr).Elem().Interface())
	if err != nil {
		return nil, errors.Wrapf(common.ErrDecodeFailure, "%s: %v", d.Name(), err)
	}
	return v, nil
}
