package common

import "github.com/pkg/errors"

var (
	// ErrUnknownProperty is returned when a property name is not described by the type
	ErrUnknownProperty = errors.New("unknown property")
	// ErrTypeMismatch is returned when a value does not match the property kind
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrReadOnly is returned when setting a read-only property
	ErrReadOnly = errors.New("property is read-only")
	// ErrDuplicateType is returned when a type name is registered twice
	ErrDuplicateType = errors.New("duplicate type")
	// ErrDuplicateName is returned when an object or component name is taken
	ErrDuplicateName = errors.New("duplicate name")
	// ErrNotFound is returned when a lookup fails
	ErrNotFound = errors.New("not found")
	// ErrUnknownType is returned for unregistered component or plugin type codes
	ErrUnknownType = errors.New("unknown type")
	// ErrDecodeFailure is returned when wire data can not be decoded
	ErrDecodeFailure = errors.New("decode failure")
	// ErrTimeout is reported when buffered transactions expire before construction
	ErrTimeout = errors.New("timeout")
	// ErrPermissionDenied is returned when a peer is not allowed to perform an action
	ErrPermissionDenied = errors.New("permission denied")
)

// IsError checks if err is caused by target
func IsError(err error, target error) bool {
	return err != nil && errors.Cause(err) == target
}
