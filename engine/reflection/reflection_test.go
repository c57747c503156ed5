package reflection

import (
	"math"
	"testing"

	"github.com/goreplica/goreplica/engine/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testMaterial struct {
	Name      string
	Roughness float64
}

type testBody struct {
	Position  common.Vector3
	Mass      float32
	Kinematic bool
	Shape     int64
	Material  testMaterial
	Label     string
	Revision  int64
}

func (b *testBody) ReflectTypeName() string {
	return "TestBody"
}

func testBodyProperties() []*PropertyDescriptor {
	return []*PropertyDescriptor{
		NewProperty("Position", KindVector,
			func(o interface{}) interface{} { return o.(*testBody).Position },
			func(o interface{}, v interface{}) { o.(*testBody).Position = v.(common.Vector3) },
		).MarkSynced(),
		NewProperty("Mass", KindFloat,
			func(o interface{}) interface{} { return o.(*testBody).Mass },
			func(o interface{}, v interface{}) { o.(*testBody).Mass = v.(float32) },
		).MarkSynced().WithPrecision(2),
		NewProperty("Kinematic", KindBool,
			func(o interface{}) interface{} { return o.(*testBody).Kinematic },
			func(o interface{}, v interface{}) { o.(*testBody).Kinematic = v.(bool) },
		),
		NewProperty("Shape", KindEnum,
			func(o interface{}) interface{} { return o.(*testBody).Shape },
			func(o interface{}, v interface{}) { o.(*testBody).Shape = v.(int64) },
		).WithEnum("box", "sphere", "capsule"),
		NewProperty("Material", KindStruct,
			func(o interface{}) interface{} { return o.(*testBody).Material },
			func(o interface{}, v interface{}) { o.(*testBody).Material = v.(testMaterial) },
		).WithStruct(testMaterial{}),
		NewProperty("Label", KindString,
			func(o interface{}) interface{} { return o.(*testBody).Label },
			func(o interface{}, v interface{}) { o.(*testBody).Label = v.(string) },
		).WithTag("editor", "text"),
		NewProperty("Revision", KindInt,
			func(o interface{}) interface{} { return o.(*testBody).Revision },
			nil,
		),
	}
}

func newTestRegistry(t *testing.T) (*Registry, *TypeDesc) {
	r := NewRegistry()
	td, err := r.Register("TestBody", testBodyProperties()...)
	require.NoError(t, err)
	return r, td
}

func TestRegisterAndDescribe(t *testing.T) {
	r, td := newTestRegistry(t)

	props, err := r.Describe("TestBody")
	require.NoError(t, err)
	names := make([]string, 0, len(props))
	for _, p := range props {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"Position", "Mass", "Kinematic", "Shape", "Material", "Label", "Revision"}, names)
	assert.Len(t, td.SyncedProperties(), 2)
	assert.Equal(t, 2, props[1].Precision())
	tag, ok := props[5].Tag("editor")
	assert.True(t, ok)
	assert.Equal(t, "text", tag)
	assert.True(t, props[6].ReadOnly())

	_, err = r.Register("TestBody", testBodyProperties()...)
	assert.True(t, common.IsError(err, common.ErrDuplicateType))

	_, err = r.Describe("Nope")
	assert.True(t, common.IsError(err, common.ErrUnknownType))
	assert.Equal(t, []string{"TestBody"}, r.Types())
}

func TestRegisterDuplicateProperty(t *testing.T) {
	r := NewRegistry()
	get := func(o interface{}) interface{} { return nil }
	_, err := r.Register("Dup", NewProperty("A", KindInt, get, nil), NewProperty("A", KindInt, get, nil))
	assert.True(t, common.IsError(err, common.ErrDuplicateName))
	_, err = r.Register("BadEnum", NewProperty("E", KindEnum, get, nil))
	assert.Error(t, err)
}

func TestSealedDescriptorPanics(t *testing.T) {
	_, td := newTestRegistry(t)
	p, err := td.Property("Mass")
	require.NoError(t, err)
	assert.Panics(t, func() { p.MarkReadOnly() })
}

func TestGetSet(t *testing.T) {
	r, _ := newTestRegistry(t)
	b := &testBody{}

	require.NoError(t, r.Set(b, "Position", common.Vector3{X: 1, Y: 2, Z: 3}))
	v, err := r.Get(b, "Position")
	require.NoError(t, err)
	assert.Equal(t, common.Vector3{X: 1, Y: 2, Z: 3}, v)

	require.NoError(t, r.Set(b, "Mass", 2.5))
	assert.Equal(t, float32(2.5), b.Mass)

	require.NoError(t, r.Set(b, "Shape", "sphere"))
	assert.Equal(t, int64(1), b.Shape)
	require.NoError(t, r.Set(b, "Shape", 2))
	assert.Equal(t, int64(2), b.Shape)

	require.NoError(t, r.Set(b, "Material", &testMaterial{Name: "steel", Roughness: 0.3}))
	assert.Equal(t, "steel", b.Material.Name)
}

func TestSetFailuresLeaveInstanceUnchanged(t *testing.T) {
	r, _ := newTestRegistry(t)
	b := &testBody{Label: "orig", Shape: 1}

	err := r.Set(b, "Label", 42)
	assert.True(t, common.IsError(err, common.ErrTypeMismatch))
	assert.Equal(t, "orig", b.Label)

	err = r.Set(b, "Shape", 7)
	assert.True(t, common.IsError(err, common.ErrTypeMismatch))
	assert.Equal(t, int64(1), b.Shape)

	err = r.Set(b, "Revision", 3)
	assert.True(t, common.IsError(err, common.ErrReadOnly))
	assert.Equal(t, int64(0), b.Revision)

	err = r.Set(b, "Velocity", common.Vector3{})
	assert.True(t, common.IsError(err, common.ErrUnknownProperty))

	err = r.Set(b, "Material", "steel")
	assert.True(t, common.IsError(err, common.ErrTypeMismatch))
}

func TestValidateIntRange(t *testing.T) {
	d := NewProperty("Count", KindInt, func(o interface{}) interface{} { return int64(0) }, nil)

	v, err := d.Validate(uint64(math.MaxInt64))
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), v)

	_, err = d.Validate(uint64(math.MaxInt64) + 1)
	assert.True(t, common.IsError(err, common.ErrTypeMismatch))
	_, err = d.Validate(uint(math.MaxUint64))
	assert.True(t, common.IsError(err, common.ErrTypeMismatch))
}

func TestCoerce(t *testing.T) {
	_, td := newTestRegistry(t)
	prop := func(name string) *PropertyDescriptor {
		p, err := td.Property(name)
		require.NoError(t, err)
		return p
	}

	v, err := prop("Position").Coerce([]interface{}{1, 2.5, 3})
	require.NoError(t, err)
	assert.Equal(t, common.Vector3{X: 1, Y: 2.5, Z: 3}, v)

	v, err = prop("Position").Coerce(map[string]interface{}{"x": 4, "y": 5, "z": 6.0})
	require.NoError(t, err)
	assert.Equal(t, common.Vector3{X: 4, Y: 5, Z: 6}, v)

	v, err = prop("Mass").Coerce(3)
	require.NoError(t, err)
	assert.Equal(t, float32(3), v)

	v, err = prop("Revision").Coerce(uint8(9))
	require.NoError(t, err)
	assert.Equal(t, int64(9), v)

	v, err = prop("Material").Coerce(map[string]interface{}{"Name": "wood", "Roughness": 0.8})
	require.NoError(t, err)
	assert.Equal(t, testMaterial{Name: "wood", Roughness: 0.8}, v)

	_, err = prop("Position").Coerce([]interface{}{1, 2})
	assert.True(t, common.IsError(err, common.ErrTypeMismatch))
}

func TestFingerprint(t *testing.T) {
	_, td1 := newTestRegistry(t)
	_, td2 := newTestRegistry(t)
	assert.Equal(t, td1.Fingerprint(), td2.Fingerprint())

	r := NewRegistry()
	td3, err := r.Register("TestBody", testBodyProperties()[:3]...)
	require.NoError(t, err)
	assert.NotEqual(t, td1.Fingerprint(), td3.Fingerprint())
}
