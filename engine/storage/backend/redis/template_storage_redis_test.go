package templatestorageredis

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/template"
	"github.com/xiaonanln/typeconv"
)

func TestPackTemplate(t *testing.T) {
	crate := &template.ObjectTemplate{
		Name: "Crate",
		Components: []template.ComponentTemplate{
			{Type: "RigidBody", Name: "Body", Properties: []template.PropertyPreset{
				{Name: "Mass", Value: 12.5},
				{Name: "Layer", Value: 3},
				{Name: "Label", Value: "crate"},
				{Name: "Position", Value: common.Vector3{X: 1, Y: 2, Z: 3}},
			}},
		},
	}
	b, err := PackTemplate(crate)
	if err != nil {
		t.Fatal(err)
	}

	verify, err := UnpackTemplate("Crate", b)
	if err != nil {
		t.Fatal(err)
	}
	body := verify.Component("Body")
	assert.T(t, body != nil, "Body not found")
	v, _ := template.Property(body.Properties, "Mass")
	assert.Equal(t, 12.5, v)
	v, _ = template.Property(body.Properties, "Layer")
	assert.Equal(t, int64(3), typeconv.Int(v))
	v, _ = template.Property(body.Properties, "Label")
	assert.Equal(t, "crate", v)
	v, _ = template.Property(body.Properties, "Position")
	assert.T(t, v != nil, "Position not found")

	_, err = UnpackTemplate("Broken", []byte{0xc1})
	assert.T(t, common.IsError(err, common.ErrDecodeFailure), "broken record should fail to decode")
}

func TestOpenRedis(t *testing.T) {
	ts, err := OpenRedis("redis://127.0.0.1:6379", 0)
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	defer ts.Close()

	name := "TestTemplate" + string(common.GenPeerID())
	if err := ts.Write(&template.ObjectTemplate{Name: name}); err != nil {
		t.Fatal(err)
	}
	exists, err := ts.Exists(name)
	assert.Equal(t, nil, err)
	assert.T(t, exists, "template should exist")
	verify, err := ts.Read(name)
	assert.Equal(t, nil, err)
	assert.Equal(t, name, verify.Name)
	_, err = ts.Read(name + "_missing")
	assert.T(t, common.IsError(err, common.ErrNotFound), "missing template should be NotFound")
}
