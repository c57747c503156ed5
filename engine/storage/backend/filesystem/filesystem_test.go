package templatestoragefilesystem

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/template"
)

func TestFileSystemTemplateStorage(t *testing.T) {
	dir, err := ioutil.TempDir("", "test_template_storage")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	ts, err := OpenDirectory(dir)
	if err != nil {
		t.Fatal(err)
	}

	_, err = ts.Read("Crate")
	assert.T(t, common.IsError(err, common.ErrNotFound), "missing template should be NotFound")
	exists, err := ts.Exists("Crate")
	assert.Equal(t, nil, err)
	assert.Equal(t, false, exists)

	crate := &template.ObjectTemplate{
		Name: "Crate",
		Properties: []template.PropertyPreset{
			{Name: "Active", Value: true},
		},
		Components: []template.ComponentTemplate{
			{Type: "RigidBody", Name: "Body", Properties: []template.PropertyPreset{
				{Name: "Position", Value: common.Vector3{X: 1, Y: 2, Z: 3}},
				{Name: "Mass", Value: 12.5},
				{Name: "Shape", Value: "sphere"},
				{Name: "Layer", Value: 3},
			}},
		},
	}
	if err := ts.Write(crate); err != nil {
		t.Fatal(err)
	}

	verify, err := ts.Read("Crate")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "Crate", verify.Name)
	v, ok := template.Property(verify.Properties, "Active")
	assert.T(t, ok, "Active not found")
	assert.Equal(t, true, v)

	body := verify.Component("Body")
	assert.T(t, body != nil, "Body not found")
	v, _ = template.Property(body.Properties, "Mass")
	assert.Equal(t, 12.5, v)
	v, _ = template.Property(body.Properties, "Shape")
	assert.Equal(t, "sphere", v)
	v, _ = template.Property(body.Properties, "Layer")
	assert.Equal(t, 3, v)
	v, _ = template.Property(body.Properties, "Position")
	assert.Equal(t, map[string]interface{}{"x": 1, "y": 2, "z": 3}, v)

	names, err := ts.List()
	assert.Equal(t, nil, err)
	assert.Equal(t, []string{"Crate"}, names)

	_, err = ts.Read("../Crate")
	assert.T(t, err != nil, "path names must be rejected")

	if err := ioutil.WriteFile(filepath.Join(dir, "Broken.yaml"), []byte("name: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err = ts.Read("Broken")
	assert.T(t, err != nil && !common.IsError(err, common.ErrNotFound), "broken file should fail to parse")
}
