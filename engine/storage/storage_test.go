package storage

import (
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/config"
	"github.com/goreplica/goreplica/engine/post"
	"github.com/goreplica/goreplica/engine/template"
)

func waitPosted(t *testing.T, done *bool) {
	deadline := time.Now().Add(5 * time.Second)
	for !*done {
		if time.Now().After(deadline) {
			t.Fatal("callback not called")
		}
		time.Sleep(time.Millisecond)
		post.Tick()
	}
}

func TestStorage(t *testing.T) {
	dir, err := ioutil.TempDir("", "test_storage")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	err = Initialize(&config.StorageConfig{Type: "filesystem", Directory: dir})
	if err != nil {
		t.Fatal(err)
	}
	defer Shutdown()

	saved := false
	Save(&template.ObjectTemplate{
		Name:       "Crate",
		Properties: []template.PropertyPreset{{Name: "Active", Value: false}},
	}, func(err error) {
		assert.Equal(t, nil, err)
		saved = true
	})
	waitPosted(t, &saved)

	exists := false
	checked := false
	Exists("Crate", func(ok bool, err error) {
		exists = ok
		checked = true
	})
	waitPosted(t, &checked)
	assert.T(t, exists, "Crate should exist")

	var names []string
	listed := false
	List(func(ns []string, err error) {
		names = ns
		listed = true
	})
	waitPosted(t, &listed)
	assert.Equal(t, []string{"Crate"}, names)

	var loaded *template.ObjectTemplate
	loadDone := false
	Load("Crate", func(tmpl *template.ObjectTemplate, err error) {
		loaded = tmpl
		loadDone = true
	})
	waitPosted(t, &loadDone)
	assert.Equal(t, "Crate", loaded.Name)

	store := template.NewStore(Reader{})
	crate, err := store.LoadObjectTemplate("Crate")
	assert.Equal(t, nil, err)
	v, _ := template.Property(crate.Properties, "Active")
	assert.Equal(t, false, v)

	_, err = store.LoadObjectTemplate("Missing")
	assert.T(t, common.IsError(err, common.ErrNotFound), "missing template should be NotFound")
}
