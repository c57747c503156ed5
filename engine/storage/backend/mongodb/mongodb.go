package templatestoragemongodb

import (
	"io"
	"sort"

	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/goreplica/goreplica/engine/storage/storage_common"
	"github.com/goreplica/goreplica/engine/template"
	"github.com/pkg/errors"
	"gopkg.in/mgo.v2"
	"gopkg.in/mgo.v2/bson"
)

const (
	_DEFAULT_DB_NAME    = "goreplica"
	_TEMPLATE_COLLECTON = "templates"
)

type mongoDBTemplateStorage struct {
	db *mgo.Database
}

// OpenMongoDB opens mongodb as template storage
func OpenMongoDB(url string, dbname string) (storagecommon.TemplateStorage, error) {
	gwlog.Debugf("Connecting MongoDB ...")
	session, err := mgo.Dial(url)
	if err != nil {
		return nil, err
	}

	session.SetMode(mgo.Monotonic, true)
	if dbname == "" {
		// if db is not specified, use default
		dbname = _DEFAULT_DB_NAME
	}
	return &mongoDBTemplateStorage{
		db: session.DB(dbname),
	}, nil
}

func (ts *mongoDBTemplateStorage) collection() *mgo.Collection {
	return ts.db.C(_TEMPLATE_COLLECTON)
}

func (ts *mongoDBTemplateStorage) Write(t *template.ObjectTemplate) error {
	_, err := ts.collection().UpsertId(t.Name, t)
	return err
}

func (ts *mongoDBTemplateStorage) Read(name string) (*template.ObjectTemplate, error) {
	var t template.ObjectTemplate
	err := ts.collection().FindId(name).One(&t)
	if err == mgo.ErrNotFound {
		return nil, errors.Wrapf(common.ErrNotFound, "template %s", name)
	} else if err != nil {
		return nil, err
	}
	convertPresets(t.Properties)
	for i := range t.Components {
		convertPresets(t.Components[i].Properties)
	}
	return &t, nil
}

// convertPresets converts bson documents in preset values to plain maps
func convertPresets(presets []template.PropertyPreset) {
	for i := range presets {
		presets[i].Value = convertValue(presets[i].Value)
	}
}

func convertValue(v interface{}) interface{} {
	switch im := v.(type) {
	case bson.M:
		return convertM2Map(im)
	case map[string]interface{}:
		return convertM2Map(im)
	case []interface{}:
		for i := range im {
			im[i] = convertValue(im[i])
		}
		return im
	}
	return v
}

func convertM2Map(m map[string]interface{}) map[string]interface{} {
	for k, v := range m {
		m[k] = convertValue(v)
	}
	return m
}

func (ts *mongoDBTemplateStorage) List() ([]string, error) {
	var docs []bson.M
	err := ts.collection().Find(nil).Select(bson.M{"_id": 1}).All(&docs)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(docs))
	for _, doc := range docs {
		if name, ok := doc["_id"].(string); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (ts *mongoDBTemplateStorage) Exists(name string) (bool, error) {
	n, err := ts.collection().FindId(name).Count()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (ts *mongoDBTemplateStorage) Close() {
	ts.db.Session.Close()
}

func (ts *mongoDBTemplateStorage) IsEOF(err error) bool {
	return err == io.EOF || err == io.ErrUnexpectedEOF
}
