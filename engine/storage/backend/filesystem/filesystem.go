package templatestoragefilesystem

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/consts"
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/goreplica/goreplica/engine/storage/storage_common"
	"github.com/goreplica/goreplica/engine/template"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const fileExt = ".yaml"

type fileSystemTemplateStorage struct {
	directory string
}

func (ts *fileSystemTemplateStorage) getFilePath(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", errors.Errorf("invalid template name: %q", name)
	}
	return filepath.Join(ts.directory, name+fileExt), nil
}

func (ts *fileSystemTemplateStorage) Write(t *template.ObjectTemplate) error {
	saveFile, err := ts.getFilePath(t.Name)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(t)
	if err != nil {
		return err
	}

	if consts.DEBUG_SAVE_LOAD {
		gwlog.Debugf("Saving to file %s: %s", saveFile, string(data))
	}
	return ioutil.WriteFile(saveFile, data, 0644)
}

func (ts *fileSystemTemplateStorage) Read(name string) (*template.ObjectTemplate, error) {
	saveFile, err := ts.getFilePath(name)
	if err != nil {
		return nil, err
	}
	data, err := ioutil.ReadFile(saveFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(common.ErrNotFound, "template %s", name)
		}
		return nil, err
	}

	var t template.ObjectTemplate
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, errors.Wrapf(err, "parse %s", saveFile)
	}
	if t.Name == "" {
		t.Name = name
	}
	return &t, nil
}

func (ts *fileSystemTemplateStorage) Exists(name string) (bool, error) {
	saveFile, err := ts.getFilePath(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(saveFile)
	if err == nil {
		return true, nil
	} else if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (ts *fileSystemTemplateStorage) List() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(ts.directory, "*"+fileExt))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(files))
	for _, fpath := range files {
		_, fn := filepath.Split(fpath)
		names = append(names, strings.TrimSuffix(fn, fileExt))
	}
	sort.Strings(names)
	return names, nil
}

func (ts *fileSystemTemplateStorage) Close() {
	// need to do nothing
}

func (ts *fileSystemTemplateStorage) IsEOF(err error) bool {
	return false
}

// OpenDirectory opens a directory of yaml files as template storage
func OpenDirectory(directory string) (storagecommon.TemplateStorage, error) {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, err
	}

	return &fileSystemTemplateStorage{
		directory: directory,
	}, nil
}
