package storagecommon

import "github.com/goreplica/goreplica/engine/template"

// TemplateStorage defines the interface of template storage backends
//
// Read of a missing template returns an error caused by common.ErrNotFound.
type TemplateStorage interface {
	List() ([]string, error)
	Write(t *template.ObjectTemplate) error
	Read(name string) (*template.ObjectTemplate, error)
	Exists(name string) (bool, error)
	Close()
	IsEOF(err error) bool
}
