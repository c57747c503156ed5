package template

import (
	"sort"
	"sync"
	"time"

	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/goreplica/goreplica/engine/opmon"
	"github.com/pkg/errors"
)

// Reader reads templates from a storage backend
type Reader interface {
	ReadTemplate(name string) (*ObjectTemplate, error)
}

// Store serves templates from an in-memory cache, reading through to a Reader on misses
type Store struct {
	sync.RWMutex
	reader    Reader
	templates map[string]*ObjectTemplate
}

// NewStore creates a template store; reader may be nil for a cache-only store
func NewStore(reader Reader) *Store {
	return &Store{
		reader:    reader,
		templates: map[string]*ObjectTemplate{},
	}
}

// LoadObjectTemplate returns the template by name
func (s *Store) LoadObjectTemplate(name string) (*ObjectTemplate, error) {
	s.RLock()
	t := s.templates[name]
	s.RUnlock()
	if t != nil {
		return t, nil
	}
	if s.reader == nil {
		return nil, errors.Wrapf(common.ErrNotFound, "template %s", name)
	}

	monop := opmon.StartOperation("template.read")
	t, err := s.reader.ReadTemplate(name)
	monop.Finish(time.Millisecond * 100)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errors.Wrapf(common.ErrNotFound, "template %s", name)
	}
	s.Put(t)
	return t, nil
}

// Put adds or replaces a template in the cache
func (s *Store) Put(t *ObjectTemplate) {
	if t.Name == "" {
		gwlog.Panicf("template without name")
	}
	s.Lock()
	s.templates[t.Name] = t
	s.Unlock()
}

// Invalidate drops a template from the cache
func (s *Store) Invalidate(name string) {
	s.Lock()
	delete(s.templates, name)
	s.Unlock()
}

// Names returns the cached template names, sorted
func (s *Store) Names() []string {
	s.RLock()
	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	s.RUnlock()
	sort.Strings(names)
	return names
}
