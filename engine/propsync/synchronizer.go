package propsync

import (
	"time"

	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/consts"
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/goreplica/goreplica/engine/opmon"
	"github.com/goreplica/goreplica/engine/reflection"
	"github.com/pkg/errors"
)

// ChangeListener is notified once per changed property after a transaction is applied
type ChangeListener func(name string)

// ListenerHandle identifies a registered ChangeListener
type ListenerHandle uint32

type listenerEntry struct {
	handle ListenerHandle
	fn     ChangeListener
}

// Synchronizer tracks dirty properties of one reflected instance and applies received transactions to it
//
// A Synchronizer is only used from the tick goroutine and has no locking.
type Synchronizer struct {
	desc   *reflection.TypeDesc
	target interface{}

	dirty   map[string]int
	pending []Entry

	listeners  []listenerEntry
	nextHandle ListenerHandle
}

// Attach binds an instance of a registered type for change tracking
func Attach(desc *reflection.TypeDesc, target interface{}) *Synchronizer {
	return &Synchronizer{
		desc:   desc,
		target: target,
		dirty:  map[string]int{},
	}
}

// Desc returns the type of the attached instance
func (s *Synchronizer) Desc() *reflection.TypeDesc {
	return s.desc
}

// Target returns the attached instance
func (s *Synchronizer) Target() interface{} {
	return s.target
}

// Get reads a property of the attached instance
func (s *Synchronizer) Get(name string) (interface{}, error) {
	return s.desc.Get(s.target, name)
}

// Set writes a property and marks it dirty if it is synchronized
func (s *Synchronizer) Set(name string, value interface{}) error {
	d, err := s.desc.Property(name)
	if err != nil {
		return err
	}
	if err := s.desc.SetProperty(s.target, d, value); err != nil {
		return err
	}
	if d.Synced() {
		s.markDirty(d)
	}
	return nil
}

// MarkDirty marks a synchronized property dirty after it was changed without Set
func (s *Synchronizer) MarkDirty(name string) error {
	d, err := s.desc.Property(name)
	if err != nil {
		return err
	}
	if !d.Synced() {
		return errors.Errorf("%s.%s is not synchronized", s.desc.Name(), name)
	}
	s.markDirty(d)
	return nil
}

func (s *Synchronizer) markDirty(d *reflection.PropertyDescriptor) {
	data, err := EncodeValue(d, s.current(d))
	if err != nil {
		gwlog.Errorf("%s: encode %s failed: %v", s.desc.Name(), d.Name(), err)
		return
	}

	if idx, ok := s.dirty[d.Name()]; ok {
		s.pending[idx].Value = data
		return
	}
	s.dirty[d.Name()] = len(s.pending)
	s.pending = append(s.pending, Entry{Name: d.Name(), Value: data})
}

func (s *Synchronizer) current(d *reflection.PropertyDescriptor) interface{} {
	v, _ := s.desc.Get(s.target, d.Name())
	return v
}

// IsDirty returns if any property changed since the last flush
func (s *Synchronizer) IsDirty() bool {
	return len(s.pending) > 0
}

// Flush returns all changes since the last flush and clears the dirty state
func (s *Synchronizer) Flush() Transaction {
	if len(s.pending) == 0 {
		return Transaction{}
	}
	txn := Transaction{Entries: s.pending}
	s.pending = nil
	s.dirty = map[string]int{}
	if consts.DEBUG_PROPSYNC {
		gwlog.Debugf("%s: flush %s", s.desc.Name(), txn)
	}
	return txn
}

// Discard drops buffered changes without sending them
func (s *Synchronizer) Discard() {
	s.pending = nil
	s.dirty = map[string]int{}
}

// Snapshot encodes every synchronized property, used for construction
func (s *Synchronizer) Snapshot() Transaction {
	var txn Transaction
	for _, d := range s.desc.SyncedProperties() {
		data, err := EncodeValue(d, s.current(d))
		if err != nil {
			gwlog.Errorf("%s: encode %s failed: %v", s.desc.Name(), d.Name(), err)
			continue
		}
		txn.Entries = append(txn.Entries, Entry{Name: d.Name(), Value: data})
	}
	return txn
}

type decodedEntry struct {
	desc  *reflection.PropertyDescriptor
	value interface{}
}

// Apply applies a received transaction
//
// Entries of unknown or read-only properties are skipped. If any value can not be decoded,
// nothing is applied and the returned error is caused by common.ErrDecodeFailure.
// After a successful apply every listener is notified once per distinct property, in
// transaction order.
func (s *Synchronizer) Apply(txn Transaction) error {
	if txn.IsEmpty() {
		return nil
	}

	monop := opmon.StartOperation("propsync.apply")
	defer monop.Finish(time.Millisecond * 10)

	decoded := make([]decodedEntry, 0, len(txn.Entries))
	for _, entry := range txn.Entries {
		d, err := s.desc.Property(entry.Name)
		if err != nil {
			gwlog.Warnf("%s: apply skips unknown property %s", s.desc.Name(), entry.Name)
			continue
		}
		if d.ReadOnly() {
			gwlog.Warnf("%s: apply skips read-only property %s", s.desc.Name(), entry.Name)
			continue
		}
		v, err := DecodeValue(d, entry.Value)
		if err != nil {
			return errors.Wrapf(err, "apply %s", s.desc.Name())
		}
		decoded = append(decoded, decodedEntry{d, v})
	}

	for _, de := range decoded {
		s.desc.SetValidated(s.target, de.desc, de.value)
	}

	if consts.DEBUG_PROPSYNC {
		gwlog.Debugf("%s: applied %s", s.desc.Name(), txn)
	}

	notified := common.StringSet{}
	for _, de := range decoded {
		name := de.desc.Name()
		if notified.Contains(name) {
			continue
		}
		notified.Add(name)
		for _, l := range s.listeners {
			l.fn(name)
		}
	}
	return nil
}

// OnChanged registers a listener for applied changes
func (s *Synchronizer) OnChanged(fn ChangeListener) ListenerHandle {
	s.nextHandle++
	s.listeners = append(s.listeners, listenerEntry{s.nextHandle, fn})
	return s.nextHandle
}

// RemoveListener unregisters a listener
func (s *Synchronizer) RemoveListener(h ListenerHandle) bool {
	for i, l := range s.listeners {
		if l.handle == h {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return true
		}
	}
	return false
}
