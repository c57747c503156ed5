package tick

import (
	"github.com/goreplica/goreplica/engine/gwutils"
	"github.com/petar/GoLLRB/llrb"
)

// Callback is invoked once per tick
type Callback func()

// Handle identifies a subscribed Callback
type Handle uint64

type scheduledItem struct {
	priority int
	handle   Handle
	cb       Callback
}

func (it *scheduledItem) Less(_other llrb.Item) bool {
	other := _other.(*scheduledItem)
	return it.priority < other.priority || (it.priority == other.priority && it.handle < other.handle)
}

// Scheduler invokes callbacks in ascending priority, equal priorities in subscription order
type Scheduler struct {
	btree      *llrb.LLRB
	items      map[Handle]*scheduledItem
	nextHandle Handle
}

// NewScheduler creates an empty Scheduler
func NewScheduler() *Scheduler {
	return &Scheduler{
		btree: llrb.New(),
		items: map[Handle]*scheduledItem{},
	}
}

// Subscribe adds a callback with the priority
func (s *Scheduler) Subscribe(priority int, cb Callback) Handle {
	s.nextHandle++
	it := &scheduledItem{priority: priority, handle: s.nextHandle, cb: cb}
	s.items[it.handle] = it
	s.btree.ReplaceOrInsert(it)
	return it.handle
}

// Unsubscribe removes a callback; returns false if the handle is unknown
func (s *Scheduler) Unsubscribe(h Handle) bool {
	it, ok := s.items[h]
	if !ok {
		return false
	}
	delete(s.items, h)
	s.btree.Delete(it)
	return true
}

// Len returns the number of subscribed callbacks
func (s *Scheduler) Len() int {
	return len(s.items)
}

// Run invokes every callback once
//
// Callbacks subscribed during Run are first invoked on the next Run; callbacks
// unsubscribed during Run are not invoked anymore.
func (s *Scheduler) Run() {
	if s.btree.Len() == 0 {
		return
	}
	snapshot := make([]*scheduledItem, 0, s.btree.Len())
	s.btree.AscendGreaterOrEqual(s.btree.Min(), func(_item llrb.Item) bool {
		snapshot = append(snapshot, _item.(*scheduledItem))
		return true
	})

	for _, it := range snapshot {
		if s.items[it.handle] != it {
			continue
		}
		gwutils.RunPanicless(it.cb)
	}
}
