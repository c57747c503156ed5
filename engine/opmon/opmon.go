package opmon

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/goreplica/goreplica/engine/gwlog"
)

var (
	operationAllocPool = sync.Pool{
		New: func() interface{} {
			return &Operation{}
		},
	}

	monitor = newMonitor()
)

// OpInfo is the accumulated timing of one operation name
type OpInfo struct {
	Count         uint64
	TotalDuration time.Duration
	MaxDuration   time.Duration
}

type _Monitor struct {
	sync.Mutex
	opInfos map[string]*OpInfo
}

func newMonitor() *_Monitor {
	m := &_Monitor{
		opInfos: map[string]*OpInfo{},
	}
	return m
}

func (monitor *_Monitor) record(opname string, duration time.Duration) {
	monitor.Lock()
	info := monitor.opInfos[opname]
	if info == nil {
		info = &OpInfo{}
		monitor.opInfos[opname] = info
	}
	info.Count += 1
	info.TotalDuration += duration
	if duration > info.MaxDuration {
		info.MaxDuration = duration
	}
	monitor.Unlock()
}

func (monitor *_Monitor) snapshot(reset bool) map[string]OpInfo {
	monitor.Lock()
	res := make(map[string]OpInfo, len(monitor.opInfos))
	for name, info := range monitor.opInfos {
		res[name] = *info
	}
	if reset {
		monitor.opInfos = map[string]*OpInfo{}
	}
	monitor.Unlock()
	return res
}

// Snapshot returns a copy of the recorded operation infos
func Snapshot() map[string]OpInfo {
	return monitor.snapshot(false)
}

// Dump writes the recorded operation infos to w and clears them
func Dump(w io.Writer) {
	opInfos := monitor.snapshot(true)
	names := make([]string, 0, len(opInfos))
	for name := range opInfos {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprint(w, "=====================================================================================\n")
	for _, opname := range names {
		opinfo := opInfos[opname]
		fmt.Fprintf(w, "%-30sx%-10d AVG %-10s MAX %-10s\n", opname, opinfo.Count, opinfo.TotalDuration/time.Duration(opinfo.Count), opinfo.MaxDuration)
	}
}

// Operation is the type of operation to be monitored
type Operation struct {
	name      string
	startTime time.Time
}

// StartOperation creates a new operation
func StartOperation(operationName string) *Operation {
	op := operationAllocPool.Get().(*Operation)
	op.name = operationName
	op.startTime = time.Now()
	return op
}

// Finish finishes the operation and records the duration of operation
func (op *Operation) Finish(warnThreshold time.Duration) {
	takeTime := time.Now().Sub(op.startTime)
	monitor.record(op.name, takeTime)
	if takeTime >= warnThreshold {
		gwlog.Warnf("opmon: operation %s takes %s > %s", op.name, takeTime, warnThreshold)
	}
	operationAllocPool.Put(op)
}
