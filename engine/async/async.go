// Package async runs blocking work off the tick goroutine.
//
// Jobs are appended to named groups. Each group owns one worker goroutine, so jobs in a group
// run in the order they were appended. Results are posted back to the tick goroutine.
package async

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/goreplica/goreplica/engine/consts"
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/goreplica/goreplica/engine/gwutils"
	"github.com/goreplica/goreplica/engine/post"
)

// AsyncCallback is called on the tick goroutine with the result of an AsyncRoutine
type AsyncCallback func(res interface{}, err error)

// Callback posts the callback to the tick goroutine
func (ac AsyncCallback) Callback(res interface{}, err error) {
	if ac != nil {
		post.Post(func() {
			ac(res, err)
		})
	}
}

// AsyncRoutine runs in the worker goroutine of its job group
type AsyncRoutine func() (res interface{}, err error)

type job struct {
	routine  AsyncRoutine
	callback AsyncCallback
}

type jobGroup struct {
	name    string
	queue   chan job
	pending int64
}

var (
	groupsLock sync.RWMutex
	groups     = map[string]*jobGroup{}
	workers    sync.WaitGroup
)

func newJobGroup(name string) *jobGroup {
	g := &jobGroup{
		name:  name,
		queue: make(chan job, consts.ASYNC_JOB_QUEUE_MAXLEN),
	}
	workers.Add(1)
	go func() {
		defer workers.Done()
		gwutils.RepeatUntilPanicless(g.run)
	}()
	return g
}

func (g *jobGroup) run() {
	for j := range g.queue {
		g.do(j)
	}
}

func (g *jobGroup) do(j job) {
	defer atomic.AddInt64(&g.pending, -1)
	res, err := j.routine()
	j.callback.Callback(res, err)
}

func getJobGroup(name string) *jobGroup {
	groupsLock.RLock()
	g := groups[name]
	groupsLock.RUnlock()
	if g != nil {
		return g
	}

	groupsLock.Lock()
	defer groupsLock.Unlock()
	if g = groups[name]; g == nil {
		g = newJobGroup(name)
		groups[name] = g
	}
	return g
}

// AppendAsyncJob runs routine in the worker of group and posts callback with its result
func AppendAsyncJob(group string, routine AsyncRoutine, callback AsyncCallback) {
	g := getJobGroup(group)
	if n := atomic.AddInt64(&g.pending, 1); n > consts.ASYNC_JOB_QUEUE_MAXLEN/2 {
		gwlog.Warnf("async: %d jobs pending in group %s", n, group)
	}
	g.queue <- job{routine, callback}
}

// Pending returns the number of jobs of group that have not finished yet
func Pending(group string) int {
	groupsLock.RLock()
	g := groups[group]
	groupsLock.RUnlock()
	if g == nil {
		return 0
	}
	return int(atomic.LoadInt64(&g.pending))
}

// Groups returns the names of the job groups created so far
func Groups() []string {
	groupsLock.RLock()
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	groupsLock.RUnlock()
	sort.Strings(names)
	return names
}

// Shutdown closes all job groups and waits for queued jobs to finish
func Shutdown() {
	groupsLock.Lock()
	for _, g := range groups {
		close(g.queue)
	}
	groups = map[string]*jobGroup{}
	groupsLock.Unlock()

	workers.Wait()
}
