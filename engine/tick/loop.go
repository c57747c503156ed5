package tick

import (
	"context"
	"time"

	"github.com/goreplica/goreplica/engine/consts"
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/goreplica/goreplica/engine/post"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	"github.com/xiaonanln/goTimer"
)

// Dispatcher delivers queued network events on the tick goroutine
type Dispatcher interface {
	Dispatch() int
}

// Loop is the single logical update loop
type Loop struct {
	interval    time.Duration
	dispatchers []Dispatcher
	scheduler   *Scheduler
	ticks       uint64

	stopping xnsyncutil.AtomicBool
	stopped  *xnsyncutil.OneTimeCond
}

// NewLoop creates a loop ticking at interval (consts.DEFAULT_TICK_INTERVAL if zero)
func NewLoop(interval time.Duration) *Loop {
	if interval <= 0 {
		interval = consts.DEFAULT_TICK_INTERVAL
	}
	return &Loop{
		interval:  interval,
		scheduler: NewScheduler(),
		stopped:   xnsyncutil.NewOneTimeCond(),
	}
}

// AddDispatcher registers a network event source
func (l *Loop) AddDispatcher(d Dispatcher) {
	l.dispatchers = append(l.dispatchers, d)
}

// Subscribe adds a per tick callback
func (l *Loop) Subscribe(priority int, cb Callback) Handle {
	return l.scheduler.Subscribe(priority, cb)
}

// Unsubscribe removes a per tick callback
func (l *Loop) Unsubscribe(h Handle) bool {
	return l.scheduler.Unsubscribe(h)
}

// Ticks returns the number of completed ticks
func (l *Loop) Ticks() uint64 {
	return l.ticks
}

// RunOnce runs one tick: network events, timers, scheduled callbacks, then posted callbacks
func (l *Loop) RunOnce() {
	for _, d := range l.dispatchers {
		d.Dispatch()
	}
	timer.Tick()
	l.scheduler.Run()
	post.Tick()
	l.ticks++
}

// Run ticks until ctx is done or Stop is called
func (l *Loop) Run(ctx context.Context) {
	defer l.stopped.Signal()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	gwlog.Infof("tick loop started, interval %s", l.interval)
	for !l.stopping.Load() {
		select {
		case <-ctx.Done():
			l.stopping.Store(true)
		case <-ticker.C:
			l.RunOnce()
		}
	}
	// consume what is left
	post.Tick()
	gwlog.Infof("tick loop stopped after %d ticks", l.ticks)
}

// Stop asks the loop to stop and waits until it has
func (l *Loop) Stop() {
	l.stopping.Store(true)
	l.stopped.Wait()
}
