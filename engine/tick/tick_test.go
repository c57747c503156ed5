package tick

import (
	"context"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/goreplica/goreplica/engine/post"
)

func TestSchedulerOrder(t *testing.T) {
	s := NewScheduler()
	var order []string
	s.Subscribe(10, func() { order = append(order, "b1") })
	s.Subscribe(0, func() { order = append(order, "a") })
	s.Subscribe(10, func() { order = append(order, "b2") })
	s.Subscribe(-5, func() { order = append(order, "first") })

	s.Run()
	assert.Equal(t, []string{"first", "a", "b1", "b2"}, order)
}

func TestSchedulerUnsubscribe(t *testing.T) {
	s := NewScheduler()
	var order []string
	var h2 Handle
	s.Subscribe(1, func() {
		order = append(order, "one")
		s.Unsubscribe(h2)
		s.Subscribe(0, func() { order = append(order, "late") })
	})
	h2 = s.Subscribe(2, func() { order = append(order, "two") })
	s.Subscribe(3, func() { panic("tick callbacks may panic") })

	s.Run()
	assert.Equal(t, []string{"one"}, order)
	assert.Equal(t, false, s.Unsubscribe(h2))
	assert.Equal(t, 3, s.Len())

	order = nil
	s.Run()
	assert.Equal(t, "late", order[0])
}

type countingDispatcher struct {
	n int
}

func (d *countingDispatcher) Dispatch() int {
	d.n++
	return 0
}

func TestLoopRunOnce(t *testing.T) {
	l := NewLoop(0)
	d := &countingDispatcher{}
	l.AddDispatcher(d)

	var seq []string
	l.Subscribe(0, func() {
		seq = append(seq, "tick")
		post.Post(func() { seq = append(seq, "post") })
	})
	l.RunOnce()
	assert.Equal(t, []string{"tick", "post"}, seq)
	assert.Equal(t, 1, d.n)
	assert.Equal(t, uint64(1), l.Ticks())
}

func TestLoopRunStop(t *testing.T) {
	l := NewLoop(time.Millisecond)
	ticked := make(chan struct{}, 1)
	l.Subscribe(0, func() {
		select {
		case ticked <- struct{}{}:
		default:
		}
	})
	go l.Run(context.Background())
	<-ticked
	l.Stop()
	assert.T(t, l.Ticks() > 0)

	ctx, cancel := context.WithCancel(context.Background())
	l2 := NewLoop(time.Millisecond)
	done := make(chan struct{})
	go func() {
		l2.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
}
