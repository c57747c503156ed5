package post

import (
	"sync"
	"testing"
)

func TestPost(t *testing.T) {
	var a int
	Post(func() {
		a = 1
	})
	if Pending() != 1 {
		t.Errorf("should have 1 pending callback")
	}
	Tick()
	if a != 1 {
		t.Errorf("a should be 1")
	}
	if Pending() != 0 {
		t.Errorf("should have no pending callback")
	}
}

func TestPostFromGoroutines(t *testing.T) {
	var wg sync.WaitGroup
	count := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			Post(func() {
				count++
			})
		}()
	}
	wg.Wait()
	Tick()
	if count != 10 {
		t.Errorf("count should be 10, but is %d", count)
	}
}

func TestPostInsideTick(t *testing.T) {
	order := []int{}
	Post(func() {
		order = append(order, 1)
		Post(func() {
			order = append(order, 2)
		})
	})
	Tick()
	if len(order) != 2 || order[1] != 2 {
		t.Errorf("nested post should run in the same tick: %v", order)
	}
}
