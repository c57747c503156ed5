package gwutils

import (
	"fmt"
	"testing"

	"github.com/bmizerany/assert"
)

func TestRunPanicless(t *testing.T) {
	assert.T(t, RunPanicless(func() {
		panic(1)
	}), "should report panic")
	assert.T(t, RunPanicless(func() {
		panic(fmt.Errorf("bad"))
	}), "should report panic")
	assert.T(t, !RunPanicless(func() {}), "should not report panic")
}

func TestRepeatUntilPanicless(t *testing.T) {
	n := 0
	RepeatUntilPanicless(func() {
		n++
		if n < 3 {
			panic(n)
		}
	})
	assert.Equal(t, 3, n)
}

func TestCatchPanic(t *testing.T) {
	err := CatchPanic(func() {
		panic("boom")
	})
	assert.NotEqual(t, nil, err)
	assert.Equal(t, "boom", err.Error())

	orig := fmt.Errorf("orig")
	assert.Equal(t, orig, CatchPanic(func() { panic(orig) }))
	assert.Equal(t, nil, CatchPanic(func() {}))
}

func TestRepeatUntilPaniclessReturnsWithoutPanic(t *testing.T) {
	n := 0
	RepeatUntilPanicless(func() {
		n++
	})
	assert.Equal(t, 1, n)
}
