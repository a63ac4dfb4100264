package worker

import (
	"sync/atomic"
	"testing"
)

func TestPoolRunsAllJobsBeforeStop(t *testing.T) {
	p := NewPool(4)
	var n atomic.Int32
	for i := 0; i < 100; i++ {
		if !p.Submit(func() { n.Add(1) }) {
			t.Fatal("Submit rejected")
		}
	}
	p.Stop()
	if got := n.Load(); got != 100 {
		t.Errorf("ran %d jobs, want 100", got)
	}
}

func TestPoolSurvivesPanics(t *testing.T) {
	p := NewPool(1)
	var ran atomic.Bool
	p.Submit(func() { panic("boom") })
	p.Submit(func() { ran.Store(true) })
	p.Stop()
	if !ran.Load() {
		t.Error("job after panic did not run")
	}
}

func TestSubmitAfterStop(t *testing.T) {
	p := NewPool(1)
	p.Stop()
	p.Stop()
	if p.Submit(func() {}) {
		t.Error("Submit after Stop returned true")
	}
}
