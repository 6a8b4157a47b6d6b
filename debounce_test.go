package rebuild

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebounceCoalesces(t *testing.T) {
	var count int32
	d := newDebouncer(50*time.Millisecond, func() {
		atomic.AddInt32(&count, 1)
	})

	d.Notify()
	d.Notify()
	d.Notify()

	time.Sleep(250 * time.Millisecond)

	if c := atomic.LoadInt32(&count); c != 1 {
		t.Errorf("expected 1 call, got %d", c)
	}
}

func TestDebounceFiresAgainAfterWindow(t *testing.T) {
	var count int32
	d := newDebouncer(50*time.Millisecond, func() {
		atomic.AddInt32(&count, 1)
	})

	d.Notify()
	time.Sleep(250 * time.Millisecond)
	d.Notify()
	time.Sleep(250 * time.Millisecond)

	if c := atomic.LoadInt32(&count); c != 2 {
		t.Errorf("expected 2 calls, got %d", c)
	}
}

func TestDebounceTrailingEdge(t *testing.T) {
	var count int32
	d := newDebouncer(100*time.Millisecond, func() {
		atomic.AddInt32(&count, 1)
	})

	// Each notify re-arms the window; nothing fires while they keep coming.
	for i := 0; i < 5; i++ {
		d.Notify()
		time.Sleep(30 * time.Millisecond)
	}

	if c := atomic.LoadInt32(&count); c != 0 {
		t.Errorf("expected no calls while notifying, got %d", c)
	}

	time.Sleep(300 * time.Millisecond)

	if c := atomic.LoadInt32(&count); c != 1 {
		t.Errorf("expected 1 call after the window, got %d", c)
	}
}

func TestDebounceStop(t *testing.T) {
	var count int32
	d := newDebouncer(50*time.Millisecond, func() {
		atomic.AddInt32(&count, 1)
	})

	d.Notify()
	d.Stop()

	time.Sleep(250 * time.Millisecond)

	if c := atomic.LoadInt32(&count); c != 0 {
		t.Errorf("expected no calls after Stop, got %d", c)
	}
}
