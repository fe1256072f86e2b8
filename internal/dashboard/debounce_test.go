package dashboard

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerRunsOnlyLastTrigger(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	var calls atomic.Int32
	var last atomic.Int32
	done := make(chan struct{}, 5)
	for i := 1; i <= 5; i++ {
		i := int32(i)
		d.Trigger(func() {
			calls.Add(1)
			last.Store(i)
			done <- struct{}{}
		})
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("debounced call never fired")
	}
	time.Sleep(60 * time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
	if got := last.Load(); got != 5 {
		t.Fatalf("last = %d, want 5", got)
	}
}

func TestDebouncerStopCancelsPending(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var calls atomic.Int32

	d.Trigger(func() { calls.Add(1) })
	d.Stop()
	d.Trigger(func() { calls.Add(1) })
	time.Sleep(60 * time.Millisecond)

	if got := calls.Load(); got != 0 {
		t.Fatalf("calls = %d, want 0", got)
	}
}
