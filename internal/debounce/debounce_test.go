package debounce

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncer_CoalescesBurst(t *testing.T) {
	fired := make(chan struct{}, 10)
	d := New(40*time.Millisecond, func() { fired <- struct{}{} })

	for i := 0; i < 5; i++ {
		d.Trigger()
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("debounced call never fired")
	}
	select {
	case <-fired:
		t.Fatal("burst should produce exactly one call")
	case <-time.After(150 * time.Millisecond):
	}
	if d.Pending() {
		t.Error("nothing should be pending after the call ran")
	}
}

func TestDebouncer_TriggerResetsQuietPeriod(t *testing.T) {
	var calls atomic.Int32
	start := time.Now()
	var firedAt atomic.Int64
	d := New(60*time.Millisecond, func() {
		calls.Add(1)
		firedAt.Store(int64(time.Since(start)))
	})

	d.Trigger()
	time.Sleep(40 * time.Millisecond)
	d.Trigger()
	time.Sleep(200 * time.Millisecond)

	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
	if got := time.Duration(firedAt.Load()); got < 100*time.Millisecond {
		t.Errorf("fired after %v; the second trigger should have restarted the quiet period", got)
	}
}

func TestDebouncer_Flush(t *testing.T) {
	var calls atomic.Int32
	d := New(time.Hour, func() { calls.Add(1) })

	d.Flush()
	if calls.Load() != 0 {
		t.Fatal("Flush with nothing pending must not call fn")
	}

	d.Trigger()
	d.Flush()
	if calls.Load() != 1 {
		t.Fatalf("calls after Flush = %d, want 1", calls.Load())
	}
	if d.Pending() {
		t.Error("Flush should clear the pending call")
	}
}

func TestDebouncer_CancelAndStop(t *testing.T) {
	var calls atomic.Int32
	d := New(20*time.Millisecond, func() { calls.Add(1) })

	d.Trigger()
	d.Cancel()
	time.Sleep(60 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatal("cancelled call fired")
	}

	d.Stop()
	d.Trigger()
	time.Sleep(60 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatal("Trigger after Stop fired")
	}
}

func TestNew_DefaultDelay(t *testing.T) {
	if d := New(0, func() {}); d.delay != DefaultDelay {
		t.Errorf("delay = %v, want %v", d.delay, DefaultDelay)
	}
}
