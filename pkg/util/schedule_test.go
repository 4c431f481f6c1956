package util

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestInterval(t *testing.T) {
	t.Run("ticks until stopped", func(t *testing.T) {
		var ticks atomic.Int32
		i := NewInterval(10*time.Millisecond, func() { ticks.Add(1) })

		time.Sleep(55 * time.Millisecond)
		i.Stop()
		got := ticks.Load()
		if got < 2 {
			t.Fatalf("expected at least 2 ticks, got %d", got)
		}

		time.Sleep(40 * time.Millisecond)
		if after := ticks.Load(); after > got+1 {
			t.Fatalf("interval kept ticking after stop: %d -> %d", got, after)
		}
	})

	t.Run("stop from within callback", func(t *testing.T) {
		done := make(chan struct{})
		var i *Interval
		var ready atomic.Bool
		i = NewInterval(5*time.Millisecond, func() {
			if ready.Load() {
				i.Stop()
				select {
				case <-done:
				default:
					close(done)
				}
			}
		})
		ready.Store(true)

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("callback never ran")
		}
	})

	t.Run("multiple stops are safe", func(t *testing.T) {
		i := NewInterval(time.Hour, func() {})

		// Should not panic
		i.Stop()
		i.Stop()

		var nilInterval *Interval
		nilInterval.Stop()
	})
}

func TestDelay(t *testing.T) {
	t.Run("fires after duration", func(t *testing.T) {
		fired := make(chan struct{})
		NewDelay(20*time.Millisecond, func() { close(fired) })

		select {
		case <-fired:
			// Expected
		case <-time.After(200 * time.Millisecond):
			t.Fatal("delay did not fire within expected time")
		}
	})

	t.Run("stop prevents firing", func(t *testing.T) {
		fired := make(chan struct{})
		d := NewDelay(20*time.Millisecond, func() { close(fired) })

		if !d.Stop() {
			t.Fatal("expected Stop to cancel the pending call")
		}

		select {
		case <-fired:
			t.Fatal("delay fired after stop")
		case <-time.After(60 * time.Millisecond):
			// Expected
		}
	})

	t.Run("stop after firing reports false", func(t *testing.T) {
		fired := make(chan struct{})
		d := NewDelay(time.Millisecond, func() { close(fired) })
		<-fired

		if d.Stop() {
			t.Fatal("Stop should report false once fired")
		}
		if d.Stop() {
			t.Fatal("repeated Stop should report false")
		}
	})
}
