// Package util holds small concurrency helpers.
package util

import (
	"sync"
	"time"
)

// Interval calls fn every period on its own goroutine until stopped.
// It is an explicit handle: nothing ticks unless the owner holds one.
//
// Example usage:
//
//	ticker := NewInterval(time.Second, func() { elapsed++ })
//	defer ticker.Stop()
type Interval struct {
	stop chan struct{}
	once sync.Once
}

// NewInterval starts ticking immediately. The first call happens one period from now.
func NewInterval(period time.Duration, fn func()) *Interval {
	i := &Interval{stop: make(chan struct{})}

	ticker := time.NewTicker(period)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				select {
				case <-i.stop:
					return
				default:
				}
				fn()
			case <-i.stop:
				return
			}
		}
	}()

	return i
}

// Stop prevents further calls. A call already in progress finishes.
// It's safe to call Stop multiple times and from within fn.
func (i *Interval) Stop() {
	if i == nil {
		return
	}
	i.once.Do(func() { close(i.stop) })
}

// Delay calls fn once after a duration unless stopped first.
type Delay struct {
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
	fired   bool
}

// NewDelay schedules fn to run after d.
func NewDelay(d time.Duration, fn func()) *Delay {
	delay := &Delay{}

	delay.mu.Lock()
	defer delay.mu.Unlock()

	delay.timer = time.AfterFunc(d, func() {
		delay.mu.Lock()
		if delay.stopped {
			delay.mu.Unlock()

			return
		}
		delay.fired = true
		delay.mu.Unlock()

		fn()
	})

	return delay
}

// Stop cancels the pending call and reports whether it did so.
// It's safe to call Stop multiple times.
func (d *Delay) Stop() bool {
	if d == nil {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || d.fired {
		return false
	}
	d.stopped = true
	d.timer.Stop()

	return true
}
