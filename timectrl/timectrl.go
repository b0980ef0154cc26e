package timectrl

import (
	"sync"
	"time"
)

// Clock is the time source used by reconcilers and poll loops. Entity ages
// and poll delays are measured against it so tests can drive time manually.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// After returns a channel that receives the current time once d has
	// elapsed on this clock.
	After(d time.Duration) <-chan time.Time
}

// RealClock reads the process wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Mode describes how the TimeController advances time.
type Mode int

const (
	// RealTime advances according to wall-clock time.
	RealTime Mode = iota
	// Accelerated advances as quickly as the loop can run while still stepping by Tick.
	Accelerated
)

type waiter struct {
	deadline time.Time
	ch       chan time.Time
}

// TimeController drives a synthetic clock in fixed ticks and notifies
// registered listeners. It implements Clock; After channels fire when the
// controller's time reaches their deadline.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time
	waiters     []waiter

	listeners []func(time.Time)
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the controller's current time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime moves the controller to t and fires any After channels whose
// deadline has been reached.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	tc.currentTime = t
	due := tc.takeDueLocked(t)
	tc.mu.Unlock()

	for _, w := range due {
		w.ch <- t
	}
}

// After returns a channel that fires once the controller's time has advanced
// by d. A non-positive d fires immediately.
func (tc *TimeController) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if d <= 0 {
		ch <- tc.currentTime
		return ch
	}
	tc.waiters = append(tc.waiters, waiter{deadline: tc.currentTime.Add(d), ch: ch})
	return ch
}

func (tc *TimeController) takeDueLocked(now time.Time) []waiter {
	var due []waiter
	kept := tc.waiters[:0]
	for _, w := range tc.waiters {
		if !w.deadline.After(now) {
			due = append(due, w)
			continue
		}
		kept = append(kept, w)
	}
	tc.waiters = kept
	return due
}

// AddListener registers a callback invoked on every tick.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Start runs the controller for the specified duration in a separate goroutine.
// A non-positive duration runs until stop is closed. The returned channel is
// closed when the controller finishes.
func (tc *TimeController) Start(duration time.Duration, stop <-chan struct{}) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		tc.SetTime(tc.StartTime)
		simTime := tc.StartTime
		elapsed := time.Duration(0)

		// In both modes we use a ticker for simplicity and determinism.
		ticker := time.NewTicker(tc.Tick)
		defer ticker.Stop()

		for {
			if duration > 0 && elapsed >= duration {
				return
			}

			select {
			case <-stop:
				return
			case <-ticker.C:
			}
			simTime = simTime.Add(tc.Tick)
			elapsed += tc.Tick

			tc.SetTime(simTime)

			tc.mu.RLock()
			listeners := append([]func(time.Time){}, tc.listeners...)
			tc.mu.RUnlock()
			for _, fn := range listeners {
				fn(simTime)
			}
		}
	}()
	return done
}
