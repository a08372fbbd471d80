// Package clock abstracts monotonic time so timing-sensitive code can be
// driven by a fake in tests.
package clock

import (
	"sync"
	"time"
)

// Clock is the time source used by the control loop and its components.
//
// Durations must be computed with Time.Sub on values returned by Now so the
// monotonic reading is used.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

// Real returns the process clock.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// Fake is a manually advanced clock. Sleep advances the clock instead of
// blocking, so patterns and deadlines complete instantly in tests.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	slept  time.Duration
	onTick func(time.Time)
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	f.mu.Lock()
	f.slept += d
	f.mu.Unlock()
	f.Advance(d)
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	hook := f.onTick
	f.mu.Unlock()
	if hook != nil {
		hook(now)
	}
}

// Slept reports the total duration passed to Sleep.
func (f *Fake) Slept() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slept
}

// OnAdvance registers a hook called after every advance.
func (f *Fake) OnAdvance(fn func(now time.Time)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onTick = fn
}
