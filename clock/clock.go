// Package clock abstracts the wall clock and sleeping,
// so that pollers can be driven deterministically in tests.
package clock

import (
	"context"
	"sync"
	"time"
)

// WallClock is an interface wrapping basic Now method, which returns wall clock time.
// For real clock that wraps [time.Now], use [Real].
type WallClock interface {
	Now() time.Time
}

// Clock is a WallClock that can also wait.
type Clock interface {
	WallClock
	// Sleep blocks for d or until ctx is done, whichever comes first.
	// It returns ctx.Err() in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (c realClock) Now() time.Time {
	return time.Now()
}

func (c realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func Real() Clock {
	return realClock{}
}

// Fake is a Clock whose time only moves when told to.
// Sleep advances the fake time by the requested duration and returns immediately,
// recording every requested duration.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
	// OnSleep, if set, is called after each Sleep advanced the clock.
	OnSleep func(now time.Time)
}

func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	now, hook := c.now, c.OnSleep
	c.mu.Unlock()
	if hook != nil {
		hook(now)
	}
	return ctx.Err()
}

// Sleeps returns the durations passed to Sleep so far.
func (c *Fake) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}
