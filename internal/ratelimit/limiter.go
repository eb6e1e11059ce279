// Package ratelimit implements reservoir quotas that refill on fixed intervals
// and can be chained, so a task runs only after every reservoir grants a slot.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BogdanTretyakov/sc-statistic-backend/internal/config"

	"github.com/jonboulle/clockwork"
)

// ErrNoReservoirs is returned by Acquire on a chain that could never grant a slot.
var ErrNoReservoirs = errors.New("rate limiter has no reservoirs")

type Reservoir struct {
	Name     string
	Capacity int
	Refill   int
	Interval time.Duration
}

type reservoir struct {
	Reservoir
	remaining  int
	nextRefill time.Time
}

// refill tops the reservoir up for every interval boundary passed by now.
// A reservoir without an interval never refills.
func (r *reservoir) refill(now time.Time) {
	if r.Interval <= 0 {
		return
	}
	for !now.Before(r.nextRefill) {
		r.remaining += r.Refill
		if r.remaining > r.Capacity {
			r.remaining = r.Capacity
		}
		r.nextRefill = r.nextRefill.Add(r.Interval)
	}
}

// Limiter is a chain of reservoirs. The zero value is not usable.
type Limiter struct {
	mu         sync.Mutex
	clock      clockwork.Clock
	reservoirs []*reservoir
}

func New(clock clockwork.Clock, reservoirs ...Reservoir) *Limiter {
	now := clock.Now()
	l := &Limiter{clock: clock}
	for _, cfg := range reservoirs {
		l.reservoirs = append(l.reservoirs, &reservoir{
			Reservoir:  cfg,
			remaining:  cfg.Capacity,
			nextRefill: now.Add(cfg.Interval),
		})
	}
	return l
}

// NewReplayLimiter builds the hour and day quota chain of the replay API.
func NewReplayLimiter(cfg *config.Config, clock clockwork.Clock) *Limiter {
	return New(clock,
		Reservoir{Name: "hour", Capacity: cfg.ReplaysPerHour, Refill: cfg.ReplaysPerHour, Interval: time.Hour},
		Reservoir{Name: "day", Capacity: cfg.ReplaysPerDay, Refill: cfg.ReplaysPerDay, Interval: 24 * time.Hour},
	)
}

// Remaining reports the smallest remaining capacity across the chain.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.remainingLocked(l.clock.Now())
}

func (l *Limiter) remainingLocked(now time.Time) int {
	if len(l.reservoirs) == 0 {
		return 0
	}
	lowest := -1
	for _, r := range l.reservoirs {
		r.refill(now)
		if lowest < 0 || r.remaining < lowest {
			lowest = r.remaining
		}
	}
	return lowest
}

// Snapshot returns the remaining capacity of each reservoir by name.
func (l *Limiter) Snapshot() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	out := make(map[string]int, len(l.reservoirs))
	for _, r := range l.reservoirs {
		r.refill(now)
		out[r.Name] = r.remaining
	}
	return out
}

// Acquire blocks until every reservoir has a slot and takes one from each.
func (l *Limiter) Acquire(ctx context.Context) error {
	if len(l.reservoirs) == 0 {
		return ErrNoReservoirs
	}
	for {
		wait, ok := l.tryAcquire()
		if ok {
			return nil
		}
		if wait <= 0 {
			// exhausted by a reservoir that never refills
			<-ctx.Done()
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(wait):
		}
	}
}

func (l *Limiter) tryAcquire() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if l.remainingLocked(now) > 0 {
		for _, r := range l.reservoirs {
			r.remaining--
		}
		return 0, true
	}

	// every exhausted reservoir has to refill before a slot exists
	var until time.Time
	for _, r := range l.reservoirs {
		if r.remaining <= 0 && r.nextRefill.After(until) {
			until = r.nextRefill
		}
	}
	return until.Sub(now), false
}

// Schedule runs task once a slot is acquired from every reservoir.
func (l *Limiter) Schedule(ctx context.Context, task func(context.Context) error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	return task(ctx)
}
