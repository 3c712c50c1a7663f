package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces out page interactions
type Pacer interface {
	// Pause blocks for the next pacing interval or until ctx ends
	Pause(ctx context.Context) error
}

// Jitter pauses for a random duration in [Min, Max] and, when a rate is set,
// additionally caps how many pauses may complete per minute.
type Jitter struct {
	min     time.Duration
	max     time.Duration
	limiter *rate.Limiter

	mu  sync.Mutex
	rng *rand.Rand
}

// NewJitter creates a pacer with a random delay between min and max.
// perMinute > 0 also enforces a sustained rate with a burst of one.
func NewJitter(min, max time.Duration, perMinute int) *Jitter {
	if max < min {
		max = min
	}
	j := &Jitter{
		min: min,
		max: max,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if perMinute > 0 {
		j.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
	return j
}

// Pause waits for the rate limiter, then sleeps a random delay
func (j *Jitter) Pause(ctx context.Context) error {
	if j.limiter != nil {
		if err := j.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	d := j.Next()
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next random delay without sleeping
func (j *Jitter) Next() time.Duration {
	if j.max <= j.min {
		return j.min
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.min + time.Duration(j.rng.Int63n(int64(j.max-j.min)+1))
}

// NoPause is a Pacer that never waits
type NoPause struct{}

// Pause returns immediately
func (NoPause) Pause(ctx context.Context) error { return ctx.Err() }
