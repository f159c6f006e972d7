package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces outbound requests. Wait blocks until a request may proceed
// or ctx is done.
type Limiter interface {
	Allow() bool
	Wait(ctx context.Context) error
	Reset()
}

// bucket wraps rate.Limiter so Reset can restore a full bucket
type bucket struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	limiter *rate.Limiter
}

func newBucket(limit rate.Limit, burst int) *bucket {
	if burst < 1 {
		burst = 1
	}
	return &bucket{limit: limit, burst: burst, limiter: rate.NewLimiter(limit, burst)}
}

func (b *bucket) current() *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limiter
}

func (b *bucket) Allow() bool {
	return b.current().Allow()
}

func (b *bucket) Wait(ctx context.Context) error {
	return b.current().Wait(ctx)
}

func (b *bucket) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limiter = rate.NewLimiter(b.limit, b.burst)
}

// Interval enforces a minimum delay between consecutive requests across
// every goroutine sharing it
type Interval struct {
	*bucket
	every time.Duration
}

// NewInterval creates a limiter that admits one request per every
func NewInterval(every time.Duration) *Interval {
	return &Interval{bucket: newBucket(rate.Every(every), 1), every: every}
}

// Every returns the configured minimum spacing
func (i *Interval) Every() time.Duration {
	return i.every
}

// TokenBucket admits bursts of up to capacity requests, refilling capacity
// tokens per refillPeriod
type TokenBucket struct {
	*bucket
}

// NewTokenBucket creates a new token bucket rate limiter
func NewTokenBucket(capacity int, refillPeriod time.Duration) *TokenBucket {
	limit := rate.Limit(float64(capacity) / refillPeriod.Seconds())
	return &TokenBucket{bucket: newBucket(limit, capacity)}
}

// Unlimited never blocks
type Unlimited struct{}

func (Unlimited) Allow() bool                  { return true }
func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
func (Unlimited) Reset()                       {}

// Chain waits on every limiter in order
type Chain []Limiter

func (c Chain) Allow() bool {
	for _, l := range c {
		if !l.Allow() {
			return false
		}
	}
	return true
}

func (c Chain) Wait(ctx context.Context) error {
	for _, l := range c {
		if err := l.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c Chain) Reset() {
	for _, l := range c {
		l.Reset()
	}
}
