package ratelimit

import (
	"sync"
	"time"
)

// pruneAfter is the idle period after which a bucket is dropped from
// the map.
const pruneAfter = 10 * time.Minute

type bucket struct {
	tokens float64
	last   time.Time
}

// Local is the in-process bucket map. Refill is computed lazily from
// elapsed monotonic time on each call; no ticker goroutine runs.
type Local struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

func NewLocal() *Local {
	return &Local{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Take attempts to remove cost tokens from the bucket for key. When
// the bucket holds too few, it reports the delay until enough tokens
// will have accrued. The second return is the token count remaining
// after a successful take, used by the hybrid tier's low-watermark
// check.
func (l *Local) Take(key string, limits Limits, cost int) (ok bool, retryAfter time.Duration, remaining float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	b, found := l.buckets[key]
	if !found {
		b = &bucket{tokens: float64(limits.Burst), last: now}
		l.buckets[key] = b
	} else {
		b.refill(now, limits)
	}

	if b.tokens >= float64(cost) {
		b.tokens -= float64(cost)
		return true, 0, b.tokens
	}

	deficit := float64(cost) - b.tokens
	return false, time.Duration(deficit / limits.RPS * float64(time.Second)), b.tokens
}

// Add credits tokens claimed from the global tier, capped at the
// bucket's burst size.
func (l *Local) Add(key string, limits Limits, n float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, found := l.buckets[key]
	if !found {
		b = &bucket{tokens: 0, last: now}
		l.buckets[key] = b
	}
	b.tokens += n
	if b.tokens > float64(limits.Burst) {
		b.tokens = float64(limits.Burst)
	}
}

func (b *bucket) refill(now time.Time, limits Limits) {
	elapsed := now.Sub(b.last).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * limits.RPS
	if b.tokens > float64(limits.Burst) {
		b.tokens = float64(limits.Burst)
	}
	b.last = now
}

func (l *Local) prune(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.last) > pruneAfter {
			delete(l.buckets, k)
		}
	}
}
