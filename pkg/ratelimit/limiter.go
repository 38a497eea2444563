package ratelimit

import (
	"sync"
	"time"
)

const (
	DefaultMaxRequests = 100
	DefaultWindow      = 60 * time.Second
	DefaultSweepEvery  = 5 * time.Minute
)

type Config struct {
	MaxRequests int           `split_words:"true" default:"100"`
	Window      time.Duration `split_words:"true" default:"60s"`
	SweepEvery  time.Duration `split_words:"true" default:"5m"`
}

// Limiter enforces a sliding-window admission limit per caller key. The
// window trails "now": timestamps older than now-window are discarded before
// counting, so the limit holds over any trailing span, not fixed clock
// buckets. Stale keys are pruned lazily, at most once per sweep interval.
type Limiter struct {
	maxRequests int
	window      time.Duration
	sweepEvery  time.Duration

	mu        sync.Mutex
	entries   map[string]*entry
	lastSweep time.Time

	now func() time.Time
}

// entry holds the admitted timestamps for one key. Each entry carries its own
// lock so admission checks for distinct keys never contend. dead marks an
// entry the sweep has removed from the map; admissions must never land on it.
type entry struct {
	mu     sync.Mutex
	stamps []time.Time
	dead   bool
}

type Option func(*Limiter)

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

func New(cfg Config, opts ...Option) *Limiter {
	maxRequests := cfg.MaxRequests
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	sweepEvery := cfg.SweepEvery
	if sweepEvery <= 0 {
		sweepEvery = DefaultSweepEvery
	}

	l := &Limiter{
		maxRequests: maxRequests,
		window:      window,
		sweepEvery:  sweepEvery,
		entries:     make(map[string]*entry),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastSweep = l.now()
	return l
}

// Allow reports whether a request for key is admitted now. Admission records
// the timestamp; rejection has no side effects.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	windowStart := now.Add(-l.window)

	for {
		ent := l.entryFor(key, now)

		ent.mu.Lock()
		if ent.dead {
			// The sweep removed this entry between the map lookup and
			// taking its lock; recording here would orphan the stamp.
			ent.mu.Unlock()
			continue
		}

		ent.stamps = trimBefore(ent.stamps, windowStart)
		if len(ent.stamps) >= l.maxRequests {
			ent.mu.Unlock()
			return false
		}
		ent.stamps = append(ent.stamps, now)
		ent.mu.Unlock()
		return true
	}
}

func (l *Limiter) entryFor(key string, now time.Time) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.sweepEvery {
		l.lastSweep = now
		l.sweepLocked(now)
	}

	ent, ok := l.entries[key]
	if !ok {
		ent = &entry{}
		l.entries[key] = ent
	}
	return ent
}

// sweepLocked drops keys whose newest admission already fell out of the
// window. Keys seen once by many distinct callers would otherwise grow the
// map without bound.
func (l *Limiter) sweepLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	for key, ent := range l.entries {
		ent.mu.Lock()
		stale := len(ent.stamps) == 0 || ent.stamps[len(ent.stamps)-1].Before(cutoff)
		if stale {
			ent.dead = true
			delete(l.entries, key)
		}
		ent.mu.Unlock()
	}
}

func trimBefore(stamps []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(stamps) && !stamps[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[idx:]...)
}
