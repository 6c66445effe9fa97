// Package ratelimit throttles callers of the message service with per-client
// token buckets.
package ratelimit

import (
	"strings"
	"sync"
	"time"
)

// Rule limits one method and path. A Path ending in "/" matches by prefix.
// A Limit of zero or less means unlimited.
type Rule struct {
	Method string
	Path   string
	Limit  int
	Window time.Duration
	Burst  int
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	Default         Rule
	Rules           []Rule
	Exempt          []string
	Blocked         []string
	CleanupInterval time.Duration
	IdleTTL         time.Duration
}

// DefaultRules limits message generation and leaves health checks open.
func DefaultRules() []Rule {
	return []Rule{
		{Method: "GET", Path: "/health"},
		{Method: "POST", Path: "/messages", Limit: 30, Window: time.Minute, Burst: 5},
	}
}

// DefaultConfig returns an enabled limiter configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		Default:         Rule{Limit: 300, Window: time.Minute},
		Rules:           DefaultRules(),
		CleanupInterval: 5 * time.Minute,
		IdleTTL:         time.Hour,
	}
}

// Match returns the rule for method and path, exact matches first.
func Match(method, path string, rules []Rule) (Rule, bool) {
	for _, r := range rules {
		if r.Method == method && r.Path == path {
			return r, true
		}
	}
	for _, r := range rules {
		if r.Method == method && strings.HasSuffix(r.Path, "/") && strings.HasPrefix(path, r.Path) {
			return r, true
		}
	}
	return Rule{}, false
}

// Info describes the outcome of one Allow call.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

type bucket struct {
	mu       sync.Mutex
	capacity float64
	rate     float64 // tokens per second
	tokens   float64
	last     time.Time
}

func newBucket(r Rule, now time.Time) *bucket {
	capacity := r.Burst
	if capacity <= 0 {
		capacity = r.Limit
	}
	return &bucket{
		capacity: float64(capacity),
		rate:     float64(r.Limit) / r.Window.Seconds(),
		tokens:   float64(capacity),
		last:     now,
	}
}

// take refills, then consumes a token if one is available. retry is the wait
// until the next token when none was.
func (b *bucket) take(now time.Time) (ok bool, remaining int, reset time.Time, retry time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens = min(b.capacity, b.tokens+now.Sub(b.last).Seconds()*b.rate)
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		ok = true
	} else {
		retry = time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
	}
	reset = now
	if missing := b.capacity - b.tokens; missing > 0 {
		reset = now.Add(time.Duration(missing / b.rate * float64(time.Second)))
	}
	return ok, int(b.tokens), reset, retry
}

type entry struct {
	bucket *bucket
	seen   time.Time
}

// Limiter keeps one bucket per client, method and path.
type Limiter struct {
	config  Config
	exempt  map[string]bool
	blocked map[string]bool
	now     func() time.Time

	mu      sync.Mutex
	buckets map[string]*entry

	stop     chan struct{}
	stopOnce sync.Once
}

// NewLimiter creates a limiter and starts idle-bucket cleanup when enabled.
func NewLimiter(config Config) *Limiter {
	l := &Limiter{
		config:  config,
		exempt:  toSet(config.Exempt),
		blocked: toSet(config.Blocked),
		now:     time.Now,
		buckets: make(map[string]*entry),
		stop:    make(chan struct{}),
	}
	if config.Enabled && config.CleanupInterval > 0 {
		go l.cleanupLoop(config.CleanupInterval)
	}
	return l
}

// Allow reports whether clientID may call method on path.
func (l *Limiter) Allow(clientID, method, path string) Info {
	if !l.config.Enabled || l.exempt[clientID] {
		return Info{Allowed: true}
	}
	if l.blocked[clientID] {
		return Info{Allowed: false}
	}

	rule, ok := Match(method, path, l.config.Rules)
	if !ok {
		rule = l.config.Default
	}
	if rule.Limit <= 0 || rule.Window <= 0 {
		return Info{Allowed: true}
	}

	now := l.now()
	key := clientID + " " + method + " " + path

	l.mu.Lock()
	e, ok := l.buckets[key]
	if !ok {
		e = &entry{bucket: newBucket(rule, now)}
		l.buckets[key] = e
	}
	e.seen = now
	l.mu.Unlock()

	allowed, remaining, reset, retry := e.bucket.take(now)
	return Info{
		Allowed:    allowed,
		Limit:      rule.Limit,
		Remaining:  remaining,
		ResetTime:  reset,
		RetryAfter: retry,
	}
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.prune()
		case <-l.stop:
			return
		}
	}
}

// prune drops buckets idle for longer than IdleTTL.
func (l *Limiter) prune() {
	ttl := l.config.IdleTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	cutoff := l.now().Add(-ttl)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, e := range l.buckets {
		if e.seen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// Stop ends the cleanup goroutine.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			set[item] = true
		}
	}
	return set
}
