// Package ratelimit keeps abusive clients from burning model budget: every
// inbound message fans out into several LLM calls, so the message endpoints
// get much tighter token buckets than plain reads.
package ratelimit

import (
	"sync"
	"time"
)

// defaultStaleAfter is how long a client bucket may sit idle before the
// janitor drops it.
const defaultStaleAfter = time.Hour

// bucket is a token bucket. It starts full, so a quiet client always has its
// burst available.
type bucket struct {
	mu        sync.Mutex
	burst     float64
	perSecond float64
	level     float64
	refilled  time.Time
}

func newBucket(burst int, perSecond float64) *bucket {
	return &bucket{
		burst:     float64(burst),
		perSecond: perSecond,
		level:     float64(burst),
		refilled:  time.Now(),
	}
}

// refill tops the bucket up for the time elapsed. Callers hold mu.
func (b *bucket) refill(now time.Time) {
	b.level = min(b.burst, b.level+now.Sub(b.refilled).Seconds()*b.perSecond)
	b.refilled = now
}

// take consumes one token if available.
func (b *bucket) take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(time.Now())
	if b.level < 1 {
		return false
	}
	b.level--
	return true
}

// peek reports the remaining whole tokens and when the bucket will be full.
func (b *bucket) peek() (remaining int, fullAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	b.refill(now)
	fullAt = now
	if b.level < b.burst {
		wait := (b.burst - b.level) / b.perSecond
		fullAt = now.Add(time.Duration(wait * float64(time.Second)))
	}
	return int(b.level), fullAt
}

// Info describes the limiter's verdict for one request; it feeds the
// X-RateLimit response headers.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	Whitelist       map[string]bool
	Blacklist       map[string]bool
	EndpointConfigs []EndpointConfig
}

// entry pairs a client's bucket with its last activity, so idle clients can
// be pruned.
type entry struct {
	b        *bucket
	lastSeen time.Time
}

// Limiter enforces per-client, per-endpoint token buckets.
type Limiter struct {
	mu         sync.Mutex
	entries    map[string]*entry
	config     *Config
	staleAfter time.Duration
	janitor    *time.Ticker
	stop       chan struct{}
}

// NewLimiter creates a limiter and, when cleanup is configured, starts the
// background janitor that prunes idle client buckets.
func NewLimiter(config *Config) *Limiter {
	if config == nil {
		config = &Config{
			Enabled:         true,
			DefaultLimit:    1000,
			DefaultWindow:   time.Minute,
			CleanupInterval: 5 * time.Minute,
		}
	}

	l := &Limiter{
		entries:    make(map[string]*entry),
		config:     config,
		staleAfter: defaultStaleAfter,
	}

	if config.Enabled && config.CleanupInterval > 0 {
		l.janitor = time.NewTicker(config.CleanupInterval)
		l.stop = make(chan struct{})
		go l.run()
	}

	return l
}

// Allow decides whether one request from clientID against method+path goes
// through, and reports the bucket state for the response headers.
func (l *Limiter) Allow(clientID, path, method string) (bool, Info) {
	if !l.config.Enabled || l.config.Whitelist[clientID] {
		return true, Info{Allowed: true}
	}
	if l.config.Blacklist[clientID] {
		return false, Info{}
	}

	ec := resolveEndpoint(path, method, l.config.EndpointConfigs)
	if ec == nil {
		ec = &EndpointConfig{
			Limit:  l.config.DefaultLimit,
			Window: l.config.DefaultWindow,
		}
	}
	if ec.Limit <= 0 {
		// Unlimited endpoint, e.g. the health check.
		return true, Info{Allowed: true}
	}

	burst := ec.Burst
	if burst <= 0 {
		burst = ec.Limit
	}
	b := l.bucketFor(clientID+" "+method+" "+path, ec, burst)

	allowed := b.take()
	remaining, fullAt := b.peek()

	info := Info{
		Allowed:   allowed,
		Limit:     ec.Limit,
		Remaining: remaining,
		ResetTime: fullAt,
	}
	if !allowed {
		if wait := time.Until(fullAt); wait > 0 {
			info.RetryAfter = wait
		}
	}
	return allowed, info
}

// bucketFor returns the client+endpoint bucket, creating it on first use,
// and stamps the entry's last activity.
func (l *Limiter) bucketFor(key string, ec *EndpointConfig, burst int) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &entry{b: newBucket(burst, float64(ec.Limit)/ec.Window.Seconds())}
		l.entries[key] = e
	}
	e.lastSeen = time.Now()
	return e.b
}

// run drives the periodic pruning until Stop.
func (l *Limiter) run() {
	for {
		select {
		case <-l.janitor.C:
			l.prune()
		case <-l.stop:
			return
		}
	}
}

// prune drops buckets whose clients have gone quiet.
func (l *Limiter) prune() {
	cutoff := time.Now().Add(-l.staleAfter)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}

// Stop shuts down the janitor goroutine.
func (l *Limiter) Stop() {
	if l.janitor != nil {
		l.janitor.Stop()
	}
	if l.stop != nil {
		close(l.stop)
	}
}
