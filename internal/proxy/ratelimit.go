package proxy

import (
	"sync"
	"time"

	"github.com/raaihank/prompt-shield/internal/config"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*visitor

	stop     chan struct{}
	stopOnce sync.Once
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(cfg.RequestsPerSecond),
		burst:   burst,
		clients: make(map[string]*visitor),
		stop:    make(chan struct{}),
	}
}

// Allow reports whether a request from the given client may proceed
func (r *RateLimiter) Allow(clientIP string) bool {
	r.mu.Lock()
	v, ok := r.clients[clientIP]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.clients[clientIP] = v
	}
	v.lastSeen = time.Now()
	r.mu.Unlock()

	return v.limiter.Allow()
}

// Len returns the number of tracked clients
func (r *RateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// CleanupIdle forgets clients not seen within maxIdle and returns how many
// were removed
func (r *RateLimiter) CleanupIdle(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	removed := 0
	for ip, v := range r.clients {
		if v.lastSeen.Before(cutoff) {
			delete(r.clients, ip)
			removed++
		}
	}
	return removed
}

// StartCleanupRoutine periodically drops idle clients until Stop
func (r *RateLimiter) StartCleanupRoutine(maxIdle time.Duration) {
	go func() {
		ticker := time.NewTicker(maxIdle / 2)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.CleanupIdle(maxIdle)
			case <-r.stop:
				return
			}
		}
	}()
}

// Stop ends the cleanup routine
func (r *RateLimiter) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}
