package api

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// =============================================================================
// RATE LIMITING - Per client IP, mutating methods only
// =============================================================================

// RateLimiter allows at most requests mutating calls per client IP in any
// window-long interval. Reads are never limited.
//
// Each IP keeps the times of its accepted calls inside the current window,
// oldest first; a call is accepted while fewer than requests remain.
type RateLimiter struct {
	requests int
	window   time.Duration
	now      func() time.Time

	mu      sync.Mutex
	clients map[string][]time.Time
}

// NewRateLimiter creates a sliding-window limiter.
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: requests,
		window:   window,
		now:      time.Now,
		clients:  make(map[string][]time.Time),
	}
}

// allow records a call from ip if it fits the window. When it does not,
// the returned duration is the wait until the oldest call expires.
func (rl *RateLimiter) allow(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, hits := range rl.clients {
		if live := rl.expire(hits, now); len(live) > 0 {
			rl.clients[key] = live
		} else {
			delete(rl.clients, key)
		}
	}

	hits := rl.clients[ip]
	if len(hits) >= rl.requests {
		return false, hits[0].Add(rl.window).Sub(now)
	}
	rl.clients[ip] = append(hits, now)
	return true, 0
}

// expire drops calls at least one window old.
func (rl *RateLimiter) expire(hits []time.Time, now time.Time) []time.Time {
	i := 0
	for i < len(hits) && now.Sub(hits[i]) >= rl.window {
		i++
	}
	return hits[i:]
}

// Middleware rejects mutating requests over the limit with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isMutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		ok, wait := rl.allow(clientIP(r))
		if ok {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
		writeError(w, http.StatusTooManyRequests, "Too many requests, try again later", nil)
	})
}

func retryAfterSeconds(wait time.Duration) int {
	return max(1, int(math.Ceil(wait.Seconds())))
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// clientIP strips the port. chi's RealIP middleware has already applied
// X-Forwarded-For / X-Real-IP to RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
