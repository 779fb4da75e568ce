package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func limitedHandler(rl *RateLimiter) http.Handler {
	return rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func send(h http.Handler, method, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/api/clients", nil)
	req.RemoteAddr = ip + ":4000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_MutatingRequests(t *testing.T) {
	// GIVEN: 3 mutating requests per minute, frozen clock
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(3, time.Minute)
	rl.now = func() time.Time { return now }
	h := limitedHandler(rl)

	// WHEN: the same IP sends 4 POSTs
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, send(h, http.MethodPost, "10.0.0.1").Code, "request %d", i)
	}
	rec := send(h, http.MethodPost, "10.0.0.1")

	// THEN: the 4th is rejected with Retry-After
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// AND: reads and other clients are unaffected
	assert.Equal(t, http.StatusOK, send(h, http.MethodGet, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, send(h, http.MethodDelete, "10.0.0.2").Code)

	// AND: a full window later the client is allowed again
	now = now.Add(time.Minute)
	assert.Equal(t, http.StatusOK, send(h, http.MethodPut, "10.0.0.1").Code)
}

func TestRateLimiter_CapHoldsForSpreadRequests(t *testing.T) {
	// GIVEN: 10 mutating requests per 10 minutes
	start := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	now := start
	rl := NewRateLimiter(10, 10*time.Minute)
	rl.now = func() time.Time { return now }
	h := limitedHandler(rl)

	// WHEN: one POST per second for 20 minutes
	var accepted []time.Duration
	for i := 0; i < 1200; i++ {
		now = start.Add(time.Duration(i) * time.Second)
		if send(h, http.MethodPost, "10.0.0.1").Code == http.StatusOK {
			accepted = append(accepted, now.Sub(start))
		}
	}

	// THEN: no 10-minute interval holds more than 10 accepted requests
	for i := range accepted {
		in := 0
		for _, at := range accepted[i:] {
			if at-accepted[i] < 10*time.Minute {
				in++
			}
		}
		assert.LessOrEqual(t, in, 10, "window starting at %s", accepted[i])
	}
	// AND: the budget comes back as old requests age out
	assert.Len(t, accepted, 20)
	assert.Equal(t, 10*time.Minute, accepted[10])
}

func TestRateLimiter_RetryAfterCountsDownToOldestRequest(t *testing.T) {
	start := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	now := start
	rl := NewRateLimiter(2, 10*time.Minute)
	rl.now = func() time.Time { return now }
	h := limitedHandler(rl)

	send(h, http.MethodPost, "10.0.0.1")
	now = start.Add(time.Minute)
	send(h, http.MethodPost, "10.0.0.1")
	now = start.Add(4*time.Minute + 500*time.Millisecond)

	rec := send(h, http.MethodPost, "10.0.0.1")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "360", rec.Header().Get("Retry-After")) // 359.5s, rounded up
}

func TestRateLimiter_ThroughRouter(t *testing.T) {
	ts := newTestServer(t, RouterConfig{RateLimit: 2, RateWindow: time.Hour})

	ts.createClient("a", 1)
	ts.createClient("b", 1)
	rec := ts.do(http.MethodPost, "/api/clients", ClientRequest{ID: "c", Name: "C", CycleDate: 1, StatementCreateDate: 1})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/clients", nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/health", nil).Code)
}

func TestIsMutating(t *testing.T) {
	for method, want := range map[string]bool{
		http.MethodGet:     false,
		http.MethodHead:    false,
		http.MethodOptions: false,
		http.MethodPost:    true,
		http.MethodPut:     true,
		http.MethodPatch:   true,
		http.MethodDelete:  true,
	} {
		assert.Equal(t, want, isMutating(method), method)
	}
}
