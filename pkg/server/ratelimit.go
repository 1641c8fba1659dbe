package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter hands out one token bucket per client address. Buckets idle
// past the eviction window are dropped so the map never grows with dead
// clients.
type rateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	limit   rate.Limit
	burst   int
}

type clientBucket struct {
	*rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(limit rate.Limit, burst int) *rateLimiter {
	rl := &rateLimiter{
		clients: make(map[string]*clientBucket),
		limit:   limit,
		burst:   burst,
	}
	go rl.evict()
	return rl
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	bucket, ok := rl.clients[key]
	if !ok {
		bucket = &clientBucket{Limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = bucket
	}
	bucket.lastSeen = time.Now()
	return bucket.Allow()
}

func (rl *rateLimiter) evict() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-3 * time.Minute)
		rl.mu.Lock()
		for key, bucket := range rl.clients {
			if bucket.lastSeen.Before(cutoff) {
				delete(rl.clients, key)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientKey(r)) {
			writeJSON(w, http.StatusTooManyRequests, errorBody{
				Error: "rate_limited", Message: "too many requests",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey is the remote host. RealIP middleware has already unwrapped
// proxy headers by the time this runs.
func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
