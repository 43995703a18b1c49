package castauth

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genproto/googleapis/rpc/code"
	"google.golang.org/grpc/codes"
)

// ReasonRateLimited identifies responses rejected by a route rate limit.
const ReasonRateLimited = "RATE_LIMITED"

// How long an idle client's limiter is retained before being swept.
const limiterIdleTTL = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter tracks a token bucket per client IP for a single route.
type ipRateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	limit     rate.Limit
	burst     int
	lastSweep time.Time
}

func newIPRateLimiter(perMinute int) *ipRateLimiter {
	return &ipRateLimiter{
		clients:   map[string]*clientLimiter{},
		limit:     rate.Limit(float64(perMinute) / 60.0),
		burst:     perMinute,
		lastSweep: time.Now(),
	}
}

func (rl *ipRateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastSweep) > limiterIdleTTL {
		for k, c := range rl.clients {
			if now.Sub(c.lastSeen) > limiterIdleTTL {
				delete(rl.clients, k)
			}
		}
		rl.lastSweep = now
	}

	c, ok := rl.clients[ip]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter.Allow()
}

// rateLimit wraps a handler with a per-client-IP request limit. Rejected
// requests receive a 429 with the standard error envelope.
func rateLimit(next http.Handler, perMinute int) http.Handler {
	rl := newIPRateLimiter(perMinute)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIP(r)) {
			b, _ := json.MarshalIndent(&ErrorResponse{
				Code:     int32(codes.ResourceExhausted),
				CodeName: code.Code_name[int32(codes.ResourceExhausted)],
				Reason:   ReasonRateLimited,
				Message:  "too many requests, please retry later",
			}, "", "  ")
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write(b)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP resolves the originating client address, preferring proxy headers
// when present.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First hop is the originating client.
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return xff[:i]
			}
		}
		return xff
	}
	if rip := r.Header.Get("X-Real-Ip"); rip != "" {
		return rip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
