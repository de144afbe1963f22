package auth

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimiter counts attempts per key inside a sliding window.
type RateLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	now      func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{attempts: make(map[string][]time.Time), now: time.Now}
}

// CheckLimit records an attempt for key, or returns an error when key already
// used maxAttempts within window.
func (rl *RateLimiter) CheckLimit(key string, maxAttempts int, window time.Duration) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	var recent []time.Time
	for _, t := range rl.attempts[key] {
		if now.Sub(t) < window {
			recent = append(recent, t)
		}
	}
	if len(recent) >= maxAttempts {
		rl.attempts[key] = recent
		return fmt.Errorf("too many attempts, try again in %v", window)
	}
	rl.attempts[key] = append(recent, now)
	return nil
}

// Cleanup drops keys with no attempt newer than maxAge.
func (rl *RateLimiter) Cleanup(maxAge time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, attempts := range rl.attempts {
		var recent []time.Time
		for _, t := range attempts {
			if now.Sub(t) < maxAge {
				recent = append(recent, t)
			}
		}
		if len(recent) == 0 {
			delete(rl.attempts, key)
		} else {
			rl.attempts[key] = recent
		}
	}
}

// ClientIP extracts the client IP address from the request.
// Checks X-Forwarded-For (first IP), X-Real-IP, then RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0]); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
