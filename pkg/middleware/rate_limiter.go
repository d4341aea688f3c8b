package middleware

import (
	"log"
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimiter is a fixed-window request counter per client IP.
type RateLimiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	requests  map[string]int
	lastReset time.Time
	now       func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:     limit,
		window:    window,
		requests:  make(map[string]int),
		lastReset: time.Now(),
		now:       time.Now,
	}
}

func (r *RateLimiter) Allow(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A new window drops every counter, so the map never outgrows one window of clients.
	if now := r.now(); now.Sub(r.lastReset) > r.window {
		r.requests = make(map[string]int)
		r.lastReset = now
	}

	count := r.requests[ip]
	if count >= r.limit {
		return false
	}
	r.requests[ip] = count + 1
	return true
}

func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ip := clientIP(req)
		if !r.Allow(ip) {
			log.Printf("Rate limit exceeded for IP: %s on %s", ip, req.URL.Path)
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// clientIP strips the port from RemoteAddr. chi's RealIP middleware, when mounted,
// has already replaced RemoteAddr with the forwarded address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
