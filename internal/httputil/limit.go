package httputil

import (
	"encoding/json"
	"net/http"
	"sync"
)

// DefaultMaxTotal is the global cap on in-flight requests used by Limit.
const DefaultMaxTotal = 1000

// limiter counts in-flight requests per client and globally.
type limiter struct {
	mu       sync.Mutex
	inflight map[string]int
	total    int
	maxPerIP int
	maxTotal int
}

func newLimiter(maxPerIP, maxTotal int) *limiter {
	return &limiter{
		inflight: make(map[string]int),
		maxPerIP: maxPerIP,
		maxTotal: maxTotal,
	}
}

func (l *limiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.total >= l.maxTotal || l.inflight[ip] >= l.maxPerIP {
		return false
	}
	l.inflight[ip]++
	l.total++
	return true
}

func (l *limiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inflight[ip]--
	l.total--
	if l.inflight[ip] <= 0 {
		delete(l.inflight, ip)
	}
}

// Limit rejects a request with 429 while its client already has maxPerIP
// requests in flight, or the server has maxTotal. maxPerIP <= 0 disables
// the limit.
func Limit(maxPerIP, maxTotal int, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if maxPerIP <= 0 {
			return next
		}
		if maxTotal <= 0 {
			maxTotal = DefaultMaxTotal
		}
		l := newLimiter(maxPerIP, maxTotal)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r, trustProxy)
			if !l.acquire(ip) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{"error": "too many concurrent requests"})
				return
			}
			defer l.release(ip)
			next.ServeHTTP(w, r)
		})
	}
}
