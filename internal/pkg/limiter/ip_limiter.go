/*
Package limiter provides rate limiting functionality based on client IP addresses.

It utilizes the Token Bucket algorithm (rate.Limiter) to control the request frequency
for each client IP address and includes a cleanup goroutine to periodically remove
inactive limiters, preventing memory leaks.
*/
package limiter

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"cycleconnect/internal/pkg/errs"
	"cycleconnect/internal/pkg/logx"
	"cycleconnect/internal/pkg/resp"

	"golang.org/x/time/rate"
)

const cleanupInterval = 3 * time.Minute

// IPRateLimiter implements a rate limiter keyed by client IP address.
type IPRateLimiter struct {
	// mu protects concurrent access to the limits map.
	mu sync.RWMutex

	// limits stores the map from client IP address to its *rate.Limiter.
	limits map[string]*rate.Limiter

	// r is the refill rate of each bucket, in events per second.
	r rate.Limit

	// b is the bucket size, i.e. the maximum burst of requests allowed.
	b int

	// retryAfter is reported to throttled clients in the Retry-After header.
	retryAfter time.Duration
}

// NewIPRateLimiter creates an IPRateLimiter with rate r and burst b.
// The cleanup goroutine stops when ctx is done.
func NewIPRateLimiter(ctx context.Context, r rate.Limit, b int) *IPRateLimiter {
	i := &IPRateLimiter{
		limits: make(map[string]*rate.Limiter),
		r:      r,
		b:      b,
	}

	if r > 0 {
		i.retryAfter = time.Duration(float64(time.Second) / float64(r))
	}

	go i.cleanUpVisitors(ctx)

	return i
}

// NewWindowLimiter builds a limiter allowing max requests per window, refilled continuously.
// A fixed quota of 100 requests per 15 minutes becomes a bucket of 100 refilled at 100/15min.
func NewWindowLimiter(ctx context.Context, max int, window time.Duration) *IPRateLimiter {
	if max <= 0 || window <= 0 {
		return NewIPRateLimiter(ctx, rate.Inf, 0)
	}
	return NewIPRateLimiter(ctx, rate.Limit(float64(max)/window.Seconds()), max)
}

// GetLimiter retrieves the rate limiter for the given IP address, creating it on first use.
// It uses double-checked locking so that concurrent first requests share one limiter.
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.RLock()
	limiter, exists := i.limits[ip]
	i.mu.RUnlock()

	if !exists {
		i.mu.Lock()
		limiter, exists = i.limits[ip]
		if !exists {
			limiter = rate.NewLimiter(i.r, i.b)
			i.limits[ip] = limiter
		}
		i.mu.Unlock()
	}

	return limiter
}

// Allow reports whether a request from ip may proceed now.
func (i *IPRateLimiter) Allow(ip string) bool {
	return i.GetLimiter(ip).Allow()
}

// cleanUpVisitors periodically removes limiters whose bucket is full again,
// which means the client has been idle long enough to be forgotten.
func (i *IPRateLimiter) cleanUpVisitors(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			i.mu.Lock()
			count := 0
			for ip, limiter := range i.limits {
				if limiter.TokensAt(time.Now()) >= float64(limiter.Burst()) {
					delete(i.limits, ip)
					count++
				}
			}
			remaining := len(i.limits)
			i.mu.Unlock()

			if count > 0 {
				logx.Debug("Rate limiter cleanup finished", "removed", count, "active", remaining)
			}
		}
	}
}

// ClientIP returns the host part of r.RemoteAddr, which chi's RealIP middleware
// has already rewritten from X-Forwarded-For when present.
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}

	if ip == "" {
		ip = "unknown_ip"
	}
	return ip
}

// Middleware returns an HTTP middleware that rate limits incoming requests.
// Requests over the limit get 429 Too Many Requests with a RateLimitError body.
func (i *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !i.Allow(ClientIP(r)) {
			if i.retryAfter > 0 {
				secs := int(i.retryAfter.Seconds())
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
			}
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		next.ServeHTTP(w, r)
	})
}
