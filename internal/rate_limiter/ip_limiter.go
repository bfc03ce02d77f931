// Package ratelimiter throttles requests per client IP.
package ratelimiter

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	viewAuth "github.com/johndosdos/claudespark/components/auth"
)

type CleanupOpts struct {
	TTL      time.Duration
	Interval time.Duration
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter keeps one token bucket per client IP. Buckets idle for
// longer than TTL are dropped.
type IPRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
	now      func() time.Time
	cancel   context.CancelFunc
	CleanupOpts
}

// NewIPRateLimiter allows requests per window for each IP.
func NewIPRateLimiter(requests int, window time.Duration, cleanupOpts CleanupOpts) *IPRateLimiter {
	ctx, cancel := context.WithCancel(context.Background())
	rl := &IPRateLimiter{
		visitors:    make(map[string]*visitor),
		rate:        rate.Every(window / time.Duration(requests)),
		burst:       requests,
		now:         time.Now,
		cancel:      cancel,
		CleanupOpts: cleanupOpts,
	}

	if rl.Interval > 0 {
		go rl.cleanup(ctx)
	}

	return rl
}

// Stop ends the cleanup goroutine.
func (rl *IPRateLimiter) Stop() {
	rl.cancel()
}

func (rl *IPRateLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.evict()
		}
	}
}

func (rl *IPRateLimiter) evict() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for ip, v := range rl.visitors {
		if rl.now().Sub(v.lastSeen) > rl.TTL {
			delete(rl.visitors, ip)
		}
	}
}

// ClientIP returns the address the request came from. Behind a proxy the
// last X-Forwarded-For hop is the one the proxy saw.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[len(ips)-1])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		slog.Warn("invalid argument for net.SplitHostPort()",
			slog.String("remote_addr", r.RemoteAddr))
		return r.RemoteAddr
	}

	return host
}

// Allow reports whether ip may make a request now. When it may not, the
// second result is how long until it may.
func (rl *IPRateLimiter) Allow(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[ip] = v
	}
	now := rl.now()
	v.lastSeen = now

	r := v.limiter.ReserveN(now, 1)
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

// Middleware rejects requests over the limit with 429. htmx requests get the
// auth error line instead so the form can show it.
func (rl *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)

		ok, wait := rl.Allow(ip)
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		slog.WarnContext(r.Context(), "rate limit exceeded",
			slog.String("ip", ip),
			slog.String("path", r.URL.Path),
			slog.String("method", r.Method))

		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))

		if r.Header.Get("HX-Request") == "true" {
			err := viewAuth.ErrorMsgAuth("Too many requests. Try again later.").Render(r.Context(), w)
			if err != nil {
				slog.ErrorContext(r.Context(), "failed to render error component",
					slog.Any("error", err),
					slog.String("ip", ip))
			}
			return
		}

		http.Error(w, "Too many requests. Try again later.", http.StatusTooManyRequests)
	})
}
