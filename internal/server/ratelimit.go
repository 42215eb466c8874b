package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/pmrag-go/internal/logging"
)

const (
	// defaultRateLimit is the sustained per-IP rate on index, search and
	// validate when Config.RateLimit is zero.
	defaultRateLimit = 10

	// defaultRateBurst is the per-IP burst when Config.RateBurst is zero.
	defaultRateBurst = 20

	// limiterIdleTTL is how long an IP may stay silent before its bucket is evicted.
	limiterIdleTTL = 5 * time.Minute

	// evictInterval is how often idle buckets are swept.
	evictInterval = time.Minute
)

// bucket is one client's token bucket and when it was last used.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter enforces a per-IP token bucket. Embedding a large batch costs
// the same single token as a search, so the limit is about request volume,
// not work.
type rateLimiter struct {
	// mu guards buckets.
	mu sync.Mutex
	// buckets maps client IP to its bucket.
	buckets map[string]*bucket
	// rps and burst parameterize new buckets.
	rps   rate.Limit
	burst int
	// onReject, when set, is called for every rejected request.
	onReject func()
}

// newRateLimiter constructs a rateLimiter and starts the idle-bucket sweep.
// The sweep goroutine exits when the returned stop function is called.
func newRateLimiter(rps float64, burst int) (*rateLimiter, func()) {
	rl := &rateLimiter{
		buckets: make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
	}

	stopCh := make(chan struct{})
	var once sync.Once
	go rl.sweep(stopCh)

	return rl, func() { once.Do(func() { close(stopCh) }) }
}

// getLimiter returns the bucket for ip, creating it on first use.
func (rl *rateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	return b.limiter
}

// sweep calls evict every evictInterval until stopCh closes.
func (rl *rateLimiter) sweep(stopCh <-chan struct{}) {
	ticker := time.NewTicker(evictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case now := <-ticker.C:
			rl.evict(now)
		}
	}
}

// evict drops buckets last used before now minus limiterIdleTTL.
func (rl *rateLimiter) evict(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-limiterIdleTTL)
	for ip, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, ip)
		}
	}
}

// middleware rejects requests over the limit with 429 and a Retry-After
// equal to the wait for the next token, rounded up to whole seconds.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		limiter := rl.getLimiter(ip)

		res := limiter.Reserve()
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			if rl.onReject != nil {
				rl.onReject()
			}
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.Duration("retry_after", delay),
			)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(delay)))
			respondError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// retryAfterSeconds rounds d up to whole seconds, never below 1.
func retryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// clientIP extracts the remote IP from the request, stripping the port.
// X-Forwarded-For is not trusted; deployments behind a proxy should rate
// limit at the proxy instead.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	// Unbracketed IPv6 with a port, or no port at all.
	if i := strings.LastIndexByte(r.RemoteAddr, ':'); i > 0 && strings.Count(r.RemoteAddr, ":") > 2 {
		return r.RemoteAddr[:i]
	}
	return r.RemoteAddr
}
