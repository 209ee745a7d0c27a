package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// SecurityHeadersMiddleware hardens every response. Envelope responses are
// opaque ciphertext and must never be cached, sniffed or rendered.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Cache-Control", "no-store")
			h.Set("Referrer-Policy", "no-referrer")
			if r.TLS != nil {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			if operationName(r.Method, r.URL.Path) != "" {
				h.Set("Pragma", "no-cache")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter throttles envelope traffic. Each client has one bucket per
// helper operation; a bucket refills at limit/window and holds at most limit
// tokens.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*clientBucket
	limit   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
	stop    chan struct{}
	logger  *logrus.Logger
}

type clientBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows limit envelopes per window for each client and
// operation. Idle buckets are swept every two windows until Stop.
func NewRateLimiter(limit int, window time.Duration, logger *logrus.Logger) *RateLimiter {
	rl := newRateLimiter(limit, window, logger, time.Now)
	go rl.sweepLoop()
	return rl
}

func newRateLimiter(limit int, window time.Duration, logger *logrus.Logger, now func() time.Time) *RateLimiter {
	if limit < 1 {
		limit = 1
	}
	return &RateLimiter{
		buckets: make(map[string]*clientBucket),
		limit:   rate.Limit(float64(limit) / window.Seconds()),
		burst:   limit,
		idle:    window * 2,
		now:     now,
		stop:    make(chan struct{}),
		logger:  logger,
	}
}

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(rl.idle)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.sweep()
		case <-rl.stop:
			return
		}
	}
}

func (rl *RateLimiter) sweep() {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) > rl.idle {
			delete(rl.buckets, key)
		}
	}
}

// Stop ends the sweeper.
func (rl *RateLimiter) Stop() {
	close(rl.stop)
}

// Allow spends one token for client on operation. When the bucket is empty it
// returns how long until the next token.
func (rl *RateLimiter) Allow(client, operation string) (bool, time.Duration) {
	now := rl.now()
	key := client + "|" + operation

	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.buckets[key]
	if !ok {
		b = &clientBucket{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now

	r := b.lim.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	r.CancelAt(now)
	return false, delay
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// getClientKey identifies the calling client by address. The port is dropped
// so that one client's connections share a bucket.
func getClientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateLimitMiddleware applies limiter to the envelope routes. Health checks, scrapes
// and unknown paths pass through untouched.
func RateLimitMiddleware(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op := operationName(r.Method, r.URL.Path)
			if op == "" {
				next.ServeHTTP(w, r)
				return
			}
			client := getClientKey(r)

			if ok, wait := limiter.Allow(client, op); !ok {
				limiter.logger.WithFields(logrus.Fields{
					"client":    client,
					"operation": op,
					"retry_in":  wait,
				}).Warn("Envelope rate limit exceeded")

				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeJSONError(w, http.StatusTooManyRequests, "SlowDown", "Rate limit exceeded for "+op)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
