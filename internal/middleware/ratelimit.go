package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/nsproc/rpcgateway/internal/rpcerrors"
	"github.com/nsproc/rpcgateway/pkg/logger"
)

// RateLimiter throttles JSON-RPC calls per remote host, since a single
// caller hammering an expensive stored procedure is the failure mode
// this exists to contain.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
	log      *logger.Logger
}

// NewRateLimiter builds a limiter allowing requestsPerSecond sustained
// requests per key, with burst allowed above that rate.
func NewRateLimiter(requestsPerSecond int, burst int, log *logger.Logger) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		log:      log,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, ok := rl.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = limiter
	}
	return limiter
}

// Handler returns the mux.MiddlewareFunc enforcing the limit.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientHost(r)
		if !rl.getLimiter(key).Allow() {
			rl.log.WithFields(map[string]interface{}{
				"key":  key,
				"path": r.URL.Path,
			}).Warn("rate limit exceeded")

			err := rpcerrors.New(rpcerrors.KindInvalidRequest, "rate limit exceeded", nil)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(err.HTTPStatus())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// MiddlewareFunc adapts Handler to gorilla/mux's middleware signature.
func (rl *RateLimiter) MiddlewareFunc() mux.MiddlewareFunc {
	return rl.Handler
}

func clientHost(r *http.Request) string {
	if host := r.Header.Get("X-Forwarded-For"); host != "" {
		return host
	}
	return r.RemoteAddr
}

// Cleanup drops all tracked limiters once the map grows unreasonably
// large; a caller idle since is simply given a fresh bucket next time.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.limiters) > 10000 {
		rl.limiters = make(map[string]*rate.Limiter)
	}
}

// StartCleanup runs Cleanup periodically until ctx-free shutdown (the
// process exiting stops it).
func (rl *RateLimiter) StartCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for range ticker.C {
			rl.Cleanup()
		}
	}()
}
