package httpapi

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/BrandonDHaskell/Beacon/server/internal/observability"
)

type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `mapstructure:"burst" yaml:"burst"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           false,
		RequestsPerSecond: 10,
		Burst:             20,
		CleanupInterval:   5 * time.Minute,
	}
}

// RateLimiter keeps one token bucket per client IP. Idle buckets expire from
// the cache after CleanupInterval.
type RateLimiter struct {
	limiters *cache.Cache
	cfg      RateLimitConfig
	metrics  *observability.Metrics
}

func NewRateLimiter(cfg RateLimitConfig, metrics *observability.Metrics) *RateLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &RateLimiter{
		limiters: cache.New(cfg.CleanupInterval, cfg.CleanupInterval*2),
		cfg:      cfg,
		metrics:  metrics,
	}
}

// Allow reports whether the client identified by key may proceed.
func (rl *RateLimiter) Allow(key string) bool {
	if !rl.cfg.Enabled {
		return true
	}

	var limiter *rate.Limiter
	if item, found := rl.limiters.Get(key); found {
		limiter = item.(*rate.Limiter)
	} else {
		limiter = rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.Burst)
		// Add fails if a concurrent request created the bucket first.
		if err := rl.limiters.Add(key, limiter, cache.DefaultExpiration); err != nil {
			if item, found := rl.limiters.Get(key); found {
				limiter = item.(*rate.Limiter)
			}
		}
	}
	// Touch the entry so active clients keep their bucket.
	rl.limiters.Set(key, limiter, cache.DefaultExpiration)

	return limiter.Allow()
}

func (rl *RateLimiter) retryAfter() time.Duration {
	if rl.cfg.RequestsPerSecond <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / rl.cfg.RequestsPerSecond)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// rateLimited wraps h with the server's limiter, if any.
func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientIP(r)) {
			if s.limiter.metrics != nil {
				s.limiter.metrics.RateLimited.Inc()
			}
			secs := int(s.limiter.retryAfter().Seconds())
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many beats, slow down")
			return
		}
		h(w, r)
	}
}
