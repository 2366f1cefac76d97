package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrRateLimited      = errors.New("rate limited")
	ErrRedisUnavailable = errors.New("redis unavailable")
)

const limitedMessage = "Too many login attempts. Try again later."

// Config holds the fixed-window budget per client IP.
type Config struct {
	Max    int
	Window time.Duration
	Prefix string
	// TrustedHops is the number of reverse proxies in front of the service.
	// Zero keys on the socket address and ignores X-Forwarded-For.
	TrustedHops int
}

func ConfigFromEnv() Config {
	cfg := Config{Max: 10, Window: time.Minute, Prefix: "yatrik:auth:ip:"}
	if n, err := strconv.Atoi(os.Getenv("RATE_LIMIT_MAX")); err == nil && n > 0 {
		cfg.Max = n
	}
	if d, err := time.ParseDuration(os.Getenv("RATE_LIMIT_WINDOW")); err == nil && d > 0 {
		cfg.Window = d
	}
	if n, err := strconv.Atoi(os.Getenv("RATE_LIMIT_TRUSTED_HOPS")); err == nil && n > 0 {
		cfg.TrustedHops = n
	}
	return cfg
}

// Limiter counts requests per key in Redis.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

func New(client redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{redis: client, config: cfg}
}

// Allow records one hit for key and returns ErrRateLimited once the window
// budget is spent.
func (l *Limiter) Allow(ctx context.Context, key string) error {
	k := l.config.Prefix + key
	count, err := l.redis.Incr(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	// Fixed window: the TTL is only set on the first hit.
	if count == 1 {
		if err := l.redis.Expire(ctx, k, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	if count > int64(l.config.Max) {
		return ErrRateLimited
	}
	return nil
}

// Middleware rejects over-budget clients with 429. Redis failures let the
// request through.
func (l *Limiter) Middleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := l.Allow(r.Context(), ClientIP(r, l.config.TrustedHops))
			switch {
			case errors.Is(err, ErrRateLimited):
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(int(l.config.Window.Seconds())))
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = fmt.Fprintf(w, `{"success":false,"message":%q}`+"\n", limitedMessage)
				return
			case err != nil:
				logger.Warnw("rate limiter unavailable", "err", err)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the address the request came from. With trustedHops > 0
// it takes the X-Forwarded-For entry appended by the outermost trusted proxy,
// counting from the right; entries further left are client supplied.
func ClientIP(r *http.Request, trustedHops int) string {
	if trustedHops > 0 {
		if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
			var hops []string
			for _, h := range strings.Split(strings.Join(xff, ","), ",") {
				if h = strings.TrimSpace(h); h != "" {
					hops = append(hops, h)
				}
			}
			if len(hops) > 0 {
				idx := len(hops) - trustedHops
				if idx < 0 {
					idx = 0
				}
				return hops[idx]
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
