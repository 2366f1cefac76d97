package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLimiter(t *testing.T, max int) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return New(rdb, Config{Max: max, Window: time.Minute, Prefix: "t:"}), mr
}

func TestAllow_FixedWindow(t *testing.T) {
	l, mr := newLimiter(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow(ctx, "10.0.0.1"))
	}
	assert.ErrorIs(t, l.Allow(ctx, "10.0.0.1"), ErrRateLimited)
	assert.NoError(t, l.Allow(ctx, "10.0.0.2"), "other clients have their own window")

	ttl := mr.TTL("t:10.0.0.1")
	assert.True(t, ttl > 0 && ttl <= time.Minute)

	mr.FastForward(time.Minute + time.Second)
	assert.NoError(t, l.Allow(ctx, "10.0.0.1"))
}

func TestAllow_RedisDown(t *testing.T) {
	l, mr := newLimiter(t, 3)
	mr.Close()
	assert.ErrorIs(t, l.Allow(context.Background(), "x"), ErrRedisUnavailable)
}

func TestMiddleware(t *testing.T) {
	l, _ := newLimiter(t, 2)
	h := l.Middleware(zap.NewNop().Sugar())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "192.168.1.9:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, do().Code)
	assert.Equal(t, http.StatusNoContent, do().Code)
	rec := do()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Too many login attempts. Try again later.", body["message"])
}

func TestMiddleware_FailsOpen(t *testing.T) {
	l, mr := newLimiter(t, 1)
	mr.Close()
	h := l.Middleware(zap.NewNop().Sugar())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "1.2.3.4:80"
	assert.Equal(t, "1.2.3.4", ClientIP(r, 0))

	r.Header.Set("X-Forwarded-For", "9.9.9.9, 10.0.0.1")
	assert.Equal(t, "1.2.3.4", ClientIP(r, 0), "untrusted header is ignored")
	assert.Equal(t, "10.0.0.1", ClientIP(r, 1))
	assert.Equal(t, "9.9.9.9", ClientIP(r, 2))
	assert.Equal(t, "9.9.9.9", ClientIP(r, 5))

	r.Header.Add("X-Forwarded-For", "172.16.0.3")
	assert.Equal(t, "172.16.0.3", ClientIP(r, 1), "repeated headers are one list")
}

func TestMiddleware_ForwardedForCannotDodgeLimit(t *testing.T) {
	l, _ := newLimiter(t, 10)
	h := l.Middleware(zap.NewNop().Sugar())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	limited := 0
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "203.0.113.7:40000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Equal(t, 40, limited)
}

func TestMiddleware_TrustedProxyHop(t *testing.T) {
	l, _ := newLimiter(t, 2)
	l.config.TrustedHops = 1
	h := l.Middleware(zap.NewNop().Sugar())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	// The proxy appends the real client; a spoofed leftmost entry changes nothing.
	do := func(spoof string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "10.1.1.1:3000"
		req.Header.Set("X-Forwarded-For", spoof+", 198.51.100.4")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusNoContent, do("1.1.1.1"))
	assert.Equal(t, http.StatusNoContent, do("2.2.2.2"))
	assert.Equal(t, http.StatusTooManyRequests, do("3.3.3.3"))
}
