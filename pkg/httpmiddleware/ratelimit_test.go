package httpmiddleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func limited(t *testing.T, cfg RateLimitConfig) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return RateLimit(ctx, cfg)(okHandler())
}

func hit(h http.Handler, remoteAddr string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_UnderLimit(t *testing.T) {
	h := limited(t, RateLimitConfig{Max: 5, Window: time.Minute})

	for i := range 5 {
		w := hit(h, "192.168.1.1:12345", nil)
		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	h := limited(t, RateLimitConfig{Max: 2, Window: time.Minute})

	for range 2 {
		require.Equal(t, http.StatusOK, hit(h, "10.0.0.1:9999", nil).Code)
	}

	w := hit(h, "10.0.0.1:9999", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, http.StatusTooManyRequests, body.Code)
	assert.Equal(t, "rate limit exceeded", body.Message)
}

func TestRateLimit_IndependentKeys(t *testing.T) {
	h := limited(t, RateLimitConfig{Max: 1, Window: time.Minute})

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1234", nil).Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2:1234", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:5678", nil).Code)
}

func TestRateLimit_HeaderKey(t *testing.T) {
	h := limited(t, RateLimitConfig{Max: 1, Window: time.Minute, KeyFunc: HeaderKey("X-User-ID")})

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1", map[string]string{"X-User-ID": "alice"}).Code)
	// Same user from another address shares the quota.
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.2:1", map[string]string{"X-User-ID": "alice"}).Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1", map[string]string{"X-User-ID": "bob"}).Code)
	// Anonymous requests fall back to the client address.
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:2", nil).Code)
}

func TestRateLimit_XForwardedFor(t *testing.T) {
	h := limited(t, RateLimitConfig{Max: 1, Window: time.Minute})
	xff := map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"}

	assert.Equal(t, http.StatusOK, hit(h, "192.168.1.1:4444", xff).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "192.168.1.2:5555", xff).Code)
}

func TestLimiter_WindowRotation(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 2, Window: time.Minute})
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	_, _, ok := l.take("k", start)
	require.True(t, ok)
	_, _, ok = l.take("k", start.Add(time.Second))
	require.True(t, ok)
	_, _, ok = l.take("k", start.Add(2*time.Second))
	require.False(t, ok)

	// Halfway into the next window the previous one still weighs 1/2.
	remaining, _, ok := l.take("k", start.Add(90*time.Second))
	require.True(t, ok)
	assert.Zero(t, remaining)
	_, _, ok = l.take("k", start.Add(90*time.Second))
	require.False(t, ok)

	// Two idle windows reset the quota.
	remaining, _, ok = l.take("k", start.Add(5*time.Minute))
	require.True(t, ok)
	assert.Equal(t, 1, remaining)
}

func TestLimiter_Evict(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	l.take("old", start)
	l.take("new", start.Add(2*time.Minute))
	l.evict(start.Add(2*time.Minute + time.Second))

	assert.Equal(t, 1, l.size())
}
