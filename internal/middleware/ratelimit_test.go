package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	handler := RateLimitMiddleware(RateLimitConfig{Enabled: false})(okHandler())

	for i := 0; i < 5; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/query", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestRateLimitMiddleware_BurstExceeded(t *testing.T) {
	handler := RateLimitMiddleware(RateLimitConfig{
		Enabled: true,
		RPS:     0.5,
		Burst:   2,
	})(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/query", nil)

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "2", rr.Header().Get("Retry-After"))

	var body ErrorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "rate_limited", body.Errors[0].Code)
}

func TestRateLimitMiddleware_PerClient(t *testing.T) {
	handler := RateLimitMiddleware(RateLimitConfig{
		Enabled: true,
		RPS:     0.01,
		Burst:   1,
	})(okHandler())

	first := httptest.NewRequest(http.MethodPost, "/query", nil)
	first.RemoteAddr = "10.0.0.1:5000"
	second := httptest.NewRequest(http.MethodPost, "/query", nil)
	second.RemoteAddr = "10.0.0.2:5000"
	samehost := httptest.NewRequest(http.MethodPost, "/query", nil)
	samehost.RemoteAddr = "10.0.0.1:6000"

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, first)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, second)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, samehost)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestRateLimitMiddleware_KeyHeader(t *testing.T) {
	handler := RateLimitMiddleware(RateLimitConfig{
		Enabled:   true,
		RPS:       0.01,
		Burst:     1,
		KeyHeader: "X-DB-Role",
	})(okHandler())

	send := func(role string) int {
		req := httptest.NewRequest(http.MethodPost, "/query", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		if role != "" {
			req.Header.Set("X-DB-Role", role)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, send("reader"))
	assert.Equal(t, http.StatusOK, send("writer"))
	assert.Equal(t, http.StatusOK, send(""))
	assert.Equal(t, http.StatusTooManyRequests, send("reader"))
}

func TestClientLimiters_SweepsIdleClients(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiters := newClientLimiters(1, 1, time.Minute)
	limiters.now = func() time.Time { return now }
	limiters.lastSweep = now

	first := limiters.get("a")
	limiters.get("b")
	assert.Len(t, limiters.clients, 2)

	now = now.Add(30 * time.Second)
	assert.Same(t, first, limiters.get("a"))

	now = now.Add(90 * time.Second)
	limiters.get("c")
	assert.Len(t, limiters.clients, 1)
	assert.Contains(t, limiters.clients, "c")
}
