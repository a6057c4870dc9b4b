package httpmiddleware

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
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// frozenLimiter returns a limiter whose clock only moves when the test says so.
func frozenLimiter(cfg RateLimitConfig) (*Limiter, *time.Time) {
	l := NewLimiter(cfg)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func serve(h http.Handler, remote string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remote
	for _, m := range mutate {
		m(req)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_UnderLimit(t *testing.T) {
	l, _ := frozenLimiter(RateLimitConfig{PerMinute: 5})
	h := l.Middleware()(okHandler())

	for i := range 5 {
		w := serve(h, "192.168.1.1:12345")
		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	l, _ := frozenLimiter(RateLimitConfig{PerMinute: 60, Burst: 2})
	h := l.Middleware()(okHandler())

	for range 2 {
		require.Equal(t, http.StatusOK, serve(h, "10.0.0.1:9999").Code)
	}

	w := serve(h, "10.0.0.1:9999")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, float64(429), body["code"])
	assert.Equal(t, "rate limit exceeded", body["message"])
}

func TestRateLimit_Refill(t *testing.T) {
	l, now := frozenLimiter(RateLimitConfig{PerMinute: 60, Burst: 1})
	h := l.Middleware()(okHandler())

	require.Equal(t, http.StatusOK, serve(h, "10.0.0.1:1").Code)
	require.Equal(t, http.StatusTooManyRequests, serve(h, "10.0.0.1:1").Code)

	// A rejected request must not consume a future token.
	*now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, serve(h, "10.0.0.1:1").Code)
}

func TestRateLimit_DifferentIPs(t *testing.T) {
	l, _ := frozenLimiter(RateLimitConfig{PerMinute: 1})
	h := l.Middleware()(okHandler())

	assert.Equal(t, http.StatusOK, serve(h, "10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusOK, serve(h, "10.0.0.2:1234").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, "10.0.0.1:5678").Code)
}

func TestRateLimit_CustomKeyFunc(t *testing.T) {
	l, _ := frozenLimiter(RateLimitConfig{
		PerMinute: 1,
		KeyFunc: func(r *http.Request) string {
			return r.Header.Get("Authorization")
		},
	})
	h := l.Middleware()(okHandler())
	as := func(token string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("Authorization", token) }
	}

	assert.Equal(t, http.StatusOK, serve(h, "1.1.1.1:1", as("a")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, "2.2.2.2:1", as("a")).Code)
	assert.Equal(t, http.StatusOK, serve(h, "1.1.1.1:1", as("b")).Code)
}

func TestRateLimit_Skip(t *testing.T) {
	l, _ := frozenLimiter(RateLimitConfig{
		PerMinute: 1,
		Skip:      func(r *http.Request) bool { return r.Method == http.MethodGet },
	})
	h := l.Middleware()(okHandler())

	for range 3 {
		w := serve(h, "10.0.0.1:1")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateLimit_XForwardedFor(t *testing.T) {
	l, _ := frozenLimiter(RateLimitConfig{PerMinute: 1})
	h := l.Middleware()(okHandler())
	fwd := func(r *http.Request) { r.Header.Set("X-Forwarded-For", "203.0.113.50, 70.41.3.18") }

	assert.Equal(t, http.StatusOK, serve(h, "192.168.1.1:4444", fwd).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, "192.168.1.2:5555", fwd).Code)
}

func TestLimiter_Cleanup(t *testing.T) {
	l, now := frozenLimiter(RateLimitConfig{PerMinute: 1, IdleTTL: time.Minute})
	h := l.Middleware()(okHandler())

	require.Equal(t, http.StatusOK, serve(h, "10.0.0.1:1").Code)
	l.Cleanup()
	assert.Len(t, l.visitors, 1)

	*now = now.Add(2 * time.Minute)
	l.Cleanup()
	assert.Empty(t, l.visitors)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		header map[string]string
		want   string
	}{
		{name: "RemoteAddr", remote: "10.0.0.1:80", want: "10.0.0.1"},
		{name: "NoPort", remote: "10.0.0.1", want: "10.0.0.1"},
		{name: "RealIP", remote: "10.0.0.1:80", header: map[string]string{"X-Real-IP": "9.9.9.9"}, want: "9.9.9.9"},
		{
			name:   "ForwardedWins",
			remote: "10.0.0.1:80",
			header: map[string]string{"X-Real-IP": "9.9.9.9", "X-Forwarded-For": "8.8.8.8, 7.7.7.7"},
			want:   "8.8.8.8",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
