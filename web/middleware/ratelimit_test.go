package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newLimitedRouter(rl *RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(rl.Middleware())
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	r.POST("/login", ok)
	r.POST("/reset", ok)
	r.GET("/assets/app.js", ok)
	return r
}

func post(r *gin.Engine, path, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.RemoteAddr = remote
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiterBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 1, BurstSize: 3})
	r := newLimitedRouter(rl)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, post(r, "/login", "10.0.0.1:1000").Code, i)
	}
	w := post(r, "/login", "10.0.0.1:1000")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, post(r, "/login", "10.0.0.2:1000").Code, "other clients are unaffected")
	assert.Equal(t, http.StatusOK, post(r, "/reset", "10.0.0.1:1000").Code, "paths have separate buckets")
}

func TestRateLimiterForwardedForTrust(t *testing.T) {
	postFrom := func(r *gin.Engine, remote, forwarded string) int {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = remote
		req.Header.Set("X-Forwarded-For", forwarded)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	r := newLimitedRouter(NewRateLimiter(RateLimitConfig{RequestsPerMinute: 1, BurstSize: 1}))
	assert.NoError(t, r.SetTrustedProxies(nil))
	passed := 0
	for i := 0; i < 20; i++ {
		if postFrom(r, "10.0.0.1:1000", "203.0.113."+strconv.Itoa(i)) == http.StatusOK {
			passed++
		}
	}
	assert.Equal(t, 1, passed, "spoofed X-Forwarded-For from one remote address shares a bucket")

	r = newLimitedRouter(NewRateLimiter(RateLimitConfig{RequestsPerMinute: 1, BurstSize: 1}))
	assert.NoError(t, r.SetTrustedProxies([]string{"10.0.0.1"}))
	assert.Equal(t, http.StatusOK, postFrom(r, "10.0.0.1:1000", "203.0.113.1"))
	assert.Equal(t, http.StatusOK, postFrom(r, "10.0.0.1:1000", "203.0.113.2"), "a trusted proxy forwards distinct clients")
	assert.Equal(t, http.StatusTooManyRequests, postFrom(r, "10.0.0.1:1000", "203.0.113.1"))
}

func TestRateLimiterSkipPaths(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 1, BurstSize: 1, SkipPaths: []string{"/assets/"}})
	r := newLimitedRouter(rl)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/assets/app.js", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Zero(t, rl.Len())
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{IdleTTL: time.Minute})
	rl.get("stale", time.Now().Add(-2*time.Minute))
	rl.get("fresh", time.Now())
	assert.Equal(t, 2, rl.Len())

	rl.Cleanup()
	assert.Equal(t, 1, rl.Len())
}

func TestDomainValidator(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(DomainValidatorMiddleware("panel.example.com"))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for host, want := range map[string]int{
		"panel.example.com":      http.StatusOK,
		"panel.example.com:8443": http.StatusOK,
		"PANEL.example.com":      http.StatusOK,
		"evil.example.com":       http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Host = host
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, host)
	}
}
