package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arecko/backend/internal/database"
)

type fakeAuth struct{}

func (fakeAuth) Authenticate(_ context.Context, token string) (*database.User, error) {
	switch token {
	case "user":
		return &database.User{ID: 1, Username: "alice"}, nil
	case "biz":
		return &database.User{ID: 2, Username: "joes", IsBusiness: true}, nil
	}
	return nil, errors.New("bad token")
}

func whoami(w http.ResponseWriter, r *http.Request) {
	if u := UserFrom(r.Context()); u != nil {
		w.Write([]byte(u.Username))
		return
	}
	w.Write([]byte("anonymous"))
}

func serve(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticate(t *testing.T) {
	h := Authenticate(fakeAuth{})(http.HandlerFunc(whoami))

	assert.Equal(t, "anonymous", serve(h, "").Body.String())
	assert.Equal(t, "alice", serve(h, "user").Body.String())
	assert.Equal(t, http.StatusUnauthorized, serve(h, "garbage").Code)
}

func TestRequireUserAndBusiness(t *testing.T) {
	user := Authenticate(fakeAuth{})(RequireUser(whoami))
	assert.Equal(t, http.StatusUnauthorized, serve(user, "").Code)
	assert.Equal(t, http.StatusOK, serve(user, "user").Code)

	biz := Authenticate(fakeAuth{})(RequireBusiness(whoami))
	assert.Equal(t, http.StatusUnauthorized, serve(biz, "").Code)
	assert.Equal(t, http.StatusForbidden, serve(biz, "user").Code)
	assert.Equal(t, "joes", serve(biz, "biz").Body.String())
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 2})
	defer rl.Stop()
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }

	assert.True(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"))

	clock = clock.Add(61 * time.Second)
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.Equal(t, 2, rl.Stats()["active_windows"])
}

func TestRateLimiter_Handler(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 1})
	defer rl.Stop()
	h := rl.Limit(whoami)

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	rec := httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestRateLimiter_IgnoresSpoofedForwardedFor(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 2})
	defer rl.Stop()
	h := rl.Limit(whoami)

	allowed := 0
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "198.51.100.9:4000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		rec := httptest.NewRecorder()
		h(rec, req)
		if rec.Code == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 2, allowed)
}

func TestRateLimiter_TrustedProxy(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 1, TrustedProxies: []string{"10.0.0.0/8"}})
	defer rl.Stop()
	h := rl.Limit(whoami)

	send := func(xff string) int {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "10.1.2.3:4000"
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		h(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("203.0.113.7"))
	assert.Equal(t, http.StatusOK, send("203.0.113.8"), "distinct clients behind the proxy")
	assert.Equal(t, http.StatusTooManyRequests, send("1.1.1.1, 203.0.113.7"), "spoofed leading hop is ignored")
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	assert.Equal(t, "192.0.2.1", ClientIP(req))

	none, err := NewProxyTrust(nil)
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1", none.ClientIP(req), "untrusted peer")

	pt, err := NewProxyTrust([]string{"192.0.2.1", "10.0.0.0/8"})
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", pt.ClientIP(req))
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.5")
	assert.Equal(t, "203.0.113.7", pt.ClientIP(req), "trusted hops are skipped")
	req.Header.Del("X-Forwarded-For")
	assert.Equal(t, "192.0.2.1", pt.ClientIP(req))

	_, err = NewProxyTrust([]string{"not-an-ip"})
	assert.Error(t, err)
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://www.arecko.com", "https://*.run.app"})(http.HandlerFunc(whoami))

	for origin, allowed := range map[string]bool{
		"https://www.arecko.com":  true,
		"https://preview.run.app": true,
		"http://preview.run.app":  false,
		"https://evil.com":        false,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", origin)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if allowed {
			assert.Equal(t, origin, rec.Header().Get("Access-Control-Allow-Origin"), origin)
		} else {
			assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"), origin)
		}
	}

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	h := Logging(&buf)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/reckos", nil))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "request", line["msg"])
	assert.Equal(t, "/api/v1/reckos", line["path"])
	assert.EqualValues(t, http.StatusTeapot, line["status"])
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}
