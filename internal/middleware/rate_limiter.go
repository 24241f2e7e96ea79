package middleware

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimiter caps requests per client IP over a one minute window. It guards
// the unauthenticated endpoints (login, signup, the public referral API).
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*rateLimitWindow
	cfg     RateLimitConfig
	proxies *ProxyTrust
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
	logger  *log.Logger
}

// RateLimitConfig defines the rate limiting thresholds.
type RateLimitConfig struct {
	MaxCallsPerMinute int `yaml:"max_calls_per_minute"`
	// TrustedProxies lists the IPs or CIDRs whose X-Forwarded-For header is
	// believed. Requests from anywhere else are keyed on the peer address.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

type rateLimitWindow struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.MaxCallsPerMinute <= 0 {
		cfg.MaxCallsPerMinute = 60
	}
	logger := log.New(log.Writer(), "[RATE-LIMIT] ", log.LstdFlags)
	proxies, err := NewProxyTrust(cfg.TrustedProxies)
	if err != nil {
		logger.Printf("⚠️ Ignoring trusted proxies: %v", err)
		proxies = &ProxyTrust{}
	}
	rl := &RateLimiter{
		windows: make(map[string]*rateLimitWindow),
		cfg:     cfg,
		proxies: proxies,
		now:     time.Now,
		done:    make(chan struct{}),
		logger:  logger,
	}
	go rl.cleanup()
	return rl
}

// Allow counts a request for key and reports whether it is within limits.
func (rl *RateLimiter) Allow(key string) bool {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	window, ok := rl.windows[key]
	if !ok || now.Sub(window.windowStart) > time.Minute {
		rl.windows[key] = &rateLimitWindow{count: 1, windowStart: now}
		return true
	}
	window.count++
	if window.count > rl.cfg.MaxCallsPerMinute {
		if window.count == rl.cfg.MaxCallsPerMinute+1 {
			rl.logger.Printf("⚠️ Rate limit exceeded: key=%s limit=%d", key, rl.cfg.MaxCallsPerMinute)
		}
		return false
	}
	return true
}

// Limit wraps a handler with the per-IP limit.
func (rl *RateLimiter) Limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(rl.proxies.ClientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}

// Stop ends the cleanup loop.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for key, window := range rl.windows {
				if now.Sub(window.windowStart) > 2*time.Minute {
					delete(rl.windows, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Stats returns current rate limiter statistics.
func (rl *RateLimiter) Stats() map[string]interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return map[string]interface{}{
		"active_windows":    len(rl.windows),
		"max_calls_per_min": rl.cfg.MaxCallsPerMinute,
	}
}

// ============================================================================
// CLIENT ADDRESS
// ============================================================================

// ProxyTrust resolves the client address of a request, following
// X-Forwarded-For only through trusted proxies.
type ProxyTrust struct {
	nets []*net.IPNet
}

// NewProxyTrust parses IP and CIDR entries. An empty list trusts no proxy.
func NewProxyTrust(entries []string) (*ProxyTrust, error) {
	pt := &ProxyTrust{}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.Contains(e, "/") {
			ip := net.ParseIP(e)
			if ip == nil {
				return nil, fmt.Errorf("invalid proxy address %q", e)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			pt.nets = append(pt.nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(e)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy range %q: %w", e, err)
		}
		pt.nets = append(pt.nets, n)
	}
	return pt, nil
}

func (pt *ProxyTrust) trusted(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range pt.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP returns the peer address unless the peer is a trusted proxy. In
// that case X-Forwarded-For is walked right to left and the first untrusted
// hop is the client.
func (pt *ProxyTrust) ClientIP(r *http.Request) string {
	peer := ClientIP(r)
	if !pt.trusted(peer) {
		return peer
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !pt.trusted(hop) {
			return hop
		}
		peer = hop
	}
	return peer
}

// ClientIP returns the host of the connection's remote address.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
