// Package middleware holds the HTTP middleware of the API: CORS, request
// logging, panic recovery, bearer-token authentication and rate limiting.
package middleware

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"
)

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": msg})
}

// CORS allows the configured origins. "*" allows any origin and entries like
// "https://*.example.com" match by scheme and domain suffix.
func CORS(origins []string) func(http.Handler) http.Handler {
	exact := make(map[string]bool, len(origins))
	var wildcardSuffixes []string
	allowAll := false
	for _, o := range origins {
		switch {
		case o == "*":
			allowAll = true
		case strings.Contains(o, "*"):
			wildcardSuffixes = append(wildcardSuffixes, strings.Replace(o, "*", "", 1))
		default:
			exact[o] = true
		}
	}

	originAllowed := func(origin string) bool {
		if exact[origin] {
			return true
		}
		for _, suffix := range wildcardSuffixes {
			parts := strings.SplitN(suffix, "//", 2)
			if len(parts) == 2 {
				if strings.HasPrefix(origin, parts[0]+"//") && strings.HasSuffix(origin, parts[1]) {
					return true
				}
			} else if strings.HasSuffix(origin, suffix) {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if origin != "" && originAllowed(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Flush supports streamed responses.
func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets the websocket upgrader take over the connection.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijacking not supported")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Logging writes one JSON line per request to out.
func Logging(out io.Writer) func(http.Handler) http.Handler {
	logger := slog.New(slog.NewJSONHandler(out, nil))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"remote", ClientIP(r),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

// Recovery logs panics with their stack and answers 500.
func Recovery(next http.Handler) http.Handler {
	logger := log.New(log.Writer(), "[PANIC] ", log.LstdFlags)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				logger.Printf("❌ %s %s: %v\n%s", r.Method, r.URL.Path, err, debug.Stack())
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
