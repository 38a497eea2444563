package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// KeyFunc derives the rate-limit bucket key for a request.
type KeyFunc func(r *http.Request) string

type MiddlewareOptions struct {
	Limiter            *Limiter
	KeyFn              KeyFunc
	TrustXForwardedFor bool
}

// DefaultKeyFunc buckets by caller network address, preferring the first
// X-Forwarded-For hop when the deployment fronts the service with a trusted
// proxy.
func DefaultKeyFunc(trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if trustXFF {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				parts := strings.Split(xff, ",")
				if ip := strings.TrimSpace(parts[0]); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// Middleware applies sliding-window admission control in front of every
// inbound request.
func Middleware(opts MiddlewareOptions) func(next http.Handler) http.Handler {
	keyFn := opts.KeyFn
	if keyFn == nil {
		keyFn = DefaultKeyFunc(opts.TrustXForwardedFor)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			if !opts.Limiter.Allow(key) {
				log.Warn().Str("key", key).Str("path", r.URL.Path).Msg("rate limit exceeded")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "Too many requests",
					"message": "Please try again later",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
