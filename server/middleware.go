package server

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/mafa-systems/mafa-agents/pkg/httpx"
)

// requireAuth rejects requests whose credential is missing or not of the
// form "Bearer <token>" before any validation or business logic runs, and
// attaches the credential to the request context so every outbound call made
// for this request carries it. The scheme matches case-insensitively.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Missing or invalid authorization",
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(httpx.WithToken(r.Context(), "Bearer "+token)))
	})
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

// withRequestCache arms per-request GET memoization: parallel subtasks of one
// request share responses, and the cache dies with the request.
func withRequestCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(httpx.WithRequestCache(r.Context())))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// Hijack delegates to the underlying writer so the websocket upgrade keeps
// working behind the recorder.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("underlying writer does not support hijacking")
	}
	return hj.Hijack()
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if s.metrics != nil {
			s.metrics.RequestsTotal.WithLabelValues(r.URL.Path, statusClass(rec.status)).Inc()
			if rec.status == http.StatusTooManyRequests {
				s.metrics.RateLimitedTotal.Inc()
			}
		}
	})
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}
