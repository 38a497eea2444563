package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const healthCheckTimeout = 3 * time.Second

// DependencyCheck probes one backing service. A nil Probe marks the
// dependency as intentionally not configured: it reports "unavailable" and
// does not degrade overall health.
type DependencyCheck struct {
	Name  string
	Probe func(ctx context.Context) error
}

// handleHealth reports per-dependency status without requiring auth. Overall
// status is "healthy" only when every dependency is healthy or intentionally
// unavailable; any probe failure degrades it. The endpoint itself always
// answers 200 so orchestrators can distinguish degraded from down.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	overall := "healthy"
	deps := make(map[string]string, len(s.checks))
	for _, check := range s.checks {
		if check.Probe == nil {
			deps[check.Name] = "unavailable"
			continue
		}
		if err := check.Probe(ctx); err != nil {
			deps[check.Name] = "unhealthy"
			overall = "degraded"
			log.Warn().Err(err).Str("dependency", check.Name).Msg("health probe failed")
			continue
		}
		deps[check.Name] = "healthy"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":                overall,
		"version":               s.version,
		"timestamp":             time.Now().UTC().Format(time.RFC3339),
		"dependencies":          deps,
		"websocket_connections": s.hub.Count(),
	})
}
