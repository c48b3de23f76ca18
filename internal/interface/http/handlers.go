package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func actorFrom(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(ActorHeader))
}

func pathID(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// queryInt reads a non-negative integer query parameter; def when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, shared.Errorf("http", "parse", shared.ErrValidation, "%s must be a non-negative integer", name)
	}
	return n, nil
}

func queryBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}

func unavailable(w http.ResponseWriter, r *http.Request, what string) {
	writeJSONError(w, r, http.StatusNotImplemented, APIError{
		Code:    "not_configured",
		Message: what + " is not configured",
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, r, http.StatusOK, map[string]any{"healthy": true, "version": s.config.Version})
		return
	}
	status := s.deps.Health.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, r, http.StatusOK, map[string]bool{"ready": true})
		return
	}
	status := s.deps.Health.Check(r.Context())
	code := http.StatusOK
	if !status.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, map[string]any{"ready": status.Ready, "degraded": status.Degraded, "message": status.Message})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]bool{"alive": true})
}
