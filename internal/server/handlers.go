package server

import (
	"net/http"
	"time"
)

// handleHealth composes component health checks into one report. The
// response is 200 when every component is healthy, 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	services := map[string]any{}
	healthy := true

	if s.db != nil {
		dbHealth := s.db.HealthCheck(ctx)
		services["database"] = dbHealth
		healthy = healthy && dbHealth.Status == "healthy"
	}
	if s.queue != nil {
		queueHealth := s.queue.HealthCheck(ctx)
		services["message_queue"] = queueHealth
		healthy = healthy && queueHealth.Status == "healthy"
	}
	if s.hub != nil {
		services["realtime"] = map[string]any{
			"status":             "healthy",
			"active_connections": s.hub.Stats().ActiveConnections,
		}
	}
	if s.media != nil {
		if stats, err := s.media.Stats(); err != nil {
			services["media_cache"] = map[string]any{"status": "unhealthy", "error": err.Error()}
			healthy = false
		} else {
			services["media_cache"] = map[string]any{"status": "healthy", "files": stats.FileCount}
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services":  services,
	})
}

// handleStatus reports the sync orchestrator state and stored dataset
// counts.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if s.orch != nil {
		resp["sync"] = s.orch.Status()
	}
	if s.store != nil {
		counts, err := s.store.Counts(r.Context())
		if err != nil {
			s.logger.Error("Failed to read store counts", "error", err)
			s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		resp["database"] = counts
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleStats reports queue depths, hub activity, and media cache usage.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if s.queue != nil {
		stats, err := s.queue.Stats(r.Context())
		if err != nil {
			s.logger.Error("Failed to read queue stats", "error", err)
			s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		resp["queues"] = stats
	}
	if s.hub != nil {
		resp["realtime"] = s.hub.Stats()
	}
	if s.media != nil {
		if stats, err := s.media.Stats(); err == nil {
			resp["media_cache"] = stats
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}
