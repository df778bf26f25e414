package diag

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/journal"
	"github.com/nerrad567/gray-logic-node/internal/supervisor"
)

const healthCheckTimeout = 3 * time.Second

// HealthResponse is the /api/v1/health body.
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime"`
	Components map[string]string `json:"components,omitempty"`
}

// StatusResponse is the /api/v1/status body.
type StatusResponse struct {
	supervisor.Snapshot
	BootID    string `json:"boot_id,omitempty"`
	BootCount int    `json:"boot_count,omitempty"`
	Clients   int    `json:"stream_clients"`
}

// JournalResponse is the /api/v1/journal body.
type JournalResponse struct {
	Boots       []journal.Boot  `json:"boots"`
	Transitions []journal.Entry `json:"transitions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:  "healthy",
		Version: s.version,
		Uptime:  time.Since(s.started).Truncate(time.Second).String(),
	}
	status := http.StatusOK
	if len(s.checks) > 0 {
		resp.Components = make(map[string]string, len(s.checks))
		for _, c := range s.checks {
			if err := c.Check(ctx); err != nil {
				resp.Components[c.Name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Components[c.Name] = "ok"
		}
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Snapshot: s.snapshot(),
		Clients:  s.hub.ClientCount(),
	}
	if s.journal != nil {
		resp.BootID = s.journal.BootID()
		n, err := s.journal.BootCount(r.Context())
		if err != nil {
			s.logger.Warn("boot count unavailable", "error", err)
		}
		resp.BootCount = n
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, errCodeUnavailable, "journal disabled")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	boots, err := s.journal.Boots(r.Context(), limit)
	if err != nil {
		s.logger.Error("reading boots failed", "error", err)
		writeInternalError(w, "reading journal failed")
		return
	}
	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("reading transitions failed", "error", err)
		writeInternalError(w, "reading journal failed")
		return
	}
	writeJSON(w, http.StatusOK, JournalResponse{Boots: boots, Transitions: entries})
}
