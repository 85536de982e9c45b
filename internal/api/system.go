package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-adapters/internal/audit"
	"github.com/nerrad567/gray-logic-adapters/internal/device"
	"github.com/nerrad567/gray-logic-adapters/internal/home"
	"github.com/nerrad567/gray-logic-adapters/internal/manager"
)

// handleHealth reports "ok" when every adapter is connected, "degraded"
// otherwise. It always answers 200 so a supervisor does not restart the
// service for a flaky upstream.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	adapters := s.home.GetAdapterStatus()
	connected := 0
	for _, a := range adapters {
		if a.Status.Connected {
			connected++
		}
	}
	status := "ok"
	if connected < len(adapters) {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             status,
		"version":            s.version,
		"uptime_seconds":     int(time.Since(s.started).Seconds()),
		"adapters":           len(adapters),
		"adapters_connected": connected,
		"ws_clients":         s.hub.ClientCount(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "metrics disabled")
		return
	}
	s.metrics.Handler().ServeHTTP(w, r)
}

func (s *Server) handleListAreas(w http.ResponseWriter, r *http.Request) {
	areas := s.home.ListAreas(r.Context())
	if areas == nil {
		areas = []device.Area{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"areas": areas, "count": len(areas)})
}

func (s *Server) handleListAdapters(w http.ResponseWriter, _ *http.Request) {
	adapters := s.home.GetAdapterStatus()
	if adapters == nil {
		adapters = []manager.Info{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"adapters": adapters, "count": len(adapters)})
}

// handleListAudit pages the audit trail. Query parameters mirror
// audit.Filter.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		AdapterID:  q.Get("adapter_id"),
		Outcome:    q.Get("outcome"),
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	if f.Offset, err = intParam(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be a non-negative integer")
		return
	}

	res, err := s.home.AuditLogs(r.Context(), f)
	if errors.Is(err, home.ErrAuditUnavailable) {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit trail not configured")
		return
	}
	if err != nil {
		s.logger.Error("listing audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid")
	}
	return n, nil
}
