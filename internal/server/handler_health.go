package server

import (
	"net/http"
	"runtime"
	"time"
)

type healthResponse struct {
	Status    string     `json:"status"`
	GoVersion string     `json:"go_version"`
	Uptime    string     `json:"uptime"`
	Running   int        `json:"running_jobs"`
	Completed int        `json:"completed_jobs"`
	Queued    int        `json:"queued_tasks"`
	Cycles    uint64     `json:"cycles"`
	LastCycle *time.Time `json:"last_cycle,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	stats := s.dispatcher.Stats()

	resp := healthResponse{
		Status:    "healthy",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Running:   stats.Running,
		Completed: stats.Completed,
		Queued:    stats.Queued,
		Cycles:    stats.Cycles,
		LastError: stats.LastError,
	}
	if !stats.LastCycle.IsZero() {
		lc := stats.LastCycle.UTC()
		resp.LastCycle = &lc
	}
	if stats.LastError != "" {
		resp.Status = "degraded"
	}
	respondOK(w, reqID, resp)
}
