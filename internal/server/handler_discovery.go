package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name      string         `json:"name"`
	Commands  []string       `json:"commands"`
	Endpoints []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:     "Slurm job tracker",
		Commands: []string{"submit_task", "get_status", "get_queue", "get_info"},
		Endpoints: []endpointInfo{
			{"/", []string{"POST"}, "Execute a command: {\"command\": ..., \"args\": {...}}"},
			{"/healthz", []string{"GET"}, "Tracker health and counts"},
			{"/metrics", []string{"GET"}, "Prometheus metrics"},
		},
	})
}
