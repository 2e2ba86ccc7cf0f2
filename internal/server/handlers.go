package server

import (
	"context"
	"net/http"
	"time"
)

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Stores  string `json:"stores"`
}

// handleHealth answers 200 while the backing stores respond and 503 once
// one of them does not, so a load balancer can take the instance out.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{Status: "ok", Service: "foresight", Stores: "ok"}
	status := http.StatusOK

	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.HealthCheck(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Store health check failed")
			response.Status = "degraded"
			response.Stores = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	s.systemHandlers.writeJSON(w, status, response)
}
