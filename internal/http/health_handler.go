package http

import (
	"log/slog"
	"net/http"
)

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Service) handleHealthz(w http.ResponseWriter, r *http.Request) {
	healthy, err := s.health.IsHealthy(r.Context())
	if err != nil {
		s.logger.WarnContext(r.Context(), "health check failed", slog.Any("error", err))
	}

	if !healthy {
		s.writeJSON(w, r, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
		return
	}
	s.writeJSON(w, r, http.StatusOK, healthResponse{Status: "ok"})
}
