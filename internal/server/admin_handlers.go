package server

import (
	"net/http"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.gateway.HealthCheck(r.Context())
	code := http.StatusOK
	if !status.Healthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (s *Server) handleMirrors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.gateway.ServerInfo())
}

func (s *Server) handleRefreshMirrors(w http.ResponseWriter, r *http.Request) {
	m, err := s.gateway.RefreshServerCache(r.Context())
	if err != nil {
		s.gatewayError(w, r, "refresh", err)
		return
	}
	s.logger.Info("mirror selection refreshed by request", "mirror", m)
	writeJSON(w, http.StatusOK, map[string]string{"mirror": m})
}
