package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/BadgerOps/tuner/internal/radio"
)

const unavailableMessage = "service temporarily unavailable"

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// gatewayError maps a gateway failure to a response. Upstream details are
// logged, never returned.
func (s *Server) gatewayError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, radio.ErrInvalidArgument) {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error("gateway request failed", "op", op, "path", r.URL.Path, "error", err)
	jsonError(w, http.StatusServiceUnavailable, unavailableMessage)
}

// queryLimit reads the limit query parameter. Missing or malformed values
// fall back to the gateway default; range clamping is left to the gateway.
func (s *Server) queryLimit(r *http.Request) int {
	def := s.gateway.Limits().Default
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
