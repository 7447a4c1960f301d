package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	stations, err := s.gateway.GetRadioStations(r.Context(), r.URL.Query())
	if err != nil {
		s.gatewayError(w, r, "stations", err)
		return
	}
	writeJSON(w, http.StatusOK, stations)
}

func (s *Server) handleSearchStations(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		jsonError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	stations, err := s.gateway.SearchStationsByName(r.Context(), q, s.queryLimit(r))
	if err != nil {
		s.gatewayError(w, r, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, stations)
}

func (s *Server) handlePopularStations(w http.ResponseWriter, r *http.Request) {
	stations, err := s.gateway.GetPopularStations(r.Context(), s.queryLimit(r))
	if err != nil {
		s.gatewayError(w, r, "popular", err)
		return
	}
	writeJSON(w, http.StatusOK, stations)
}

func (s *Server) handleStationsByCountry(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		jsonError(w, http.StatusBadRequest, "country code is required")
		return
	}

	stations, err := s.gateway.GetStationsByCountry(r.Context(), code, s.queryLimit(r))
	if err != nil {
		s.gatewayError(w, r, "country", err)
		return
	}
	writeJSON(w, http.StatusOK, stations)
}

func (s *Server) handleStationsByTag(w http.ResponseWriter, r *http.Request) {
	tag := strings.TrimSpace(chi.URLParam(r, "tag"))
	if tag == "" {
		jsonError(w, http.StatusBadRequest, "tag is required")
		return
	}

	stations, err := s.gateway.GetStationsByTag(r.Context(), tag, s.queryLimit(r))
	if err != nil {
		s.gatewayError(w, r, "tag", err)
		return
	}
	writeJSON(w, http.StatusOK, stations)
}

func (s *Server) handleStationClick(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "uuid"))
	if id == "" {
		jsonError(w, http.StatusBadRequest, "station uuid is required")
		return
	}

	ok := s.gateway.RecordStationClick(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]bool{"success": ok})
}

func (s *Server) handleCountries(w http.ResponseWriter, r *http.Request) {
	countries, err := s.gateway.GetCountries(r.Context())
	if err != nil {
		s.gatewayError(w, r, "countries", err)
		return
	}
	writeJSON(w, http.StatusOK, countries)
}

func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.gateway.GetTags(r.Context(), s.queryLimit(r))
	if err != nil {
		s.gatewayError(w, r, "tags", err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}
