package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/BadgerOps/tuner/internal/store"
)

const maxFavoriteBodyBytes = 64 * 1024

type favoriteRequest struct {
	StationUUID string `json:"stationuuid"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Favicon     string `json:"favicon"`
	CountryCode string `json:"countrycode"`
	Tags        string `json:"tags"`
}

func (s *Server) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			jsonError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	favorites, err := s.store.ListFavorites(limit)
	if err != nil {
		s.logger.Error("failed to list favorites", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list favorites")
		return
	}
	writeJSON(w, http.StatusOK, favorites)
}

func (s *Server) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	var req favoriteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFavoriteBodyBytes)).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.StationUUID == "" || req.Name == "" {
		jsonError(w, http.StatusBadRequest, "stationuuid and name are required")
		return
	}

	fav := &store.Favorite{
		StationUUID: req.StationUUID,
		Name:        req.Name,
		URL:         req.URL,
		Favicon:     req.Favicon,
		CountryCode: req.CountryCode,
		Tags:        req.Tags,
	}
	if err := s.store.AddFavorite(fav); err != nil {
		if errors.Is(err, store.ErrInvalidStationUUID) {
			jsonError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("failed to add favorite", "station", req.StationUUID, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to add favorite")
		return
	}
	writeJSON(w, http.StatusCreated, fav)
}

func (s *Server) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uuid")
	if err := s.store.RemoveFavorite(id); err != nil {
		switch {
		case errors.Is(err, store.ErrInvalidStationUUID):
			jsonError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrNotFound):
			jsonError(w, http.StatusNotFound, err.Error())
		default:
			s.logger.Error("failed to remove favorite", "station", id, "error", err)
			jsonError(w, http.StatusInternalServerError, "failed to remove favorite")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
