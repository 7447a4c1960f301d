package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/BadgerOps/tuner/internal/radio"
	"github.com/BadgerOps/tuner/internal/store"
)

// Gateway is the station directory API served over HTTP.
// *radio.Gateway implements it.
type Gateway interface {
	GetRadioStations(ctx context.Context, q url.Values) ([]radio.Station, error)
	SearchStationsByName(ctx context.Context, query string, limit int) ([]radio.Station, error)
	GetStationsByCountry(ctx context.Context, code string, limit int) ([]radio.Station, error)
	GetStationsByTag(ctx context.Context, tag string, limit int) ([]radio.Station, error)
	GetPopularStations(ctx context.Context, limit int) ([]radio.Station, error)
	GetCountries(ctx context.Context) ([]radio.Country, error)
	GetTags(ctx context.Context, limit int) ([]radio.Tag, error)
	RecordStationClick(ctx context.Context, stationUUID string) bool
	HealthCheck(ctx context.Context) radio.HealthStatus
	ServerInfo() radio.ServerInfo
	RefreshServerCache(ctx context.Context) (string, error)
	Limits() radio.Limits
}

// FavoriteStore persists favorite stations. *store.Store implements it.
type FavoriteStore interface {
	AddFavorite(fav *store.Favorite) error
	RemoveFavorite(stationUUID string) error
	ListFavorites(limit int) ([]store.Favorite, error)
}

// RequestObserver records served requests. *metrics.Collector implements it.
type RequestObserver interface {
	ObserveRequest(route string, code int, elapsed time.Duration)
}

// Options configures the HTTP surface. Zero values disable the feature they
// control.
type Options struct {
	RateLimit      float64
	RateBurst      int
	RequestTimeout time.Duration
	Gatherer       prometheus.Gatherer
	Requests       RequestObserver
}

// Server represents the HTTP server for the station API.
type Server struct {
	gateway    Gateway
	store      FavoriteStore
	logger     *slog.Logger
	opts       Options
	limiter    *rate.Limiter
	httpServer *http.Server
}

// NewServer creates a new Server instance.
func NewServer(gw Gateway, st FavoriteStore, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		gateway: gw,
		store:   st,
		logger:  logger,
		opts:    opts,
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return s
}

// Start starts the HTTP server on the given listen address.
func (s *Server) Start(listenAddr string) error {
	s.httpServer = &http.Server{
		Addr:              listenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", listenAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Handler builds the router with every route and middleware attached.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	if s.opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Use(s.requestTimeout)

		r.Get("/stations", s.handleStations)
		r.Get("/stations/search", s.handleSearchStations)
		r.Get("/stations/popular", s.handlePopularStations)
		r.Get("/stations/country/{code}", s.handleStationsByCountry)
		r.Get("/stations/tag/{tag}", s.handleStationsByTag)
		r.Post("/stations/{uuid}/click", s.handleStationClick)

		r.Get("/countries", s.handleCountries)
		r.Get("/tags", s.handleTags)

		r.Get("/health", s.handleHealth)
		r.Get("/admin/mirrors", s.handleMirrors)
		r.Post("/admin/mirrors/refresh", s.handleRefreshMirrors)

		r.Get("/favorites", s.handleListFavorites)
		r.Post("/favorites", s.handleAddFavorite)
		r.Delete("/favorites/{uuid}", s.handleRemoveFavorite)
	})

	return r
}
