package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/BadgerOps/tuner/internal/config"
	"github.com/BadgerOps/tuner/internal/metrics"
	"github.com/BadgerOps/tuner/internal/mirror"
	"github.com/BadgerOps/tuner/internal/radio"
	"github.com/BadgerOps/tuner/internal/store"
	"github.com/BadgerOps/tuner/internal/upstream"
)

var (
	// Global flags
	cfgPath   string
	logLevel  string
	logFormat string
	quiet     bool
	globalCfg *config.Config
	logger    *slog.Logger

	// Global components
	globalStore     *store.Store
	globalDiscovery *mirror.Discovery
	globalSelector  *mirror.Selector
	globalCache     *mirror.SelectionCache
	globalGateway   *radio.Gateway
	globalMetrics   *metrics.Collector
	globalRegistry  *prometheus.Registry
)

// initializeComponents wires the mirror stack and the gateway from globalCfg
func initializeComponents() error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}
	cfg := globalCfg

	globalRegistry = prometheus.NewRegistry()
	globalRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector, err := metrics.New(globalRegistry)
	if err != nil {
		return err
	}
	globalMetrics = collector
	observer := mirror.Observers{mirror.NewLogObserver(logger), collector}

	var resolver mirror.Resolver
	if cfg.Discovery.Nameserver != "" {
		resolver = mirror.NewDNSResolver(cfg.Discovery.Nameserver, cfg.Gateway.ProbeTimeout)
		logger.Debug("using direct nameserver for discovery", "nameserver", cfg.Discovery.Nameserver)
	}

	discoveryOpts := mirror.DiscoveryOptions{
		SRVService: cfg.Discovery.SRVService,
		SRVProto:   cfg.Discovery.SRVProto,
		Domain:     cfg.Discovery.Domain,
		LookupHost: cfg.Discovery.LookupHost,
		Fallback:   cfg.Fallbacks(),
	}
	globalDiscovery, err = mirror.NewDiscovery(resolver, discoveryOpts, logger, observer)
	if errors.Is(err, mirror.ErrNoFallbackMirrors) {
		logger.Warn("no usable fallback mirrors configured, using built-in list")
		discoveryOpts.Fallback = config.DefaultFallbackMirrors
		globalDiscovery, err = mirror.NewDiscovery(resolver, discoveryOpts, logger, observer)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize discovery: %w", err)
	}

	stats := mirror.NewHealthStats()
	prober := mirror.NewProber(nil, cfg.Gateway.UserAgent, stats, observer)
	globalSelector = mirror.NewSelector(globalDiscovery, prober, cfg.Gateway.ProbeTimeout, logger, observer)
	globalCache = mirror.NewSelectionCache(globalSelector, stats, cfg.Gateway.CacheTTL, logger, observer)

	exec := upstream.NewExecutor(globalCache, nil, upstream.ExecutorOptions{
		MaxRetries: cfg.Gateway.MaxRetries,
		BaseDelay:  cfg.Gateway.RetryBaseDelay,
		Multiplier: cfg.Gateway.RetryMultiple,
		UserAgent:  cfg.Gateway.UserAgent,
	}, logger, observer)

	globalGateway = radio.NewGateway(exec, globalCache, prober, radio.Options{
		Limits:        radio.Limits{Default: cfg.Gateway.DefaultLimit, Max: cfg.Gateway.MaxLimit},
		ListTTL:       cfg.Cache.ListTTL,
		ListSize:      cfg.Cache.ListSize,
		ProbeTimeout:  cfg.Gateway.ProbeTimeout,
		OrderObserver: collector,
	}, logger)

	logger.Debug("components initialized successfully")
	return nil
}

// openStore opens the favorites database once
func openStore() (*store.Store, error) {
	if globalStore != nil {
		return globalStore, nil
	}
	st, err := store.New(globalCfg.Server.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	globalStore = st
	return st, nil
}

// shouldSkipComponentInit checks if a command should skip component initialization
func shouldSkipComponentInit(cmd *cobra.Command) bool {
	skipInitCmds := map[string]bool{
		"help":    true,
		"version": true,
		"show":    true,
		"config":  true,
	}
	return skipInitCmds[cmd.Name()]
}

// closeStore closes the global store connection
func closeStore() {
	if globalStore != nil {
		if err := globalStore.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
		globalStore = nil
	}
}

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tuner",
		Short: "Failover gateway for the community radio station directory",
		Long: `tuner discovers the mirrors of the radio-browser.info station directory,
keeps the fastest healthy one selected, and answers station queries through it,
retrying on a freshly selected mirror when the current one fails.

Run it as an HTTP service with "tuner serve" or query the directory directly
from the terminal.`,
		Example: `  tuner serve --listen 127.0.0.1:8080
  tuner mirrors probe
  tuner stations search jazz --limit 10
  tuner stations country DE
  tuner favorites add 960e57c5-0601-11e8-ae97-52543be04c81`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()

			if shouldSkipConfig(cmd.Name()) {
				return nil
			}

			if err := loadConfig(); err != nil {
				return err
			}

			if !shouldSkipComponentInit(cmd) {
				if err := initializeComponents(); err != nil {
					return fmt.Errorf("failed to initialize components: %w", err)
				}
			}

			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			closeStore()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (auto-discovered if not specified)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text or json)")
	cmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	cmd.AddCommand(
		newServeCmd(),
		newMirrorsCmd(),
		newStationsCmd(),
		newCountriesCmd(),
		newTagsCmd(),
		newClickCmd(),
		newFavoritesCmd(),
		newConfigCmd(),
	)

	return cmd
}

// loadConfig reads the config file (if any), applies TUNER_* overrides and
// validates the result
func loadConfig() error {
	path := cfgPath
	if path == "" {
		found, err := config.FindConfigFile()
		if err != nil {
			logger.Debug("config file not found, using defaults", "error", err)
		}
		path = found
	}

	cfg := config.DefaultConfig()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return fmt.Errorf("invalid environment override: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	globalCfg = cfg
	logger.Debug("config loaded", "path", path)
	return nil
}

// setupLogging initializes the slog logger based on flags
func setupLogging() {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if quiet {
		level = slog.LevelError
	}

	var handler slog.Handler
	if strings.ToLower(logFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// shouldSkipConfig checks if a command should skip config loading
func shouldSkipConfig(cmdName string) bool {
	skipConfigCmds := map[string]bool{
		"help":    true,
		"version": true,
	}
	return skipConfigCmds[cmdName]
}
