package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/BadgerOps/tuner/internal/server"
)

var serveListen string

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the JSON HTTP API in front of the station directory. A mirror is
selected in the background at startup; requests made before it completes
trigger selection themselves.

By default, the server listens on the address configured in the config file
(default: 0.0.0.0:8080). Use --listen to override.`,
		Example: `  tuner serve
  tuner serve --listen 127.0.0.1:9000`,
		RunE: serveRun,
	}

	cmd.Flags().StringVar(&serveListen, "listen", "", "address to listen on (host:port)")

	return cmd
}

func serveRun(cmd *cobra.Command, args []string) error {
	log := slog.Default()

	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}
	if globalGateway == nil {
		return fmt.Errorf("gateway not initialized")
	}

	listen := serveListen
	if listen == "" {
		listen = globalCfg.Server.Listen
	}

	st, err := openStore()
	if err != nil {
		return err
	}

	srv := server.NewServer(globalGateway, st, server.Options{
		RateLimit:      globalCfg.Server.RateLimit,
		RateBurst:      globalCfg.Server.RateBurst,
		RequestTimeout: globalCfg.Gateway.RequestTimeout,
		Gatherer:       globalRegistry,
		Requests:       globalMetrics,
	}, logger)

	ctx := cmd.Context()

	go func() {
		warmCtx, cancel := context.WithTimeout(ctx, globalCfg.Gateway.RequestTimeout)
		defer cancel()
		if _, err := globalCache.GetMirror(warmCtx, false); err != nil {
			log.Warn("initial mirror selection failed", "error", err)
		}
	}()

	errChan := make(chan error, 1)
	go func() {
		log.Info("server starting", "listen", listen, "version", version)
		if err := srv.Start(listen); err != nil {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		log.Info("received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		log.Info("server stopped gracefully")
	}

	return nil
}
