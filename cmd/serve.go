package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/codeqa/codeqa/internal/logging"
	"github.com/codeqa/codeqa/internal/pipeline"
	"github.com/codeqa/codeqa/internal/probe"
	"github.com/codeqa/codeqa/internal/server"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve analysis and probing over HTTP",
	Long: `Start an HTTP server exposing the analyzer as a JSON API. It listens on
127.0.0.1:8080 unless server.addr or --addr says otherwise. Browsers may only
call it from origins listed in server.allowed_origins, and server.allowed_roots
limits which directories can be analyzed.

Endpoints:
  GET  /health
  POST /v1/analyze   {"path": ".", "ports": [3000], "languages": ["python"]}
  POST /v1/probe     {"ports": [3000, 8000]}
  GET  /v1/rules`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default is server.addr, 127.0.0.1:8080)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd)

	analyzer, err := pipeline.New(cfg, logger)
	if err != nil {
		return err
	}
	prober := probe.NewProber(&cfg.Probe, logger)

	addr := cfg.Server.Addr
	if flagAddr, _ := cmd.Flags().GetString("addr"); flagAddr != "" {
		addr = flagAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.NewRouter(analyzer, prober, &cfg.Server, logger, Version),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// An analysis may run up to the component timeout.
		WriteTimeout: cfg.Pipeline.ComponentTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", logging.F("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}
