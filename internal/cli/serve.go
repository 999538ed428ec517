package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/phishlens/internal/pipeline"
	"github.com/ppiankov/phishlens/internal/server"
)

var listenAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the scanner over a local HTTP API",
	Long: `Serve runs a JSON API for a browser extension or other local clients:

  GET  /healthz          model state
  POST /v1/scan          {"url": "...", "page": {"title": "...", "hyperlinks": [...]}}
  POST /v1/features      feature vector for a URL and page
  GET  /v1/descriptions  feature descriptions
  GET  /v1/history       recent scans

When "page" is supplied the server scores the caller's view of the page
and does not fetch it.

Example:
  phishlens serve
  phishlens serve --addr 127.0.0.1:9000`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}

	logger := slog.Default()
	components, err := pipeline.Build(cfg, pipeline.BuildOptions{Version: Version, Logger: logger})
	if err != nil {
		return err
	}
	defer func() { _ = components.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// warm the model so the first request isn't slow; failures surface in /healthz
	if err := components.Model.LoadOnce(ctx); err != nil {
		logger.Warn("model load failed", "error", err)
	}

	srvCfg := server.Config{ListenAddr: cfg.Server.ListenAddr, Logger: logger}
	if components.History != nil {
		srvCfg.History = components.History
	}

	srv := server.New(srvCfg, components.Pipeline, components.Model)
	fmt.Fprintf(os.Stderr, "✓ PhishLens API on http://%s (model: %s)\n", cfg.Server.ListenAddr, components.Model.Describe())

	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return contextErr(ctx)
}

// contextErr hides the cancellation that ends a clean shutdown
func contextErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
