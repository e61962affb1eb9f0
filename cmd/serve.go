package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spacecat/sage/internal/handlers"
	"github.com/spacecat/sage/internal/metrics"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var port string
	var exportDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the JSON API for a captioning front-end",
		Long: `Starts the Sage HTTP API on the specified port.

The API exposes file import, caption generation (single and batch),
cancellation, caption and viewed-state storage, and export. Generation
runs in the background; poll /api/generation for progress and results.
Prometheus metrics are served at /metrics.`,
		Example: `  # Start server on default port 8888
  sage serve

  # Start server on custom port with a specific workspace
  sage serve --port 3000 --workspace ./my-session`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := a.openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			if exportDir == "" {
				exportDir = filepath.Join(a.cfg.DataDir, "exports")
			}

			metrics.Init()
			handler := handlers.New(ctx, sess, a.loadSettings, exportDir)

			// Set up routes
			mux := http.NewServeMux()
			handler.Routes(mux)
			mux.Handle("/metrics", metrics.Handler())
			mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
				if _, err := w.Write([]byte("OK")); err != nil {
					slog.Error("Unable to write healthcheck", "err", err)
				}
			})

			addr := ":" + port
			server := &http.Server{
				Addr:              addr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Sage API available", "addr", addr, "url", "http://localhost"+addr, "workspace", sess.Dir())
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-ctx.Done():
				slog.Info("Shutting down server...")
				sess.CancelGeneration()
				// Give server 5 seconds to shut down gracefully
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8888", "Port to listen on")
	cmd.Flags().StringVar(&exportDir, "export-dir", "", "Default export directory (default <data dir>/exports)")

	return cmd
}
