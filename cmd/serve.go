package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/shelfripper/internal/config"
	"github.com/lehigh-university-libraries/shelfripper/internal/download"
	"github.com/lehigh-university-libraries/shelfripper/internal/handlers"
)

func newServeCmd(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the download job API",
		Long: `Starts a JSON API that runs bookshelf downloads as background jobs.

Jobs are created with POST /api/jobs and their PDFs are served from
/api/jobs/{id}/documents/{ordinal} once each book finishes.`,
		Example: `  # Start server on the configured port (default 8888)
  shelfripper serve

  # Start server on custom port
  shelfripper serve --port 3000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.Merge(config.Config{Port: port})
			if err := cfg.Validate(); err != nil {
				return usageError("%v", err)
			}
			if _, err := a.orchestrator(); err != nil {
				return err
			}

			jobsCtx, cancelJobs := context.WithCancel(cmd.Context())
			defer cancelJobs()

			handler := handlers.New(jobsCtx, func() *download.Orchestrator {
				o, _ := a.orchestrator()
				return o
			})

			addr := ":" + strconv.Itoa(cfg.Port)
			server := &http.Server{
				Addr:    addr,
				Handler: handler.Routes(),
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Shelfripper API available", "addr", addr, "url", "http://localhost"+addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				cancelJobs()
				// Give server 5 seconds to shut down gracefully
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				handler.Wait()
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default from config, 8888)")

	return cmd
}
