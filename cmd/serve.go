package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/studyguide/internal/handlers"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the study guide web interface",
		Long: `Starts the Studyguide web interface.

Upload a PDF to have it analyzed by the configured LLM provider (Gemini,
OpenAI or Ollama). Each generated visualization runs in its own sandboxed
frame and can be regenerated individually.`,
		Example: `  # Start server on the configured address (default :8888)
  studyguide serve

  # Start server on a custom address
  studyguide serve --addr :3000

  # Use a local Ollama model
  STUDYGUIDE_PROVIDER=ollama OLLAMA_MODEL=llama3.2 studyguide serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.cfg.Addr
			}
			handler := handlers.New(handlers.Deps{
				Store:          a.store,
				Analyzer:       a.analysis,
				Host:           a.host,
				Workflow:       a.workflow,
				Hub:            a.hub,
				Related:        a.related,
				MaxUploadBytes: a.cfg.MaxUploadBytes,
			})

			server := &http.Server{
				Addr:              addr,
				Handler:           handler.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Studyguide interface available", "addr", addr, "url", "http://localhost"+addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
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

	cmd.Flags().StringVar(&addr, "addr", "", "Address to listen on (overrides config)")

	return cmd
}
