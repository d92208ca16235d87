package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cnyre/internal/api"
	"github.com/roach88/cnyre/internal/metrics"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query facade over HTTP",
		Long: `Serve read-only HTTP endpoints over the store:

  GET /api/properties?class=&zip=&district=&limit=&offset=
  GET /api/properties/{id}
  GET /api/health
  GET /metrics

Example:
  cnyre serve --db ./cnyre.db --addr :8080`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			st, err := openExisting(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			router := api.NewRouter(api.NewHandler(st), api.Options{
				AllowedOrigins: cfg.Server.AllowedOrigins,
				Metrics:        metrics.New().Handler(),
			})
			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				slog.Info("serving", "addr", cfg.Server.Addr, "db", cfg.Database.Path)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return WrapExitError(ExitFailure, "server error", err)
				}
				return nil
			case <-ctx.Done():
				slog.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return WrapExitError(ExitFailure, "shutdown failed", err)
				}
				return nil
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
