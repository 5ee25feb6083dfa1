package commands

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/armelgeek/better-query/internal/web/response"
	"github.com/armelgeek/better-query/internal/web/server"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			ctx := commandContext(cmd)
			a, err := buildApp(ctx, cfg, logger, nil)
			if err != nil {
				return err
			}
			if res := a.bq.Migration(); res != nil {
				logger.Info("auto-migration", zap.Strings("created", res.Created), zap.Strings("drifted", res.Drifted))
			}

			srv, err := server.New(&server.Config{
				Address:           cfg.Server.Address(),
				Handler:           rootHandler(a),
				ReadTimeout:       cfg.Server.ReadTimeout,
				WriteTimeout:      cfg.Server.WriteTimeout,
				IdleTimeout:       cfg.Server.IdleTimeout,
				ReadHeaderTimeout: cfg.Server.ReadTimeout,
				MaxHeaderBytes:    1 << 20,
			}, logger)
			if err != nil {
				a.Close()
				return err
			}
			gs := server.NewGracefulShutdown(srv, &server.ShutdownConfig{Timeout: cfg.Server.ShutdownTimeout})
			gs.RegisterHook(func(context.Context) error { return a.Close() })
			return gs.Run(ctx)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "override server.port")
	return cmd
}

// rootHandler serves the API next to a health probe
func rootHandler(a *app) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		status := map[string]string{"status": "ok"}
		if a.db != nil {
			if err := a.db.PingContext(req.Context()); err != nil {
				response.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		response.JSON(w, http.StatusOK, status)
	})
	r.Mount("/", a.bq.Handler())
	return r
}
