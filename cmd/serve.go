package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sightings-cli/internal/aggregate"
	"github.com/sells-group/sightings-cli/internal/api"
	"github.com/sells-group/sightings-cli/internal/catalog"
	"github.com/sells-group/sightings-cli/internal/metrics"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the query API for the map front end",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pool, st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		ref, err := catalog.Load(ctx, cfg.Reference, catalog.Parts{Grids: true})
		if err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		qm, err := metrics.NewQuery(reg)
		if err != nil {
			return err
		}

		handler := api.NewRouter(st, aggregate.New(st, ref, qm), api.Options{
			CORSOrigins:  cfg.Server.CORSOrigins,
			QueryTimeout: time.Duration(cfg.Server.QueryTimeoutSecs) * time.Second,
			DefaultGrids: ref.GridNames(),
			Gatherer:     reg,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port), zap.Strings("grids", ref.GridNames()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
