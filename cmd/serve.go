package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hubizz/hubizz/internal/api"
	"github.com/hubizz/hubizz/internal/dedup"
	"github.com/hubizz/hubizz/internal/jobs"
	"github.com/hubizz/hubizz/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long:  "Serves duplicate checks, fingerprinting, and product matching over HTTP. Feed imports are queued on Redis when it is configured, else run in-process.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		g, gctx := errgroup.WithContext(ctx)

		var queue jobs.Submitter
		if env.Redis != nil {
			queue = jobs.NewRedisQueue(env.Redis, "")
			zap.L().Info("jobs will be queued on redis for the worker")
		} else {
			pool, err := newPool(ctx, env)
			if err != nil {
				return err
			}
			queue = pool
			g.Go(func() error { return pool.Serve(gctx) })
		}

		srv := buildServer(env, queue)
		port := resolvePort(servePort, cfg.Server.Port)
		g.Go(func() error { return api.Serve(gctx, srv.Router(), port) })

		return g.Wait()
	},
}

func buildServer(env *appEnv, queue jobs.Submitter) *api.Server {
	return &api.Server{
		Dedup: env.Detector,
		Stats: api.StatsFunc(func(ctx context.Context) (*model.DedupStats, error) {
			return dedup.Statistics(ctx, env.Store)
		}),
		Matcher:     env.Matcher,
		Products:    env.Products,
		Feeds:       env.Store,
		Jobs:        queue,
		Metrics:     newCollector(env),
		CORSOrigins: cfg.Server.CORSOrigins,

		MetricsLookbackHours: cfg.Monitoring.LookbackWindowHours,
	}
}

// resolvePort prefers the flag over the configured port.
func resolvePort(flag, configured int) int {
	if flag != 0 {
		return flag
	}
	return configured
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
