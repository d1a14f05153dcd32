package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hubizz/hubizz/internal/jobs"
	"github.com/hubizz/hubizz/internal/monitoring"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the job pool and the cron scheduler",
	Long:  "Runs scheduled feed imports, product reprocessing, dead letter retries, and the health alert checker. With a Redis cache configured, jobs are also pulled from the shared Redis queue.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "worker")
		if err != nil {
			return err
		}
		defer env.Close()

		pool, err := newPool(ctx, env)
		if err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return pool.Serve(gctx) })

		var queue jobs.Submitter = pool
		if env.Redis != nil {
			rq := jobs.NewRedisQueue(env.Redis, "")
			queue = rq
			g.Go(func() error { return rq.Pump(gctx, pool) })
		}

		sched := jobs.NewScheduler(env.Store, queue, pool, jobs.ScheduleConfig{
			ImportSchedule:   cfg.Jobs.ImportSchedule,
			ProductsSchedule: cfg.Jobs.ProductsSchedule,
			DLQSchedule:      cfg.Jobs.DLQSchedule,
		})
		if err := sched.Start(gctx); err != nil {
			stop()
			_ = g.Wait()
			return err
		}

		if once, _ := cmd.Flags().GetBool("enqueue-now"); once {
			n, err := sched.EnqueueDueFeeds(gctx)
			if err != nil {
				zap.L().Warn("initial feed enqueue failed", zap.Error(err))
			} else {
				zap.L().Info("queued due feeds", zap.Int("feeds", n))
			}
		}

		checker := monitoring.NewChecker(newCollector(env), monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
		g.Go(func() error {
			checker.Run(gctx)
			return nil
		})

		zap.L().Info("worker started")
		<-gctx.Done()
		<-sched.Stop().Done()
		return g.Wait()
	},
}

func init() {
	workerCmd.Flags().Bool("enqueue-now", false, "queue due feeds at startup instead of waiting for the first tick")
	rootCmd.AddCommand(workerCmd)
}
