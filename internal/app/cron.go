package app

import (
	"context"
	"time"

	"github.com/appsight/core/internal/modules/appstore"
	pkgcron "github.com/appsight/core/internal/pkg/cron"
	"github.com/appsight/core/internal/pkg/taskqueue"
	"go.uber.org/zap"
)

func (a *App) registerCronJobs(tasks *taskqueue.Service, apps *appstore.Service) {
	log := a.logger.Named("cron")

	a.sched.Register(pkgcron.Job{
		Name:        "expiration_sweep",
		Description: "Delete expired reports from the durable and hot tiers",
		Interval:    a.cfg.SweepInterval(),
		Fn: func(ctx context.Context) error {
			removed, err := a.coordinator.Sweep(ctx)
			if err != nil {
				return err
			}
			if removed > 0 {
				log.Info("expiration sweep finished", zap.Int("removed", removed))
			}
			return nil
		},
	})

	a.sched.Register(pkgcron.Job{
		Name:        "query_cache_cleanup",
		Description: "Evict expired entries from the per-provider query caches",
		Interval:    a.cfg.TrieCleanupInterval(),
		Fn: func(ctx context.Context) error {
			apps.CleanupQueries()
			return nil
		},
	})

	a.sched.Register(pkgcron.Job{
		Name:        "task_cleanup",
		Description: "Delete finished generation tasks past the retention window",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			cutoff := time.Now().Add(-time.Duration(a.cfg.Cache.TaskCleanupAfterHours) * time.Hour)
			return tasks.DeleteFinished(ctx, cutoff.UnixMilli())
		},
	})
}
