package scheduler

import (
	"context"

	"github.com/coachkit/settled/internal/clock"
	"github.com/coachkit/settled/internal/config"
	"github.com/coachkit/settled/internal/ingest"
	"github.com/coachkit/settled/internal/reconcile"
	settlementservice "github.com/coachkit/settled/internal/settlement/service"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(ProvideRedis),
	fx.Provide(NewLocker),
	fx.Provide(Provide),
	fx.Invoke(RunScheduler),
)

func ProvideConfig(cfg config.Config) Config {
	c := DefaultConfig()
	c.RunInterval = cfg.SchedulerRunInterval
	c.EnabledJobs = cfg.SchedulerEnabledJobs
	return c
}

// ProvideRedis returns nil when no address is configured; the scheduler then
// runs unguarded, which is the single-process mode.
func ProvideRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
}

func Provide(log *zap.Logger, cfg Config, clk clock.Clock, settlement *settlementservice.Service, rec *reconcile.Service, ing *ingest.Service, locker *Locker) (*Scheduler, error) {
	return New(log, cfg, clk, settlement, rec, ing, locker)
}

func RunScheduler(lc fx.Lifecycle, sched *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			runCtx, cancel := context.WithCancel(context.Background())

			go sched.RunForever(runCtx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
