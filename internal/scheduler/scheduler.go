// Package scheduler drives the periodic settlement work: claiming due
// disbursement tasks, the nightly snapshot reconciliation, and the watermark
// ingestion jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coachkit/settled/internal/clock"
	obsmetrics "github.com/coachkit/settled/internal/observability/metrics"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler: missing required dependency")

type disbursementRunner interface {
	RunDueTasks(ctx context.Context) error
}

type reconcileRunner interface {
	Run(ctx context.Context) error
}

type runLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type ingestRunner interface {
	IngestCharges(ctx context.Context) error
	IngestApplicationFees(ctx context.Context) error
	IngestMerchantCharges(ctx context.Context) error
	IngestMerchantCustomers(ctx context.Context) error
	IngestMerchantSubscriptions(ctx context.Context) error
}

type Scheduler struct {
	log   *zap.Logger
	cfg   Config
	clock clock.Clock

	settlement disbursementRunner
	reconcile  reconcileRunner
	ingest     ingestRunner
	locker     runLocker

	mu      sync.Mutex
	lastRun map[string]time.Time
}

func New(log *zap.Logger, cfg Config, clk clock.Clock, settlement disbursementRunner, reconcile reconcileRunner, ingest ingestRunner, locker *Locker) (*Scheduler, error) {
	if log == nil || clk == nil || settlement == nil || reconcile == nil || ingest == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        cfg.withDefaults(),
		clock:      clk,
		settlement: settlement,
		reconcile:  reconcile,
		ingest:     ingest,
		locker:     locker,
		lastRun:    make(map[string]time.Time),
	}, nil
}

type job struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	run      func(ctx context.Context) error
}

func (s *Scheduler) jobs() []job {
	return []job{
		{"disburse_due", s.cfg.DisburseInterval, 2 * time.Minute, s.settlement.RunDueTasks},
		{"reconcile_snapshots", s.cfg.ReconcileInterval, 10 * time.Minute, s.reconcile.Run},
		{"ingest_charges", s.cfg.IngestInterval, 30 * time.Minute, s.ingest.IngestCharges},
		{"ingest_fees", s.cfg.IngestInterval, 30 * time.Minute, s.ingest.IngestApplicationFees},
		{"ingest_merchant_charges", s.cfg.IngestInterval, 30 * time.Minute, s.ingest.IngestMerchantCharges},
		{"ingest_merchant_customers", s.cfg.IngestInterval, 30 * time.Minute, s.ingest.IngestMerchantCustomers},
		{"ingest_merchant_subscriptions", s.cfg.IngestInterval, 30 * time.Minute, s.ingest.IngestMerchantSubscriptions},
	}
}

// RunOnce runs every enabled, due job once. Job errors are joined, not
// fatal: a broken ingest job cannot stop disbursements.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.name) {
			continue
		}
		if !s.isDue(j.name, j.interval) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, j))
	}
	return err
}

// isDue reports whether the job's interval has elapsed since its last run in
// this process.
func (s *Scheduler) isDue(name string, interval time.Duration) bool {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastRun[name]
	return !ok || now.Sub(last) >= interval
}

func (s *Scheduler) markRan(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun[name] = s.clock.Now()
}

func (s *Scheduler) runJob(parent context.Context, j job) error {
	token, acquired, err := s.locker.TryLock(parent, "settled:scheduler:"+j.name, s.cfg.LockTTL)
	if err != nil {
		s.log.Warn("run lock unavailable, skipping job",
			zap.String("job", j.name),
			zap.Error(err),
		)
		return nil
	}
	if !acquired {
		s.log.Debug("another replica holds the run lock", zap.String("job", j.name))
		return nil
	}
	// the due slot is consumed only once the lock is held, so a replica that
	// loses the race retries on the next tick instead of waiting an interval
	s.markRan(j.name)
	defer func() {
		if relErr := s.locker.Release(parent, "settled:scheduler:"+j.name, token); relErr != nil {
			s.log.Warn("run lock release failed", zap.String("job", j.name), zap.Error(relErr))
		}
	}()

	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, j.timeout)
	defer cancel()

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(j.name)

	runErr := j.run(ctx)
	schedMetrics.ObserveJobDuration(j.name, time.Since(start))
	if runErr == nil {
		return nil
	}

	// deadline is a soft timeout: the next run resumes from committed state
	isTimeout := errors.Is(runErr, context.DeadlineExceeded) || errors.Is(runErr, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(j.name)
	}
	schedMetrics.IncJobError(j.name, runErr)
	if isTimeout {
		s.log.Warn("job timed out",
			zap.String("job", j.name),
			zap.Duration("timeout", j.timeout),
			zap.Error(runErr),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", j.name, runErr)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// empty EnabledJobs enables everything (monolith mode)
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
