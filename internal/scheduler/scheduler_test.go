package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coachkit/settled/internal/clock"
	obsmetrics "github.com/coachkit/settled/internal/observability/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// Mocks for dependencies

type fakeSettlement struct {
	calls int
	err   error
}

func (f *fakeSettlement) RunDueTasks(ctx context.Context) error {
	f.calls++
	return f.err
}

type fakeReconcile struct {
	calls int
	err   error
}

func (f *fakeReconcile) Run(ctx context.Context) error {
	f.calls++
	return f.err
}

type fakeIngest struct {
	charges, fees, merchCharges, merchCustomers, merchSubs int
}

func (f *fakeIngest) IngestCharges(ctx context.Context) error          { f.charges++; return nil }
func (f *fakeIngest) IngestApplicationFees(ctx context.Context) error  { f.fees++; return nil }
func (f *fakeIngest) IngestMerchantCharges(ctx context.Context) error  { f.merchCharges++; return nil }
func (f *fakeIngest) IngestMerchantCustomers(ctx context.Context) error {
	f.merchCustomers++
	return nil
}
func (f *fakeIngest) IngestMerchantSubscriptions(ctx context.Context) error {
	f.merchSubs++
	return nil
}

type fixture struct {
	sched      *Scheduler
	clk        *clock.FakeClock
	settlement *fakeSettlement
	reconcile  *fakeReconcile
	ingest     *fakeIngest
}

func setup(t *testing.T, cfg Config) *fixture {
	t.Helper()
	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{ServiceName: "test", Environment: "test"})

	clk := clock.NewFakeClock(time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))
	settlement := &fakeSettlement{}
	rec := &fakeReconcile{}
	ing := &fakeIngest{}

	sched, err := New(zaptest.NewLogger(t), cfg, clk, settlement, rec, ing, nil)
	require.NoError(t, err)
	return &fixture{sched: sched, clk: clk, settlement: settlement, reconcile: rec, ingest: ing}
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(nil, Config{}, nil, nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunOnceRunsEverythingOnFirstPass(t *testing.T) {
	f := setup(t, Config{})

	require.NoError(t, f.sched.RunOnce(context.Background()))

	assert.Equal(t, 1, f.settlement.calls)
	assert.Equal(t, 1, f.reconcile.calls)
	assert.Equal(t, 1, f.ingest.charges)
	assert.Equal(t, 1, f.ingest.fees)
	assert.Equal(t, 1, f.ingest.merchCharges)
	assert.Equal(t, 1, f.ingest.merchCustomers)
	assert.Equal(t, 1, f.ingest.merchSubs)
}

func TestSlowJobsWaitForTheirInterval(t *testing.T) {
	f := setup(t, Config{DisburseInterval: time.Minute, ReconcileInterval: 24 * time.Hour, IngestInterval: 24 * time.Hour})

	require.NoError(t, f.sched.RunOnce(context.Background()))
	f.clk.Advance(time.Minute)
	require.NoError(t, f.sched.RunOnce(context.Background()))

	// disburse runs every minute, the nightly jobs only once
	assert.Equal(t, 2, f.settlement.calls)
	assert.Equal(t, 1, f.reconcile.calls)
	assert.Equal(t, 1, f.ingest.charges)

	f.clk.Advance(24 * time.Hour)
	require.NoError(t, f.sched.RunOnce(context.Background()))
	assert.Equal(t, 3, f.settlement.calls)
	assert.Equal(t, 2, f.reconcile.calls)
	assert.Equal(t, 2, f.ingest.charges)
}

func TestEnabledJobsGateWhatRuns(t *testing.T) {
	f := setup(t, Config{EnabledJobs: []string{"disburse_due"}})

	require.NoError(t, f.sched.RunOnce(context.Background()))

	assert.Equal(t, 1, f.settlement.calls)
	assert.Zero(t, f.reconcile.calls)
	assert.Zero(t, f.ingest.charges)
}

func TestOneFailingJobDoesNotStopTheOthers(t *testing.T) {
	f := setup(t, Config{})
	f.settlement.err = errors.New("boom")

	err := f.sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disburse_due")

	// everything else still ran
	assert.Equal(t, 1, f.reconcile.calls)
	assert.Equal(t, 1, f.ingest.merchSubs)
}

func TestDeadlineExceededIsASoftTimeout(t *testing.T) {
	f := setup(t, Config{})
	f.settlement.err = context.DeadlineExceeded

	assert.NoError(t, f.sched.RunOnce(context.Background()))
}

type flakyLocker struct {
	deny     bool
	releases int
}

func (l *flakyLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l.deny {
		return "", false, nil
	}
	return "token", true, nil
}

func (l *flakyLocker) Release(ctx context.Context, key, token string) error {
	l.releases++
	return nil
}

func TestLostLockRaceRetriesOnTheNextTick(t *testing.T) {
	f := setup(t, Config{})
	lk := &flakyLocker{deny: true}
	f.sched.locker = lk

	// another replica holds every lock: nothing runs, nothing is consumed
	require.NoError(t, f.sched.RunOnce(context.Background()))
	assert.Zero(t, f.settlement.calls)
	assert.Zero(t, f.reconcile.calls)

	// locks free up before the interval elapses; the jobs run immediately
	lk.deny = false
	require.NoError(t, f.sched.RunOnce(context.Background()))
	assert.Equal(t, 1, f.settlement.calls)
	assert.Equal(t, 1, f.reconcile.calls)
	assert.Equal(t, 7, lk.releases)
}

func TestJobRunsAndTimeoutsAreCounted(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()

	f := setup(t, Config{EnabledJobs: []string{"disburse_due"}})
	f.settlement.err = context.DeadlineExceeded

	require.NoError(t, f.sched.RunOnce(context.Background()))

	labels := map[string]string{"job": "disburse_due", "service": "test", "env": "test"}
	assert.Equal(t, 1.0, getCounterValue(t, registry, "settled_scheduler_job_runs_total", labels))
	assert.Equal(t, 1.0, getCounterValue(t, registry, "settled_scheduler_job_timeouts_total", labels))
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
