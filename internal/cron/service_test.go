package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tipjar-backend/pkg/logger"
	"github.com/angelmondragon/tipjar-backend/pkg/metrics"
)

type fakeLock struct {
	acquired   bool
	acquireErr error
	releases   int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquireErr != nil {
		return false, f.acquireErr
	}
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.acquired = false
	f.releases++
	return nil
}

type testJob struct {
	name     string
	err      error
	runs     int
	deadline bool
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	_, t.deadline = ctx.Deadline()
	return t.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	registry, err := NewRegistry(failure, success)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)

	err = service.runCycle(context.Background())
	require.ErrorContains(t, err, "fail: boom")
	require.Equal(t, 1, success.runs)
	require.Equal(t, 1, failure.runs)
	require.True(t, success.deadline, "jobs run under a timeout")
	require.Equal(t, 1, lock.releases)
	require.False(t, lock.acquired)

	count, err := testutil.GatherAndCount(reg, "tipjar_cron_job_runs_total")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestServiceSkipsCycleWhenLockHeld(t *testing.T) {
	job := &testJob{name: "pending-donation-expiry"}
	registry, err := NewRegistry(job)
	require.NoError(t, err)
	lock := &fakeLock{acquired: true}
	service, err := NewService(ServiceParams{Logger: testLogger(), Registry: registry, Lock: lock})
	require.NoError(t, err)

	require.NoError(t, service.runCycle(context.Background()))
	require.Zero(t, job.runs)
	require.Zero(t, lock.releases)
}

func TestServiceLockErrorAbortsCycle(t *testing.T) {
	job := &testJob{name: "outbox-retention"}
	registry, err := NewRegistry(job)
	require.NoError(t, err)
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: registry,
		Lock:     &fakeLock{acquireErr: errors.New("redis down")},
	})
	require.NoError(t, err)

	require.ErrorContains(t, service.runCycle(context.Background()), "lock acquire")
	require.Zero(t, job.runs)
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "webhook-inbox-retention"}
	registry, err := NewRegistry(job)
	require.NoError(t, err)
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: registry,
		Lock:     &fakeLock{},
		Interval: time.Hour,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, service.Run(ctx), context.Canceled)
}

func TestNewServiceDefaults(t *testing.T) {
	service, err := NewService(ServiceParams{Logger: testLogger(), Lock: &fakeLock{}})
	require.NoError(t, err)
	require.Equal(t, defaultInterval, service.interval)
	require.Equal(t, defaultJobTimeout, service.jobTimeout)
	require.Empty(t, service.registry.Jobs())

	_, err = NewService(ServiceParams{Lock: &fakeLock{}})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Logger: testLogger()})
	require.Error(t, err)
}
