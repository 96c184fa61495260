package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tipjar-backend/pkg/logger"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeProcessor struct {
	interval time.Duration
	err      error
	calls    int
}

func (f *fakeProcessor) Run(ctx context.Context, interval time.Duration) error {
	f.calls++
	f.interval = interval
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard})
}

func TestServiceRunsProcessorWithConfiguredInterval(t *testing.T) {
	proc := &fakeProcessor{}
	svc, err := NewService(ServiceParams{
		Logger:       testLogger(),
		DB:           fakePinger{},
		Processor:    proc,
		PollInterval: 3 * time.Second,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = svc.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, proc.calls)
	require.Equal(t, 3*time.Second, proc.interval)
}

func TestServiceStopsWhenDatabaseUnavailable(t *testing.T) {
	proc := &fakeProcessor{}
	svc, err := NewService(ServiceParams{
		Logger:    testLogger(),
		DB:        fakePinger{err: errors.New("connection refused")},
		Processor: proc,
	})
	require.NoError(t, err)

	err = svc.Run(context.Background())
	require.ErrorContains(t, err, "database ping failed")
	require.Zero(t, proc.calls)
}

func TestServiceSurfacesProcessorFailure(t *testing.T) {
	boom := errors.New("claim failed")
	svc, err := NewService(ServiceParams{
		Logger:    testLogger(),
		DB:        fakePinger{},
		Processor: &fakeProcessor{err: boom},
	})
	require.NoError(t, err)
	require.ErrorIs(t, svc.Run(context.Background()), boom)
}

func TestNewServiceDefaultsAndRequirements(t *testing.T) {
	svc, err := NewService(ServiceParams{Logger: testLogger(), DB: fakePinger{}, Processor: &fakeProcessor{}})
	require.NoError(t, err)
	require.Equal(t, defaultPollInterval, svc.pollInterval)

	_, err = NewService(ServiceParams{Logger: testLogger(), DB: fakePinger{}})
	require.Error(t, err)
	_, err = NewService(ServiceParams{DB: fakePinger{}, Processor: &fakeProcessor{}})
	require.Error(t, err)
}
