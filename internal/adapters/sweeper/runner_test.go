package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	calls atomic.Int64
	err   error
}

func (f *fakeSweeper) CheckAndProcessTimedOutJobs(context.Context) (int, error) {
	f.calls.Add(1)
	return 0, f.err
}

func TestNewRunner(t *testing.T) {
	t.Run("requires a sweeper", func(t *testing.T) {
		_, err := NewRunner(RunnerOptions{})
		assert.Error(t, err)
	})

	t.Run("defaults the interval", func(t *testing.T) {
		runner, err := NewRunner(RunnerOptions{Sweeper: &fakeSweeper{}})
		require.NoError(t, err)
		assert.Equal(t, defaultInterval, runner.interval)
	})
}

func TestRunnerSweepsUntilCancelled(t *testing.T) {
	sweeper := &fakeSweeper{}
	runner, err := NewRunner(RunnerOptions{Sweeper: sweeper, Interval: 10 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return sweeper.calls.Load() >= 2
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case runErr := <-done:
		assert.NoError(t, runErr, "cancellation is a graceful shutdown")
	case <-time.After(time.Second):
		t.Fatal("runner did not stop after cancellation")
	}
}

func TestRunnerKeepsRunningAfterSweepFailure(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("store unavailable")}
	runner, err := NewRunner(RunnerOptions{Sweeper: sweeper, Interval: 10 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return sweeper.calls.Load() >= 2
	}, time.Second, time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
