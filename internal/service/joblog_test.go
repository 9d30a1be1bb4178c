package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/fundingcalc/jobs-engine/internal/data"
	apperrors "github.com/fundingcalc/jobs-engine/internal/errors"
	"github.com/fundingcalc/jobs-engine/internal/domain/model"
)

func boolPtr(v bool) *bool    { return &v }
func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

// steppingClock advances one second per reading, so any code path that reads
// the clock twice for what should be a single instant becomes visible.
type steppingClock struct {
	mu   sync.Mutex
	next time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.next
	c.next = c.next.Add(time.Second)
	return now
}

// recordingSink captures emitted counters.
type recordingSink struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (s *recordingSink) Count(name string, value int64, _ map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts == nil {
		s.counts = make(map[string]int64)
	}
	s.counts[name] += value
}

func (s *recordingSink) Gauge(string, float64, map[string]string) {}

func (s *recordingSink) Timing(string, time.Duration, map[string]string) {}

func (s *recordingSink) count(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[name]
}

func queuedJob(id string) *model.Job {
	return &model.Job{
		ID:              id,
		JobDefinitionID: "funding-calculation",
		OwnerID:         "acct-1",
		RunningStatus:   model.RunningStatusQueued,
		CreatedAt:       fixedNow.Add(-time.Minute),
	}
}

func TestAddJobLogTerminalSuccess(t *testing.T) {
	f := newEngineFixture(t)
	job := queuedJob("job-1")

	f.repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(job, nil)
	f.repo.EXPECT().Update(gomock.Any(), job).
		DoAndReturn(func(_ context.Context, j *model.Job) error {
			assert.Equal(t, model.RunningStatusCompleted, j.RunningStatus)
			require.NotNil(t, j.CompletionStatus)
			assert.Equal(t, model.CompletionStatusSucceeded, *j.CompletionStatus)
			require.NotNil(t, j.Outcome)
			assert.Equal(t, "all accounts processed", *j.Outcome)
			return nil
		})
	f.repo.EXPECT().CreateLog(gomock.Any(), gomock.Any()).Return(nil)
	f.sink.EXPECT().Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, n model.JobNotification) error {
			assert.Equal(t, model.RunningStatusCompleted, n.RunningStatus)
			require.NotNil(t, n.ItemsProcessed)
			assert.Equal(t, 10, *n.ItemsProcessed)
			return nil
		})

	log, err := f.orch.AddJobLog(context.Background(), "job-1", model.JobLogUpdate{
		ItemsProcessed:        intPtr(10),
		ItemsSucceeded:        intPtr(9),
		ItemsFailed:           intPtr(1),
		Outcome:               strPtr("all accounts processed"),
		CompletedSuccessfully: boolPtr(true),
	})

	require.NoError(t, err)
	assert.Equal(t, "job-1", log.JobID)
	assert.Equal(t, fixedNow, log.Timestamp)
}

func TestAddJobLogTerminalFailure(t *testing.T) {
	f := newEngineFixture(t)
	job := queuedJob("job-1")

	f.repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(job, nil)
	f.repo.EXPECT().Update(gomock.Any(), job).Return(nil)
	f.repo.EXPECT().CreateLog(gomock.Any(), gomock.Any()).Return(nil)
	f.sink.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	_, err := f.orch.AddJobLog(context.Background(), "job-1", model.JobLogUpdate{
		CompletedSuccessfully: boolPtr(false),
	})

	require.NoError(t, err)
	require.NotNil(t, job.CompletionStatus)
	assert.Equal(t, model.CompletionStatusFailed, *job.CompletionStatus)
}

func TestAddJobLogProgressMovesQueuedToInProgress(t *testing.T) {
	f := newEngineFixture(t)
	job := queuedJob("job-1")

	f.repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(job, nil)
	f.repo.EXPECT().Update(gomock.Any(), job).Return(nil)
	f.repo.EXPECT().CreateLog(gomock.Any(), gomock.Any()).Return(nil)
	f.sink.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	_, err := f.orch.AddJobLog(context.Background(), "job-1", model.JobLogUpdate{
		ItemsProcessed: intPtr(3),
	})

	require.NoError(t, err)
	assert.Equal(t, model.RunningStatusInProgress, job.RunningStatus)
	assert.Nil(t, job.CompletionStatus)
}

func TestAddJobLogProgressOnInProgressJobSkipsUpdate(t *testing.T) {
	f := newEngineFixture(t)
	job := queuedJob("job-1")
	job.RunningStatus = model.RunningStatusInProgress

	f.repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(job, nil)
	// No Update expectation: nothing about the job changed.
	f.repo.EXPECT().CreateLog(gomock.Any(), gomock.Any()).Return(nil)
	f.sink.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	_, err := f.orch.AddJobLog(context.Background(), "job-1", model.JobLogUpdate{
		ItemsProcessed: intPtr(5),
	})
	require.NoError(t, err)
}

func TestAddJobLogDoesNotReopenCompletedJob(t *testing.T) {
	f := newEngineFixture(t)
	job := queuedJob("job-1")
	job.Complete(model.CompletionStatusSucceeded, "done", fixedNow)

	f.repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(job, nil)
	// The log is still appended and published, but the job is not updated.
	f.repo.EXPECT().CreateLog(gomock.Any(), gomock.Any()).Return(nil)
	f.sink.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	_, err := f.orch.AddJobLog(context.Background(), "job-1", model.JobLogUpdate{
		CompletedSuccessfully: boolPtr(false),
	})

	require.NoError(t, err)
	assert.Equal(t, model.CompletionStatusSucceeded, *job.CompletionStatus)
}

func TestAddJobLogUnknownJob(t *testing.T) {
	f := newEngineFixture(t)

	f.repo.EXPECT().GetByID(gomock.Any(), "missing").Return(nil, data.ErrJobNotFound)

	_, err := f.orch.AddJobLog(context.Background(), "missing", model.JobLogUpdate{})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestAddJobLogUpdateFailureSkipsLogWrite(t *testing.T) {
	f := newEngineFixture(t)
	job := queuedJob("job-1")

	f.repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(job, nil)
	f.repo.EXPECT().Update(gomock.Any(), job).Return(errors.New("deadlock detected"))
	// No CreateLog and no Publish: the worker will redeliver.

	_, err := f.orch.AddJobLog(context.Background(), "job-1", model.JobLogUpdate{
		CompletedSuccessfully: boolPtr(true),
	})
	assert.True(t, apperrors.IsInternal(err))
}

func TestAddJobLogTerminalSharesOneClockReading(t *testing.T) {
	clock := &steppingClock{next: fixedNow}
	f := newEngineFixture(t, func(opts *OrchestratorOptions) { opts.TimeProvider = clock })
	job := queuedJob("job-1")

	f.repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(job, nil)
	f.repo.EXPECT().Update(gomock.Any(), job).Return(nil)
	f.repo.EXPECT().CreateLog(gomock.Any(), gomock.Any()).Return(nil)
	f.sink.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	log, err := f.orch.AddJobLog(context.Background(), "job-1", model.JobLogUpdate{
		CompletedSuccessfully: boolPtr(true),
	})

	require.NoError(t, err)
	require.NotNil(t, job.CompletedAt)
	assert.Equal(t, log.Timestamp, *job.CompletedAt,
		"the terminal log and the job completion carry the same instant")
}

func TestAddJobLogCompletionMetricFollowsPersist(t *testing.T) {
	t.Run("emitted once after a successful update", func(t *testing.T) {
		sink := &recordingSink{}
		f := newEngineFixture(t, func(opts *OrchestratorOptions) { opts.Metrics = sink })
		job := queuedJob("job-1")

		f.repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(job, nil)
		f.repo.EXPECT().Update(gomock.Any(), job).Return(nil)
		f.repo.EXPECT().CreateLog(gomock.Any(), gomock.Any()).Return(nil)
		f.sink.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

		_, err := f.orch.AddJobLog(context.Background(), "job-1", model.JobLogUpdate{
			CompletedSuccessfully: boolPtr(true),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), sink.count("jobs.completed"))
	})

	t.Run("not emitted when the update fails", func(t *testing.T) {
		sink := &recordingSink{}
		f := newEngineFixture(t, func(opts *OrchestratorOptions) { opts.Metrics = sink })
		job := queuedJob("job-1")

		f.repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(job, nil)
		f.repo.EXPECT().Update(gomock.Any(), job).Return(errors.New("connection reset"))

		_, err := f.orch.AddJobLog(context.Background(), "job-1", model.JobLogUpdate{
			CompletedSuccessfully: boolPtr(true),
		})
		assert.True(t, apperrors.IsInternal(err))
		assert.Zero(t, sink.count("jobs.completed"))
	})
}
