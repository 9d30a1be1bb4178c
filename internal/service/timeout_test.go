package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	apperrors "github.com/fundingcalc/jobs-engine/internal/errors"
	"github.com/fundingcalc/jobs-engine/internal/domain/model"
)

func agedJob(id string, age time.Duration) *model.Job {
	return &model.Job{
		ID:              id,
		JobDefinitionID: "funding-calculation",
		OwnerID:         "acct-1",
		RunningStatus:   model.RunningStatusInProgress,
		CreatedAt:       fixedNow.Add(-age),
	}
}

func TestSweepCompletesExpiredJobs(t *testing.T) {
	f := newEngineFixture(t)
	f.stubDefinitions(queueDefinition("funding-calculation")) // one hour timeout

	expired := agedJob("expired", 2*time.Hour)
	fresh := agedJob("fresh", time.Minute)

	f.repo.EXPECT().GetNonCompleted(gomock.Any()).Return([]*model.Job{expired, fresh}, nil)
	f.repo.EXPECT().Update(gomock.Any(), expired).
		DoAndReturn(func(_ context.Context, job *model.Job) error {
			require.NotNil(t, job.CompletionStatus)
			assert.Equal(t, model.CompletionStatusTimedOut, *job.CompletionStatus)
			require.NotNil(t, job.Outcome)
			assert.Equal(t, "job exceeded its definition timeout", *job.Outcome)
			return nil
		})
	f.sink.EXPECT().Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, n model.JobNotification) error {
			assert.Equal(t, "expired", n.JobID)
			return nil
		})

	timedOut, err := f.orch.CheckAndProcessTimedOutJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, timedOut)
	assert.Equal(t, model.RunningStatusInProgress, fresh.RunningStatus)
}

func TestSweepSkipsUnknownDefinitions(t *testing.T) {
	f := newEngineFixture(t)
	f.stubDefinitions(queueDefinition("funding-calculation"))

	stray := agedJob("stray", 2*time.Hour)
	stray.JobDefinitionID = "retired-definition"

	f.repo.EXPECT().GetNonCompleted(gomock.Any()).Return([]*model.Job{stray}, nil)

	timedOut, err := f.orch.CheckAndProcessTimedOutJobs(context.Background())
	require.NoError(t, err)
	assert.Zero(t, timedOut)
}

func TestSweepListFailure(t *testing.T) {
	f := newEngineFixture(t)

	f.repo.EXPECT().GetNonCompleted(gomock.Any()).Return(nil, errors.New("connection refused"))

	_, err := f.orch.CheckAndProcessTimedOutJobs(context.Background())
	assert.True(t, apperrors.IsInternal(err))
}

func TestSweepContinuesPastPerJobFailures(t *testing.T) {
	f := newEngineFixture(t)
	f.stubDefinitions(queueDefinition("funding-calculation"))

	first := agedJob("first", 2*time.Hour)
	second := agedJob("second", 3*time.Hour)

	f.repo.EXPECT().GetNonCompleted(gomock.Any()).Return([]*model.Job{first, second}, nil)
	f.repo.EXPECT().Update(gomock.Any(), first).Return(errors.New("deadlock detected"))
	f.repo.EXPECT().Update(gomock.Any(), second).Return(nil)
	f.sink.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	timedOut, err := f.orch.CheckAndProcessTimedOutJobs(context.Background())
	require.Error(t, err, "the first failure is reported after the sweep finishes")
	assert.Equal(t, 1, timedOut)
}
