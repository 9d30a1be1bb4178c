package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/fundingcalc/jobs-engine/internal/data"
	"github.com/fundingcalc/jobs-engine/internal/domain/model"
)

func notificationEnvelope(t *testing.T, n model.JobNotification) *model.MessageEnvelope {
	t.Helper()
	body, err := json.Marshal(n)
	require.NoError(t, err)

	envelope := &model.MessageEnvelope{Body: body}
	envelope.SeedProperty(model.PropertyJobID, n.JobID)
	return envelope
}

func completedChildNotification(jobID, parentID string) model.JobNotification {
	return model.JobNotification{
		JobID:         jobID,
		ParentJobID:   &parentID,
		RunningStatus: model.RunningStatusCompleted,
	}
}

func completedChildJob(id, parentID string, status model.CompletionStatus) *model.Job {
	s := status
	return &model.Job{
		ID:               id,
		JobDefinitionID:  "funding-calculation",
		OwnerID:          "acct-1",
		ParentJobID:      &parentID,
		RunningStatus:    model.RunningStatusCompleted,
		CompletionStatus: &s,
	}
}

func rollupParent(id string) *model.Job {
	return &model.Job{
		ID:              id,
		JobDefinitionID: "funding-rollup",
		OwnerID:         "acct-1",
		CorrelationID:   "corr-1",
		RunningStatus:   model.RunningStatusQueued,
		CreatedAt:       fixedNow.Add(-time.Hour),
	}
}

func rollupDefinition(preCompletionIDs ...string) *model.JobDefinition {
	return &model.JobDefinition{
		ID:                            "funding-rollup",
		Timeout:                       2 * time.Hour,
		PreCompletionJobDefinitionIDs: preCompletionIDs,
	}
}

func TestProcessJobNotificationDropsMessageWithoutJobID(t *testing.T) {
	f := newEngineFixture(t)

	err := f.orch.ProcessJobNotification(context.Background(), &model.MessageEnvelope{
		Body: []byte(`{}`),
	})
	assert.NoError(t, err)
}

func TestProcessJobNotificationIgnoresNonCompleted(t *testing.T) {
	f := newEngineFixture(t)

	parentID := "parent-1"
	err := f.orch.ProcessJobNotification(context.Background(), notificationEnvelope(t, model.JobNotification{
		JobID:         "child-1",
		ParentJobID:   &parentID,
		RunningStatus: model.RunningStatusInProgress,
	}))
	assert.NoError(t, err)
}

func TestProcessJobNotificationIgnoresOrphans(t *testing.T) {
	f := newEngineFixture(t)

	err := f.orch.ProcessJobNotification(context.Background(), notificationEnvelope(t, model.JobNotification{
		JobID:         "job-1",
		RunningStatus: model.RunningStatusCompleted,
	}))
	assert.NoError(t, err)
}

func TestProcessJobNotificationWaitsForRemainingChildren(t *testing.T) {
	f := newEngineFixture(t)

	running := &model.Job{
		ID:            "child-2",
		RunningStatus: model.RunningStatusInProgress,
	}
	f.repo.EXPECT().GetChildren(gomock.Any(), "parent-1").Return([]*model.Job{
		completedChildJob("child-1", "parent-1", model.CompletionStatusSucceeded),
		running,
	}, nil)
	// No parent load and no update: the parent stays running.

	err := f.orch.ProcessJobNotification(context.Background(),
		notificationEnvelope(t, completedChildNotification("child-1", "parent-1")))
	assert.NoError(t, err)
}

func TestProcessJobNotificationCompletesParent(t *testing.T) {
	tests := []struct {
		name       string
		children   []*model.Job
		wantStatus model.CompletionStatus
	}{
		{
			name: "all succeeded",
			children: []*model.Job{
				completedChildJob("c1", "parent-1", model.CompletionStatusSucceeded),
				completedChildJob("c2", "parent-1", model.CompletionStatusSucceeded),
			},
			wantStatus: model.CompletionStatusSucceeded,
		},
		{
			name: "one failure wins over success",
			children: []*model.Job{
				completedChildJob("c1", "parent-1", model.CompletionStatusSucceeded),
				completedChildJob("c2", "parent-1", model.CompletionStatusFailed),
			},
			wantStatus: model.CompletionStatusFailed,
		},
		{
			name: "timeout wins over everything",
			children: []*model.Job{
				completedChildJob("c1", "parent-1", model.CompletionStatusFailed),
				completedChildJob("c2", "parent-1", model.CompletionStatusTimedOut),
				completedChildJob("c3", "parent-1", model.CompletionStatusCancelled),
			},
			wantStatus: model.CompletionStatusTimedOut,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t)
			f.stubDefinitions(rollupDefinition())

			parent := rollupParent("parent-1")
			f.repo.EXPECT().GetChildren(gomock.Any(), "parent-1").Return(tt.children, nil).Times(2)
			f.repo.EXPECT().GetByID(gomock.Any(), "parent-1").Return(parent, nil)
			f.repo.EXPECT().Update(gomock.Any(), parent).
				DoAndReturn(func(_ context.Context, job *model.Job) error {
					require.NotNil(t, job.CompletionStatus)
					assert.Equal(t, tt.wantStatus, *job.CompletionStatus)
					return nil
				})
			f.sink.EXPECT().Publish(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, n model.JobNotification) error {
					assert.Equal(t, "parent-1", n.JobID)
					assert.Equal(t, model.RunningStatusCompleted, n.RunningStatus)
					return nil
				})

			err := f.orch.ProcessJobNotification(context.Background(),
				notificationEnvelope(t, completedChildNotification("c1", "parent-1")))
			require.NoError(t, err)
		})
	}
}

func TestProcessJobNotificationParentAlreadyCompleted(t *testing.T) {
	f := newEngineFixture(t)

	parent := rollupParent("parent-1")
	parent.Complete(model.CompletionStatusSucceeded, "done", fixedNow)

	f.repo.EXPECT().GetChildren(gomock.Any(), "parent-1").Return([]*model.Job{
		completedChildJob("c1", "parent-1", model.CompletionStatusSucceeded),
	}, nil)
	f.repo.EXPECT().GetByID(gomock.Any(), "parent-1").Return(parent, nil)
	// No update and no publish: a concurrent child already finished the parent.

	err := f.orch.ProcessJobNotification(context.Background(),
		notificationEnvelope(t, completedChildNotification("c1", "parent-1")))
	assert.NoError(t, err)
}

func TestProcessJobNotificationParentVanished(t *testing.T) {
	f := newEngineFixture(t)

	f.repo.EXPECT().GetChildren(gomock.Any(), "parent-1").Return([]*model.Job{
		completedChildJob("c1", "parent-1", model.CompletionStatusSucceeded),
	}, nil)
	f.repo.EXPECT().GetByID(gomock.Any(), "parent-1").Return(nil, data.ErrJobNotFound)

	err := f.orch.ProcessJobNotification(context.Background(),
		notificationEnvelope(t, completedChildNotification("c1", "parent-1")))
	assert.NoError(t, err, "a vanished parent is logged, not retried")
}

func TestProcessJobNotificationInjectsPreCompletionJobs(t *testing.T) {
	f := newEngineFixture(t)
	f.stubDefinitions(
		rollupDefinition("funding-report"),
		&model.JobDefinition{ID: "funding-report", Timeout: time.Hour, TopicName: "report-requests"},
	)

	parent := rollupParent("parent-1")
	parent.MessageBody = []byte(`{"accountId":"acct-1"}`)

	f.repo.EXPECT().GetChildren(gomock.Any(), "parent-1").Return([]*model.Job{
		completedChildJob("c1", "parent-1", model.CompletionStatusSucceeded),
	}, nil)
	f.repo.EXPECT().GetByID(gomock.Any(), "parent-1").Return(parent, nil)

	f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, job *model.Job) error {
			assert.Equal(t, "funding-report", job.JobDefinitionID)
			require.NotNil(t, job.ParentJobID)
			assert.Equal(t, "parent-1", *job.ParentJobID)
			assert.Equal(t, "acct-1", job.OwnerID)
			assert.Equal(t, "corr-1", job.CorrelationID)
			assert.Equal(t, parent.MessageBody, job.MessageBody)
			return nil
		})
	f.broker.EXPECT().SendToTopic(gomock.Any(), "report-requests", gomock.Any()).Return(nil)
	f.sink.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)
	f.repo.EXPECT().Update(gomock.Any(), parent).
		DoAndReturn(func(_ context.Context, job *model.Job) error {
			assert.Equal(t, model.RunningStatusCompleting, job.RunningStatus)
			assert.Nil(t, job.CompletionStatus, "injection must not complete the parent")
			return nil
		})

	err := f.orch.ProcessJobNotification(context.Background(),
		notificationEnvelope(t, completedChildNotification("c1", "parent-1")))
	require.NoError(t, err)
}

func TestProcessJobNotificationCompletingParentAggregatesOnce(t *testing.T) {
	f := newEngineFixture(t)
	f.stubDefinitions(
		rollupDefinition("funding-report"),
		&model.JobDefinition{ID: "funding-report", Timeout: time.Hour, TopicName: "report-requests"},
	)

	parent := rollupParent("parent-1")
	parent.RunningStatus = model.RunningStatusCompleting

	children := []*model.Job{
		completedChildJob("c1", "parent-1", model.CompletionStatusSucceeded),
		completedChildJob("report-1", "parent-1", model.CompletionStatusSucceeded),
	}
	f.repo.EXPECT().GetChildren(gomock.Any(), "parent-1").Return(children, nil).Times(2)
	f.repo.EXPECT().GetByID(gomock.Any(), "parent-1").Return(parent, nil)
	// The chain was already injected: this pass completes the parent instead of
	// injecting a second one.
	f.repo.EXPECT().Update(gomock.Any(), parent).
		DoAndReturn(func(_ context.Context, job *model.Job) error {
			require.NotNil(t, job.CompletionStatus)
			assert.Equal(t, model.CompletionStatusSucceeded, *job.CompletionStatus)
			return nil
		})
	f.sink.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	err := f.orch.ProcessJobNotification(context.Background(),
		notificationEnvelope(t, completedChildNotification("report-1", "parent-1")))
	require.NoError(t, err)
}
