package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/fundingcalc/jobs-engine/internal/core"
	"github.com/fundingcalc/jobs-engine/internal/data"
	apperrors "github.com/fundingcalc/jobs-engine/internal/errors"
	"github.com/fundingcalc/jobs-engine/internal/domain/model"
	"github.com/fundingcalc/jobs-engine/internal/mocks"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// engineFixture wires an Orchestrator against gomock ports.
type engineFixture struct {
	repo   *mocks.MockJobRepository
	defs   *mocks.MockJobDefinitionRepository
	broker *mocks.MockBrokerClient
	sink   *mocks.MockNotificationSink
	orch   *Orchestrator
}

func newEngineFixture(t *testing.T, mutate ...func(*OrchestratorOptions)) *engineFixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	f := &engineFixture{
		repo:   mocks.NewMockJobRepository(ctrl),
		defs:   mocks.NewMockJobDefinitionRepository(ctrl),
		broker: mocks.NewMockBrokerClient(ctrl),
		sink:   mocks.NewMockNotificationSink(ctrl),
	}

	catalog, err := core.NewDefinitionCatalog(core.DefinitionCatalogOptions{Repo: f.defs})
	require.NoError(t, err)

	dispatcher, err := NewDispatcher(DispatcherOptions{Broker: f.broker})
	require.NoError(t, err)

	publisher, err := NewNotificationPublisher(NotificationPublisherOptions{Sink: f.sink})
	require.NoError(t, err)

	opts := OrchestratorOptions{
		Repo:         f.repo,
		Catalog:      catalog,
		Dispatcher:   dispatcher,
		Publisher:    publisher,
		TimeProvider: data.NewFixedTimeProvider(fixedNow),
	}
	for _, m := range mutate {
		m(&opts)
	}

	f.orch, err = NewOrchestrator(opts)
	require.NoError(t, err)
	return f
}

func (f *engineFixture) stubDefinitions(definitions ...*model.JobDefinition) {
	f.defs.EXPECT().GetAll(gomock.Any()).Return(definitions, nil).AnyTimes()
}

func queueDefinition(id string) *model.JobDefinition {
	return &model.JobDefinition{ID: id, Timeout: time.Hour, QueueName: id + "-work"}
}

func TestCreateJobsHappyPath(t *testing.T) {
	f := newEngineFixture(t)
	f.stubDefinitions(queueDefinition("funding-calculation"))

	var created *model.Job
	f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, job *model.Job) error {
			created = job
			return nil
		})
	f.broker.EXPECT().SendToQueue(gomock.Any(), "funding-calculation-work", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, envelope *model.MessageEnvelope) error {
			assert.Equal(t, created.ID, envelope.Properties[model.PropertyJobID])
			assert.Equal(t, created.CorrelationID, envelope.Properties[model.PropertyCorrelationID])
			return nil
		})
	f.sink.EXPECT().Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, n model.JobNotification) error {
			assert.Equal(t, model.RunningStatusQueued, n.RunningStatus)
			return nil
		})

	jobs, err := f.orch.CreateJobs(context.Background(), []model.CreateJobRequest{
		{JobDefinitionID: "funding-calculation", OwnerID: "acct-1"},
	}, model.UserRef{ID: "u-1", Name: "Sam"})

	require.NoError(t, err)
	require.Len(t, jobs, 1)
	job := jobs[0]
	assert.NotEmpty(t, job.ID)
	assert.NotEmpty(t, job.CorrelationID, "blank correlation ids are filled in")
	assert.Equal(t, "u-1", job.InvokerUserID)
	assert.Equal(t, "Sam", job.InvokerUserDisplayName)
	assert.Equal(t, model.RunningStatusQueued, job.RunningStatus)
	assert.Equal(t, fixedNow, job.CreatedAt)
}

func TestCreateJobsEmptyBatch(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.orch.CreateJobs(context.Background(), nil, model.UserRef{})
	assert.True(t, apperrors.IsValidation(err))
}

func TestCreateJobsUnknownDefinitionFailsWholeBatch(t *testing.T) {
	f := newEngineFixture(t)
	f.stubDefinitions(queueDefinition("funding-calculation"))

	_, err := f.orch.CreateJobs(context.Background(), []model.CreateJobRequest{
		{JobDefinitionID: "funding-calculation", OwnerID: "acct-1"},
		{JobDefinitionID: "no-such-type", OwnerID: "acct-1"},
	}, model.UserRef{})

	require.Error(t, err)
	assert.True(t, apperrors.IsPrecondition(err))
	assert.Contains(t, err.Error(), "no-such-type")
}

func TestCreateJobsAggregatesItemFailures(t *testing.T) {
	f := newEngineFixture(t)
	sessionDef := queueDefinition("funding-ingest")
	sessionDef.SessionPropertyName = "account-id"
	f.stubDefinitions(queueDefinition("funding-calculation"), sessionDef)

	_, err := f.orch.CreateJobs(context.Background(), []model.CreateJobRequest{
		{JobDefinitionID: "funding-calculation"}, // missing owner
		{JobDefinitionID: "funding-ingest", OwnerID: "acct-1"}, // missing session property
		{JobDefinitionID: "funding-calculation", OwnerID: "acct-1"}, // valid
	}, model.UserRef{})

	var batchErr *BatchValidationError
	require.ErrorAs(t, err, &batchErr)
	require.Len(t, batchErr.Failures, 2)
	assert.Equal(t, 0, batchErr.Failures[0].RequestIndex)
	assert.Equal(t, 1, batchErr.Failures[1].RequestIndex)
	assert.Contains(t, batchErr.Failures[1].Message, "account-id")
}

func TestCreateJobsBodyPathValidation(t *testing.T) {
	f := newEngineFixture(t)
	def := queueDefinition("funding-ingest")
	def.RequiredBodyPaths = []string{"accountId", "period.start"}
	f.stubDefinitions(def)

	t.Run("missing value rejected", func(t *testing.T) {
		_, err := f.orch.CreateJobs(context.Background(), []model.CreateJobRequest{
			{
				JobDefinitionID: "funding-ingest",
				OwnerID:         "acct-1",
				MessageBody:     []byte(`{"accountId":"acct-1"}`),
			},
		}, model.UserRef{})

		var batchErr *BatchValidationError
		require.ErrorAs(t, err, &batchErr)
		require.Len(t, batchErr.Failures, 1)
		assert.Contains(t, batchErr.Failures[0].Message, "period.start")
	})

	t.Run("complete body accepted", func(t *testing.T) {
		f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
		f.broker.EXPECT().SendToQueue(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
		f.sink.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

		_, err := f.orch.CreateJobs(context.Background(), []model.CreateJobRequest{
			{
				JobDefinitionID: "funding-ingest",
				OwnerID:         "acct-1",
				MessageBody:     []byte(`{"accountId":"acct-1","period":{"start":"2026-01-01"}}`),
			},
		}, model.UserRef{})
		require.NoError(t, err)
	})
}

func TestCreateJobsPersistenceFailureIsFatal(t *testing.T) {
	f := newEngineFixture(t)
	f.stubDefinitions(queueDefinition("funding-calculation"))

	f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("connection reset"))

	_, err := f.orch.CreateJobs(context.Background(), []model.CreateJobRequest{
		{JobDefinitionID: "funding-calculation", OwnerID: "acct-1"},
	}, model.UserRef{})

	require.Error(t, err)
	assert.True(t, apperrors.IsInternal(err))
}

func TestCreateJobsSupersession(t *testing.T) {
	def := queueDefinition("funding-calculation")
	def.SupersedeExistingRunningJobOnEnqueue = true

	t.Run("older running job is superseded", func(t *testing.T) {
		f := newEngineFixture(t)
		f.stubDefinitions(def)

		old := &model.Job{
			ID:              "old-job",
			JobDefinitionID: "funding-calculation",
			OwnerID:         "acct-1",
			RunningStatus:   model.RunningStatusInProgress,
		}

		var created *model.Job
		f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, job *model.Job) error {
				created = job
				return nil
			})
		f.repo.EXPECT().GetRunningByOwnerAndDefinition(gomock.Any(), "acct-1", "funding-calculation").
			Return([]*model.Job{old}, nil)
		f.repo.EXPECT().Update(gomock.Any(), old).
			DoAndReturn(func(_ context.Context, job *model.Job) error {
				assert.Equal(t, model.RunningStatusCompleted, job.RunningStatus)
				require.NotNil(t, job.CompletionStatus)
				assert.Equal(t, model.CompletionStatusSuperseded, *job.CompletionStatus)
				require.NotNil(t, job.SupersededByJobID)
				assert.Equal(t, created.ID, *job.SupersededByJobID)
				return nil
			})
		f.broker.EXPECT().SendToQueue(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
		// One notification for the superseded job, one for the new job.
		f.sink.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).Times(2)

		_, err := f.orch.CreateJobs(context.Background(), []model.CreateJobRequest{
			{JobDefinitionID: "funding-calculation", OwnerID: "acct-1"},
		}, model.UserRef{})
		require.NoError(t, err)
	})

	t.Run("sibling with the same parent survives", func(t *testing.T) {
		f := newEngineFixture(t)
		f.stubDefinitions(def)

		parentID := "parent-1"
		sibling := &model.Job{
			ID:              "sibling",
			JobDefinitionID: "funding-calculation",
			OwnerID:         "acct-1",
			ParentJobID:     &parentID,
			RunningStatus:   model.RunningStatusInProgress,
		}

		f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
		f.repo.EXPECT().GetRunningByOwnerAndDefinition(gomock.Any(), "acct-1", "funding-calculation").
			Return([]*model.Job{sibling}, nil)
		// No Update expectation: the sibling must not be touched.
		f.broker.EXPECT().SendToQueue(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
		f.sink.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

		_, err := f.orch.CreateJobs(context.Background(), []model.CreateJobRequest{
			{JobDefinitionID: "funding-calculation", OwnerID: "acct-1", ParentJobID: &parentID},
		}, model.UserRef{})
		require.NoError(t, err)
	})
}
