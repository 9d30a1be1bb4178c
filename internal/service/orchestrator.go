// Package service implements the job orchestration engine: batch job
// creation, supersession, log-driven status transitions, parent/child
// completion aggregation, and the timeout sweep.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/sync/errgroup"

	"github.com/fundingcalc/jobs-engine/internal/core"
	"github.com/fundingcalc/jobs-engine/internal/data"
	apperrors "github.com/fundingcalc/jobs-engine/internal/errors"
	"github.com/fundingcalc/jobs-engine/internal/domain/model"
	"github.com/fundingcalc/jobs-engine/internal/observability/metrics"
	"github.com/fundingcalc/jobs-engine/internal/observability/statsd"
)

// defaultFanOutLimit bounds concurrent per-job dispatch/notify operations
// during batch creation so the broker is not overwhelmed.
const defaultFanOutLimit = 30

// supersededOutcome is recorded on jobs replaced by a newer one of the same type.
const supersededOutcome = "superseded by newer job"

// BatchValidationError aggregates the per-item failures of a rejected batch.
// No jobs are created when it is returned.
type BatchValidationError struct {
	Failures []model.ValidationFailure
}

// Error implements the error interface.
func (e *BatchValidationError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = fmt.Sprintf("request %d: %s", f.RequestIndex, f.Message)
	}
	return "job create batch rejected: " + strings.Join(msgs, "; ")
}

// Orchestrator coordinates the job lifecycle end to end. It is the only
// component that mutates jobs; everything else observes notifications.
type Orchestrator struct {
	repo           core.JobRepository
	catalog        *core.DefinitionCatalog
	dispatcher     *Dispatcher
	publisher      *NotificationPublisher
	retry          core.RetryPolicy
	completionLock core.KeyedLock
	timeProvider   data.TimeProvider
	logger         *slog.Logger
	metrics        statsd.Sink
	fanOutLimit    int
}

// OrchestratorOptions groups dependencies for Orchestrator.
type OrchestratorOptions struct {
	Repo           core.JobRepository         // Required: job store
	Catalog        *core.DefinitionCatalog    // Required: cached definition catalog
	Dispatcher     *Dispatcher                // Required: broker dispatcher
	Publisher      *NotificationPublisher     // Required: notification publisher
	Retry          core.RetryPolicy           // Optional: wraps store calls, defaults to no retry
	CompletionLock core.KeyedLock             // Optional: defaults to a process-local lock
	TimeProvider   data.TimeProvider          // Optional: defaults to real time
	Logger         *slog.Logger               // Optional: structured logger
	Metrics        statsd.Sink                // Optional: metrics sink
	FanOutLimit    int                        // Optional: defaults to 30
}

// NewOrchestrator constructs a new Orchestrator.
func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Catalog == nil {
		return nil, errors.New("DefinitionCatalog is required")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("Dispatcher is required")
	}
	if opts.Publisher == nil {
		return nil, errors.New("NotificationPublisher is required")
	}
	if opts.Retry == nil {
		opts.Retry = core.NoRetryPolicy{}
	}
	if opts.CompletionLock == nil {
		opts.CompletionLock = core.NewLocalKeyedLock()
	}
	if opts.TimeProvider == nil {
		opts.TimeProvider = &data.RealTimeProvider{}
	}
	if opts.FanOutLimit <= 0 {
		opts.FanOutLimit = defaultFanOutLimit
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "orchestrator")
	}

	return &Orchestrator{
		repo:           opts.Repo,
		catalog:        opts.Catalog,
		dispatcher:     opts.Dispatcher,
		publisher:      opts.Publisher,
		retry:          opts.Retry,
		completionLock: opts.CompletionLock,
		timeProvider:   opts.TimeProvider,
		logger:         logger,
		metrics:        opts.Metrics,
		fanOutLimit:    opts.FanOutLimit,
	}, nil
}

// MustNewOrchestrator constructs a new Orchestrator and panics on error.
func MustNewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	svc, err := NewOrchestrator(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create Orchestrator: %v", err))
	}
	return svc
}

// CreateJobs validates and creates a batch of jobs atomically: either every
// request passes validation and every job is created, or none are.
//
// After creation the batch is superseded against older running jobs, then
// each new job is dispatched to its broker destination and its notification
// published, bounded by the fan-out limit.
func (o *Orchestrator) CreateJobs(
	ctx context.Context,
	requests []model.CreateJobRequest,
	invoker model.UserRef,
) ([]*model.Job, error) {
	if len(requests) == 0 {
		return nil, apperrors.Validation("at least one job create request is required")
	}

	definitions, err := o.loadDefinitions(ctx)
	if err != nil {
		return nil, err
	}

	if err := o.validateBatch(requests, definitions); err != nil {
		return nil, err
	}

	jobs, err := o.createJobs(ctx, requests, invoker)
	if err != nil {
		return nil, err
	}

	if err := o.supersedeRunningJobs(ctx, jobs, definitions); err != nil {
		return nil, err
	}

	if err := o.fanOut(ctx, jobs, definitions); err != nil {
		return nil, err
	}

	metrics.EmitJobsCreated(o.metrics, len(jobs))
	return jobs, nil
}

// loadDefinitions fetches the full catalog and fails with a server error when
// it is unreachable or empty.
func (o *Orchestrator) loadDefinitions(ctx context.Context) (map[string]*model.JobDefinition, error) {
	all, err := o.catalog.GetAll(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "job definition catalog is unreachable")
	}
	if len(all) == 0 {
		return nil, apperrors.Internal("job definition catalog is empty")
	}

	byID := make(map[string]*model.JobDefinition, len(all))
	for _, d := range all {
		byID[d.ID] = d
	}
	return byID, nil
}

// validateBatch applies batch semantics: an unknown definition id fails the
// whole batch with a precondition error naming it; all other per-item
// failures are collected and, if any exist, the batch is rejected in full.
func (o *Orchestrator) validateBatch(
	requests []model.CreateJobRequest,
	definitions map[string]*model.JobDefinition,
) error {
	var failures []model.ValidationFailure

	for i := range requests {
		req := &requests[i]

		definition, ok := definitions[req.JobDefinitionID]
		if !ok {
			return apperrors.Preconditionf("unknown job definition id: %s", req.JobDefinitionID)
		}

		for _, failure := range validateRequest(req, definition) {
			failures = append(failures, model.ValidationFailure{
				RequestIndex:    i,
				JobDefinitionID: req.JobDefinitionID,
				Message:         failure,
			})
		}
	}

	if len(failures) > 0 {
		return &BatchValidationError{Failures: failures}
	}
	return nil
}

// validateRequest runs every registered per-item rule against one request.
func validateRequest(req *model.CreateJobRequest, definition *model.JobDefinition) []string {
	var failures []string

	if err := req.Validate(); err != nil {
		failures = append(failures, err.Error())
	}

	if definition.RequiresSessionProperty() {
		if _, ok := req.Properties[definition.SessionPropertyName]; !ok {
			failures = append(failures, fmt.Sprintf(
				"missing required session property %q", definition.SessionPropertyName))
		}
	}

	failures = append(failures, validateBodyPaths(req, definition)...)
	return failures
}

// validateBodyPaths checks the definition's required JMESPath expressions
// against the request's JSON message body.
func validateBodyPaths(req *model.CreateJobRequest, definition *model.JobDefinition) []string {
	if len(definition.RequiredBodyPaths) == 0 {
		return nil
	}

	var body any
	if len(req.MessageBody) > 0 {
		if err := json.Unmarshal(req.MessageBody, &body); err != nil {
			return []string{"message body is not valid JSON"}
		}
	}

	var failures []string
	for _, path := range definition.RequiredBodyPaths {
		result, err := jmespath.Search(path, body)
		if err != nil || result == nil {
			failures = append(failures, fmt.Sprintf("message body is missing required value at %q", path))
		}
	}
	return failures
}

// createJobs persists one job per request. A persistence failure after
// validation is fatal for the whole batch: the caller cannot be handed a
// partially created result set.
func (o *Orchestrator) createJobs(
	ctx context.Context,
	requests []model.CreateJobRequest,
	invoker model.UserRef,
) ([]*model.Job, error) {
	now := o.timeProvider.Now()
	jobs := make([]*model.Job, 0, len(requests))

	for i := range requests {
		job := newJobFromRequest(&requests[i], invoker, now)

		if err := o.retry.Execute(ctx, "create job", func(ctx context.Context) error {
			return o.repo.Create(ctx, job)
		}); err != nil {
			return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal,
				"failed to persist job for definition %s", job.JobDefinitionID)
		}

		if o.logger != nil {
			o.logger.InfoContext(ctx, "job created",
				"job_id", job.ID,
				"definition", job.JobDefinitionID,
				"owner_id", job.OwnerID,
				"parent_job_id", job.ParentJobID,
			)
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

// newJobFromRequest builds the persisted job, filling invoker identity and
// correlation id when the request leaves them blank.
func newJobFromRequest(req *model.CreateJobRequest, invoker model.UserRef, now time.Time) *model.Job {
	invokerID := req.InvokerUserID
	invokerName := req.InvokerUserDisplayName
	if invokerID == "" {
		invokerID = invoker.ID
		invokerName = invoker.Name
	}

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	return &model.Job{
		ID:                     uuid.NewString(),
		JobDefinitionID:        req.JobDefinitionID,
		OwnerID:                req.OwnerID,
		ParentJobID:            req.ParentJobID,
		CorrelationID:          correlationID,
		InvokerUserID:          invokerID,
		InvokerUserDisplayName: invokerName,
		MessageBody:            req.MessageBody,
		Properties:             req.Properties,
		ItemCount:              req.ItemCount,
		Trigger:                req.Trigger,
		RunningStatus:          model.RunningStatusQueued,
		CreatedAt:              now,
	}
}

// supersedeRunningJobs marks older running jobs of a superseding definition
// and owner as replaced by the newest job just created for that pair.
func (o *Orchestrator) supersedeRunningJobs(
	ctx context.Context,
	created []*model.Job,
	definitions map[string]*model.JobDefinition,
) error {
	createdIDs := make(map[string]bool, len(created))
	for _, job := range created {
		createdIDs[job.ID] = true
	}

	// Newest job per (definition, owner) pair wins; requests are created in
	// order so a later entry replaces an earlier one.
	type pair struct{ definitionID, ownerID string }
	survivors := make(map[pair]*model.Job)
	for _, job := range created {
		definition := definitions[job.JobDefinitionID]
		if definition == nil || !definition.SupersedeExistingRunningJobOnEnqueue {
			continue
		}
		survivors[pair{job.JobDefinitionID, job.OwnerID}] = job
	}

	for key, survivor := range survivors {
		var running []*model.Job
		if err := o.retry.Execute(ctx, "get running jobs", func(ctx context.Context) error {
			var lookupErr error
			running, lookupErr = o.repo.GetRunningByOwnerAndDefinition(ctx, key.ownerID, key.definitionID)
			return lookupErr
		}); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to load running jobs for supersession")
		}

		for _, old := range running {
			if createdIDs[old.ID] || !old.CanBeSupersededBy(survivor) {
				continue
			}
			if err := o.supersede(ctx, old, survivor); err != nil {
				return err
			}
		}
	}

	return nil
}

// supersede completes one stale job as superseded and publishes its notification.
func (o *Orchestrator) supersede(ctx context.Context, old, replacement *model.Job) error {
	now := o.timeProvider.Now()
	if !old.Complete(model.CompletionStatusSuperseded, supersededOutcome, now) {
		return nil
	}
	old.SupersededByJobID = &replacement.ID

	if err := o.retry.Execute(ctx, "supersede job", func(ctx context.Context) error {
		return o.repo.Update(ctx, old)
	}); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeInternal, "failed to supersede job %s", old.ID)
	}

	if o.logger != nil {
		o.logger.InfoContext(ctx, "job superseded",
			"job_id", old.ID,
			"superseded_by", replacement.ID,
		)
	}
	metrics.EmitJobCompleted(o.metrics, model.CompletionStatusSuperseded)

	return o.publisher.PublishJob(ctx, old)
}

// fanOut dispatches and publishes every created job, bounded by the fan-out
// limit. Each job's work acquires one permit and releases it when done,
// whether or not that job's dispatch succeeded.
func (o *Orchestrator) fanOut(
	ctx context.Context,
	jobs []*model.Job,
	definitions map[string]*model.JobDefinition,
) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.fanOutLimit)

	for _, job := range jobs {
		job := job
		definition := definitions[job.JobDefinitionID]
		group.Go(func() error {
			if err := o.dispatcher.Dispatch(groupCtx, job, definition); err != nil {
				return err
			}
			return o.publisher.PublishJob(groupCtx, job)
		})
	}

	if err := group.Wait(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "job fan-out failed")
	}
	return nil
}
