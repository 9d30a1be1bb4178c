package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fundingcalc/jobs-engine/internal/core"
	apperrors "github.com/fundingcalc/jobs-engine/internal/errors"
	"github.com/fundingcalc/jobs-engine/internal/domain/model"
)

// Dispatcher sends a follow-on message to the broker destination declared by
// a job's definition so a worker picks the job up.
type Dispatcher struct {
	broker core.BrokerClient
	retry  core.RetryPolicy
	logger *slog.Logger
}

// DispatcherOptions groups dependencies for Dispatcher.
type DispatcherOptions struct {
	Broker core.BrokerClient // Required: broker client
	Retry  core.RetryPolicy  // Optional: defaults to no retry
	Logger *slog.Logger      // Optional: structured logger
}

// NewDispatcher constructs a new Dispatcher.
func NewDispatcher(opts DispatcherOptions) (*Dispatcher, error) {
	if opts.Broker == nil {
		return nil, errors.New("BrokerClient is required")
	}
	if opts.Retry == nil {
		opts.Retry = core.NoRetryPolicy{}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "dispatcher")
	}

	return &Dispatcher{
		broker: opts.Broker,
		retry:  opts.Retry,
		logger: logger,
	}, nil
}

// Dispatch resolves the definition's destination and sends the job's message.
//
// Parent-only definitions (no queue, no topic) are silently skipped. A
// declared session property missing from the job at this point is a
// configuration defect and is returned as an internal error: the job was
// validated to carry it at creation. Broker send failures are logged and
// swallowed; the job record is durable and remains the source of truth.
func (d *Dispatcher) Dispatch(ctx context.Context, job *model.Job, definition *model.JobDefinition) error {
	destination, kind := definition.Destination()
	if kind == model.DestinationNone {
		if d.logger != nil {
			d.logger.DebugContext(ctx, "parent-only job not dispatched",
				"job_id", job.ID,
				"definition", definition.ID,
			)
		}
		return nil
	}

	envelope, err := buildDispatchEnvelope(job, definition)
	if err != nil {
		return err
	}

	sendErr := d.retry.Execute(ctx, "dispatch job message", func(ctx context.Context) error {
		if kind == model.DestinationQueue {
			return d.broker.SendToQueue(ctx, destination, envelope)
		}
		return d.broker.SendToTopic(ctx, destination, envelope)
	})
	if sendErr != nil {
		if d.logger != nil {
			d.logger.ErrorContext(ctx, "job dispatch failed, job remains queued",
				"job_id", job.ID,
				"destination", destination,
				"kind", kind,
				"error", sendErr,
			)
		}
		return nil
	}

	if d.logger != nil {
		d.logger.DebugContext(ctx, "job dispatched",
			"job_id", job.ID,
			"destination", destination,
			"kind", kind,
		)
	}
	return nil
}

// buildDispatchEnvelope seeds the bookkeeping properties without overwriting
// caller-supplied values and resolves the optional session-affinity key.
func buildDispatchEnvelope(job *model.Job, definition *model.JobDefinition) (*model.MessageEnvelope, error) {
	envelope := &model.MessageEnvelope{
		Body:          job.MessageBody,
		JobID:         job.ID,
		CorrelationID: job.CorrelationID,
		Properties:    make(map[string]string, len(job.Properties)+2),
	}
	for k, v := range job.Properties {
		envelope.Properties[k] = v
	}
	envelope.SeedProperty(model.PropertyJobID, job.ID)
	if job.CorrelationID != "" {
		envelope.SeedProperty(model.PropertyCorrelationID, job.CorrelationID)
	}

	if definition.RequiresSessionProperty() {
		sessionKey, ok := envelope.Property(definition.SessionPropertyName)
		if !ok {
			return nil, apperrors.Wrap(
				fmt.Errorf("job %s lacks session property %q declared by definition %s",
					job.ID, definition.SessionPropertyName, definition.ID),
				apperrors.ErrCodeInternal,
				"validated job is missing its session property at dispatch time",
			)
		}
		envelope.SessionKey = sessionKey
	}

	return envelope, nil
}
