package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fundingcalc/jobs-engine/internal/core"
	"github.com/fundingcalc/jobs-engine/internal/domain/model"
)

// NotificationPublisher projects jobs into notifications and publishes them
// so other services can observe lifecycle changes.
type NotificationPublisher struct {
	sink   core.NotificationSink
	retry  core.RetryPolicy
	logger *slog.Logger
}

// NotificationPublisherOptions groups dependencies for NotificationPublisher.
type NotificationPublisherOptions struct {
	Sink   core.NotificationSink // Required: notification sink
	Retry  core.RetryPolicy      // Optional: defaults to no retry
	Logger *slog.Logger          // Optional: structured logger
}

// NewNotificationPublisher constructs a new NotificationPublisher.
func NewNotificationPublisher(opts NotificationPublisherOptions) (*NotificationPublisher, error) {
	if opts.Sink == nil {
		return nil, errors.New("NotificationSink is required")
	}
	if opts.Retry == nil {
		opts.Retry = core.NoRetryPolicy{}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "notification_publisher")
	}

	return &NotificationPublisher{
		sink:   opts.Sink,
		retry:  opts.Retry,
		logger: logger,
	}, nil
}

// PublishJob publishes the job's current state.
func (p *NotificationPublisher) PublishJob(ctx context.Context, job *model.Job) error {
	return p.publish(ctx, model.NotificationFromJob(job))
}

// PublishJobLog publishes the job's state enriched with a log's counters.
func (p *NotificationPublisher) PublishJobLog(ctx context.Context, job *model.Job, log *model.JobLog) error {
	return p.publish(ctx, model.NotificationFromJobLog(job, log))
}

func (p *NotificationPublisher) publish(ctx context.Context, notification model.JobNotification) error {
	err := p.retry.Execute(ctx, "publish job notification", func(ctx context.Context) error {
		return p.sink.Publish(ctx, notification)
	})
	if err != nil {
		return err
	}

	if p.logger != nil {
		p.logger.DebugContext(ctx, "job notification published",
			"job_id", notification.JobID,
			"running_status", notification.RunningStatus,
		)
	}
	return nil
}
