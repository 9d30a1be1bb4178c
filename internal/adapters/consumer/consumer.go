// Package consumer drives the engine from the broker: it subscribes to the
// job notification topic and polls the deletion request queue, handing each
// envelope to the orchestrator.
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fundingcalc/jobs-engine/internal/adapters/redisbroker"
	"github.com/fundingcalc/jobs-engine/internal/domain/model"
	"github.com/fundingcalc/jobs-engine/internal/observability/metrics"
	"github.com/fundingcalc/jobs-engine/internal/observability/statsd"
)

const (
	defaultReceiveTimeout = 5 * time.Second

	sourceNotifications       = "notifications"
	sourceNotificationRetries = "notification-retries"
	sourceDeletions           = "deletions"
)

// Handler is the engine surface the consumer feeds.
type Handler interface {
	ProcessJobNotification(ctx context.Context, envelope *model.MessageEnvelope) error
	ProcessDeletionRequest(ctx context.Context, envelope *model.MessageEnvelope) error
}

// Options configures a Consumer.
type Options struct {
	Broker  *redisbroker.Broker // Required
	Handler Handler             // Required

	NotificationTopic string // Required: topic carrying job notifications
	DeletionQueue     string // Optional: queue carrying deletion requests

	// NotificationRetryQueue holds notifications whose handling failed until
	// they are redelivered. Defaults to NotificationTopic + "-retry".
	NotificationRetryQueue string

	ReceiveTimeout time.Duration // Optional: queue poll timeout, defaults to 5s
	Logger         *slog.Logger  // Optional: structured logger
	Metrics        statsd.Sink   // Optional: metrics sink
}

// Consumer runs the broker-facing receive loops.
type Consumer struct {
	broker  *redisbroker.Broker
	handler Handler

	notificationTopic      string
	notificationRetryQueue string
	deletionQueue          string
	receiveTimeout         time.Duration

	logger  *slog.Logger
	metrics statsd.Sink
}

// New creates a Consumer with the given options.
func New(opts Options) (*Consumer, error) {
	if opts.Broker == nil {
		return nil, errors.New("broker is required")
	}
	if opts.Handler == nil {
		return nil, errors.New("handler is required")
	}
	if opts.NotificationTopic == "" {
		return nil, errors.New("notification topic is required")
	}
	if opts.NotificationRetryQueue == "" {
		opts.NotificationRetryQueue = opts.NotificationTopic + "-retry"
	}
	if opts.ReceiveTimeout <= 0 {
		opts.ReceiveTimeout = defaultReceiveTimeout
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "consumer")
	}

	return &Consumer{
		broker:                 opts.Broker,
		handler:                opts.Handler,
		notificationTopic:      opts.NotificationTopic,
		notificationRetryQueue: opts.NotificationRetryQueue,
		deletionQueue:          opts.DeletionQueue,
		receiveTimeout:         opts.ReceiveTimeout,
		logger:                 logger,
		metrics:                opts.Metrics,
	}, nil
}

// Run starts the receive loops and blocks until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (c *Consumer) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return c.runNotificationLoop(groupCtx)
	})
	group.Go(func() error {
		return c.runQueueLoop(groupCtx, c.notificationRetryQueue,
			sourceNotificationRetries, c.handler.ProcessJobNotification)
	})
	if c.deletionQueue != "" {
		group.Go(func() error {
			return c.runQueueLoop(groupCtx, c.deletionQueue,
				sourceDeletions, c.handler.ProcessDeletionRequest)
		})
	}

	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runNotificationLoop subscribes to the notification topic and hands every
// envelope to the orchestrator. Pub/sub gives no second delivery, so a failed
// envelope is pushed onto the retry queue where the queue loop redelivers it.
func (c *Consumer) runNotificationLoop(ctx context.Context) error {
	sub, err := c.broker.SubscribeTopic(ctx, c.notificationTopic)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Close() }()

	if c.logger != nil {
		c.logger.InfoContext(ctx, "consuming job notifications", "topic", c.notificationTopic)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case envelope, ok := <-sub.Messages():
			if !ok {
				return errors.New("notification subscription closed")
			}
			handleErr := c.handler.ProcessJobNotification(ctx, envelope)
			metrics.EmitMessageHandled(c.metrics, sourceNotifications, handleErr)
			if handleErr == nil {
				continue
			}

			if c.logger != nil {
				c.logger.ErrorContext(ctx, "job notification handling failed, requeueing",
					"job_id", envelope.JobID,
					"error", handleErr,
				)
			}
			c.requeue(ctx, c.notificationRetryQueue, envelope)
		}
	}
}

// runQueueLoop polls one queue and hands every envelope to the given handler.
// A failed envelope is pushed back onto the queue so it is redelivered:
// queue-borne messages must not be lost.
func (c *Consumer) runQueueLoop(
	ctx context.Context,
	queue, source string,
	handle func(context.Context, *model.MessageEnvelope) error,
) error {
	if c.logger != nil {
		c.logger.InfoContext(ctx, "consuming queue", "queue", queue, "source", source)
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		envelope, err := c.broker.ReceiveFromQueue(ctx, queue, c.receiveTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if c.logger != nil {
				c.logger.ErrorContext(ctx, "queue receive failed", "queue", queue, "error", err)
			}
			// Brief pause so a broken broker connection does not spin the loop.
			if pauseErr := pause(ctx, time.Second); pauseErr != nil {
				return pauseErr
			}
			continue
		}
		if envelope == nil {
			continue
		}

		handleErr := handle(ctx, envelope)
		metrics.EmitMessageHandled(c.metrics, source, handleErr)
		if handleErr == nil {
			continue
		}

		if c.logger != nil {
			c.logger.ErrorContext(ctx, "message handling failed, requeueing",
				"queue", queue,
				"error", handleErr,
			)
		}
		c.requeue(ctx, queue, envelope)

		// A handler that keeps failing would otherwise bounce the same
		// envelope through the queue as fast as Redis can serve it.
		if pauseErr := pause(ctx, time.Second); pauseErr != nil {
			return pauseErr
		}
	}
}

func (c *Consumer) requeue(ctx context.Context, queue string, envelope *model.MessageEnvelope) {
	if err := c.broker.SendToQueue(ctx, queue, envelope); err != nil && c.logger != nil {
		c.logger.ErrorContext(ctx, "failed to requeue message",
			"queue", queue,
			"error", err,
		)
	}
}

func pause(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
