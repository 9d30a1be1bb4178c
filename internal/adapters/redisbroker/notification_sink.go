package redisbroker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fundingcalc/jobs-engine/internal/domain/model"
)

// NotificationSink publishes job notifications to a fixed broker topic,
// attaching the jobId property required by the inbound envelope contract.
type NotificationSink struct {
	broker *Broker
	topic  string
}

// NewNotificationSink creates a sink publishing to the given topic.
func NewNotificationSink(broker *Broker, topic string) (*NotificationSink, error) {
	if broker == nil {
		return nil, errors.New("broker is required")
	}
	if topic == "" {
		return nil, errors.New("notification topic is required")
	}
	return &NotificationSink{broker: broker, topic: topic}, nil
}

// Publish serializes the notification and sends it to the topic.
func (s *NotificationSink) Publish(ctx context.Context, notification model.JobNotification) error {
	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal job notification: %w", err)
	}

	envelope := &model.MessageEnvelope{
		Body:          body,
		JobID:         notification.JobID,
		CorrelationID: notification.CorrelationID,
	}
	envelope.SeedProperty(model.PropertyJobID, notification.JobID)
	if notification.CorrelationID != "" {
		envelope.SeedProperty(model.PropertyCorrelationID, notification.CorrelationID)
	}

	return s.broker.SendToTopic(ctx, s.topic, envelope)
}
