// Package redisbroker implements the engine's broker client on Redis:
// queues are lists consumed with BRPOP, topics are pub/sub channels.
package redisbroker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fundingcalc/jobs-engine/internal/domain/model"
)

// Broker sends and receives message envelopes over Redis.
type Broker struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// Options configures a Broker.
type Options struct {
	Client redis.UniversalClient // Required
	Prefix string                // Optional: key prefix, defaults to "mq:"
	Logger *slog.Logger          // Optional: structured logger
}

// New creates a Broker with the given Redis client.
func New(opts Options) (*Broker, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.Prefix == "" {
		opts.Prefix = "mq:"
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "redis_broker")
	}

	return &Broker{
		client: opts.Client,
		prefix: opts.Prefix,
		logger: logger,
	}, nil
}

func (b *Broker) queueKey(queue string) string {
	return b.prefix + "queue:" + queue
}

func (b *Broker) topicChannel(topic string) string {
	return b.prefix + "topic:" + topic
}

// SendToQueue pushes an envelope onto a queue. Messages survive until a
// consumer pops them.
func (b *Broker) SendToQueue(ctx context.Context, queue string, envelope *model.MessageEnvelope) error {
	if queue == "" {
		return errors.New("queue name is required")
	}

	payload, err := marshalEnvelope(envelope)
	if err != nil {
		return err
	}

	if err := b.client.LPush(ctx, b.queueKey(queue), payload).Err(); err != nil {
		return fmt.Errorf("send to queue %s: %w", queue, err)
	}

	if b.logger != nil {
		b.logger.DebugContext(ctx, "message sent to queue",
			"queue", queue,
			"job_id", envelope.JobID,
			"session_key", envelope.SessionKey,
		)
	}
	return nil
}

// SendToTopic publishes an envelope to every current subscriber of a topic.
func (b *Broker) SendToTopic(ctx context.Context, topic string, envelope *model.MessageEnvelope) error {
	if topic == "" {
		return errors.New("topic name is required")
	}

	payload, err := marshalEnvelope(envelope)
	if err != nil {
		return err
	}

	if err := b.client.Publish(ctx, b.topicChannel(topic), payload).Err(); err != nil {
		return fmt.Errorf("send to topic %s: %w", topic, err)
	}

	if b.logger != nil {
		b.logger.DebugContext(ctx, "message published to topic",
			"topic", topic,
			"job_id", envelope.JobID,
		)
	}
	return nil
}

// ReceiveFromQueue blocks up to timeout for the next envelope on a queue.
// Returns nil with no error when the wait times out.
func (b *Broker) ReceiveFromQueue(
	ctx context.Context,
	queue string,
	timeout time.Duration,
) (*model.MessageEnvelope, error) {
	result, err := b.client.BRPop(ctx, timeout, b.queueKey(queue)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("receive from queue %s: %w", queue, err)
	}
	// BRPOP returns [key, value].
	if len(result) != 2 {
		return nil, fmt.Errorf("receive from queue %s: unexpected reply length %d", queue, len(result))
	}
	return unmarshalEnvelope([]byte(result[1]))
}

// Subscription is a live topic subscription; Close releases it.
type Subscription struct {
	pubsub   *redis.PubSub
	messages <-chan *model.MessageEnvelope
}

// Messages returns the channel of decoded envelopes. It closes when the
// subscription is closed or the context used to create it ends.
func (s *Subscription) Messages() <-chan *model.MessageEnvelope {
	return s.messages
}

// Close tears the subscription down.
func (s *Subscription) Close() error {
	return s.pubsub.Close()
}

// SubscribeTopic subscribes to a topic and decodes inbound envelopes.
// Messages that fail to decode are logged and dropped.
func (b *Broker) SubscribeTopic(ctx context.Context, topic string) (*Subscription, error) {
	pubsub := b.client.Subscribe(ctx, b.topicChannel(topic))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe topic %s: %w", topic, err)
	}

	out := make(chan *model.MessageEnvelope)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			envelope, err := unmarshalEnvelope([]byte(msg.Payload))
			if err != nil {
				if b.logger != nil {
					b.logger.Warn("dropping undecodable topic message", "topic", topic, "error", err)
				}
				continue
			}
			select {
			case out <- envelope:
			case <-ctx.Done():
				return
			}
		}
	}()

	return &Subscription{pubsub: pubsub, messages: out}, nil
}

func marshalEnvelope(envelope *model.MessageEnvelope) ([]byte, error) {
	if envelope == nil {
		return nil, errors.New("envelope is required")
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return payload, nil
}

func unmarshalEnvelope(payload []byte) (*model.MessageEnvelope, error) {
	var envelope model.MessageEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return &envelope, nil
}
