package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeConsumer runs the broker consumer loops.
	ServiceModeConsumer ServiceMode = "consumer"
	// ServiceModeSweeper runs the periodic timeout sweep.
	ServiceModeSweeper ServiceMode = "sweeper"
)

// ParseServices parses a comma-delimited string of service names and returns
// the enabled services. It validates that all service names are valid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeConsumer, ServiceModeSweeper:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: consumer, sweeper)", serviceName)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// EngineConfig contains orchestration engine configuration.
type EngineConfig struct {
	// FanOutLimit bounds concurrent per-job dispatch during batch creation.
	FanOutLimit int `env:"ENGINE_FAN_OUT_LIMIT" envDefault:"30"`

	// SweepInterval is the timeout sweep tick interval.
	SweepInterval time.Duration `env:"ENGINE_SWEEP_INTERVAL" envDefault:"1m"`

	// RetryAttempts is the number of attempts for store and broker calls.
	RetryAttempts int `env:"ENGINE_RETRY_ATTEMPTS" envDefault:"3"`

	// RetryInitialDelay is the delay before the first retry; it doubles per attempt.
	RetryInitialDelay time.Duration `env:"ENGINE_RETRY_INITIAL_DELAY" envDefault:"100ms"`

	// RetryMaxDelay caps the delay between retries.
	RetryMaxDelay time.Duration `env:"ENGINE_RETRY_MAX_DELAY" envDefault:"2s"`

	// CompletionLockTTL is the expiry on the distributed parent-completion lock.
	CompletionLockTTL time.Duration `env:"ENGINE_COMPLETION_LOCK_TTL" envDefault:"30s"`

	// DefinitionCacheTTL is how long the definition catalog snapshot is reused.
	DefinitionCacheTTL time.Duration `env:"ENGINE_DEFINITION_CACHE_TTL" envDefault:"5m"`
}

// Sanitize applies guardrails to engine configuration values.
func (e *EngineConfig) Sanitize() {
	if e.FanOutLimit < 1 {
		e.FanOutLimit = 1
	}
	if e.SweepInterval < 5*time.Second {
		e.SweepInterval = 5 * time.Second
	}
	if e.RetryAttempts < 1 {
		e.RetryAttempts = 1
	}
	if e.RetryInitialDelay <= 0 {
		e.RetryInitialDelay = 100 * time.Millisecond
	}
	if e.RetryMaxDelay < e.RetryInitialDelay {
		e.RetryMaxDelay = e.RetryInitialDelay
	}
	if e.CompletionLockTTL < 5*time.Second {
		e.CompletionLockTTL = 5 * time.Second
	}
	if e.DefinitionCacheTTL <= 0 {
		e.DefinitionCacheTTL = 5 * time.Minute
	}
}

// BrokerConfig contains broker topology configuration.
type BrokerConfig struct {
	// KeyPrefix namespaces every broker key in Redis.
	KeyPrefix string `env:"BROKER_KEY_PREFIX" envDefault:"mq:"`

	// NotificationTopic carries job lifecycle notifications.
	NotificationTopic string `env:"BROKER_NOTIFICATION_TOPIC" envDefault:"job-notifications"`

	// NotificationRetryQueue holds notifications whose handling failed until
	// they are redelivered. Empty derives the name from NotificationTopic.
	NotificationRetryQueue string `env:"BROKER_NOTIFICATION_RETRY_QUEUE"`

	// DeletionQueue carries owner deletion requests. Empty disables the loop.
	DeletionQueue string `env:"BROKER_DELETION_QUEUE" envDefault:"job-deletions"`

	// ReceiveTimeout is the blocking poll timeout on queue receives.
	ReceiveTimeout time.Duration `env:"BROKER_RECEIVE_TIMEOUT" envDefault:"5s"`
}

// Sanitize applies guardrails to broker configuration values.
func (b *BrokerConfig) Sanitize() {
	b.NotificationTopic = strings.TrimSpace(b.NotificationTopic)
	b.NotificationRetryQueue = strings.TrimSpace(b.NotificationRetryQueue)
	b.DeletionQueue = strings.TrimSpace(b.DeletionQueue)
	if b.NotificationTopic == "" {
		b.NotificationTopic = "job-notifications"
	}
	if b.ReceiveTimeout <= 0 {
		b.ReceiveTimeout = 5 * time.Second
	}
}
