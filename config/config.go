package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Database and Redis configuration
//   - engine.go: Orchestration engine and broker configuration
//   - observability.go: Metrics configuration
type AppConfig struct {
	// IsDev controls development mode behavior.
	// Set DEV=true for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"consumer,sweeper"`

	// Engine and broker configuration
	Engine EngineConfig
	Broker BrokerConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Engine.Sanitize()
	c.Broker.Sanitize()
	c.Observability.Sanitize()
	c.detectDevMode()
}

// detectDevMode checks both DEV and APP_ENV environment variables.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		appEnv := strings.ToLower(os.Getenv("APP_ENV"))
		c.IsDev = appEnv == "development" || appEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsConsumerEnabled returns true if the broker consumer service is enabled.
func (c *AppConfig) IsConsumerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeConsumer]
}

// IsSweeperEnabled returns true if the timeout sweeper service is enabled.
func (c *AppConfig) IsSweeperEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeSweeper]
}
