package config

import "strings"

// ObservabilityConfig groups configuration that controls metrics emission.
type ObservabilityConfig struct {
	Metrics ObservabilityMetricsConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
}

// ObservabilityMetricsConfig controls emission of metrics to external sinks such as StatsD.
type ObservabilityMetricsConfig struct {
	Enabled       bool   `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	StatsdPrefix  string `env:"OBSERVABILITY_METRICS_STATSD_PREFIX"  envDefault:"jobs_engine"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}
