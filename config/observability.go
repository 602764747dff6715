package config

import (
	"strings"
	"time"
)

const defaultObservabilityName = "mgraph"

// ObservabilityConfig groups configuration that controls metrics and run notification delivery.
type ObservabilityConfig struct {
	Metrics       ObservabilityMetricsConfig
	Notifications ObservabilityNotificationsConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Notifications.Sanitize()
}

// ObservabilityMetricsConfig controls emission of metrics to external sinks such as StatsD.
type ObservabilityMetricsConfig struct {
	Enabled       bool   `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix        string `env:"OBSERVABILITY_METRICS_PREFIX"         envDefault:"mgraph"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	c.Prefix = strings.Trim(strings.TrimSpace(c.Prefix), ".")
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// ObservabilityNotificationsConfig controls delivery of run notifications.
type ObservabilityNotificationsConfig struct {
	Enabled    bool                        `env:"OBSERVABILITY_NOTIFICATIONS_ENABLED"     envDefault:"false"`
	Timeout    time.Duration               `env:"OBSERVABILITY_NOTIFICATIONS_TIMEOUT"     envDefault:"5s"`
	RetryLimit int                         `env:"OBSERVABILITY_NOTIFICATIONS_RETRY_LIMIT" envDefault:"3"`
	Slack      SlackNotificationConfig     `                                                                 envPrefix:"OBSERVABILITY_NOTIFICATIONS_SLACK_"`
	Email      EmailNotificationConfig     `                                                                 envPrefix:"OBSERVABILITY_NOTIFICATIONS_EMAIL_"`
	PagerDuty  PagerDutyNotificationConfig `                                                                 envPrefix:"OBSERVABILITY_NOTIFICATIONS_PAGERDUTY_"`
}

// Sanitize normalises notification configuration values.
func (c *ObservabilityNotificationsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}

	c.Slack.sanitize()
	c.Email.sanitize()
	c.PagerDuty.sanitize()

	if !c.Enabled {
		c.Slack.Enabled = false
		c.Email.Enabled = false
		c.PagerDuty.Enabled = false
		return
	}

	if c.Email.Enabled && (c.Email.Host == "" || c.Email.From == "") {
		c.Email.Enabled = false
	}

	if c.PagerDuty.Enabled && c.PagerDuty.RoutingKey == "" {
		c.PagerDuty.Enabled = false
	}
}

// SlackNotificationConfig controls delivery to the Slack webhooks configured on each refresh job.
type SlackNotificationConfig struct {
	Enabled  bool   `env:"ENABLED"  envDefault:"true"`
	Username string `env:"USERNAME" envDefault:"MGraph"`
	// AllowedDomains lists registrable domains webhook URLs may point at.
	AllowedDomains []string `env:"ALLOWED_DOMAINS" envDefault:"slack.com" envSeparator:","`
}

func (c *SlackNotificationConfig) sanitize() {
	c.Username = strings.TrimSpace(c.Username)
	if c.Username == "" {
		c.Username = "MGraph"
	}
	c.AllowedDomains = trimAll(c.AllowedDomains)
	if len(c.AllowedDomains) == 0 {
		c.AllowedDomains = []string{"slack.com"}
	}
}

// EmailNotificationConfig controls SMTP delivery to the addresses configured on each refresh job.
type EmailNotificationConfig struct {
	Enabled  bool   `env:"ENABLED"  envDefault:"false"`
	Host     string `env:"HOST"`
	Port     int    `env:"PORT"     envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM"`
}

func (c *EmailNotificationConfig) sanitize() {
	c.Host = strings.TrimSpace(c.Host)
	c.From = strings.TrimSpace(c.From)
	if c.Port <= 0 || c.Port > 65535 {
		c.Port = 587
	}
}

// PagerDutyNotificationConfig controls PagerDuty Events API v2 escalation of timed-out runs.
type PagerDutyNotificationConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	RoutingKey string `env:"ROUTING_KEY"`
	Source     string `env:"SOURCE"      envDefault:"mgraph"`
	Severity   string `env:"SEVERITY"    envDefault:"warning"`
}

func (c *PagerDutyNotificationConfig) sanitize() {
	c.RoutingKey = strings.TrimSpace(c.RoutingKey)
	if c.Source = strings.TrimSpace(c.Source); c.Source == "" {
		c.Source = defaultObservabilityName
	}
	switch c.Severity = strings.ToLower(strings.TrimSpace(c.Severity)); c.Severity {
	case "critical", "error", "warning", "info":
	default:
		c.Severity = "warning"
	}
}
