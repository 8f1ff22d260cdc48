package models

import (
	"time"

	"github.com/mariovalmir/chatwoot/internal/retry"
)

// Config holds the application configuration
type Config struct {
	Server              ServerConfig   `json:"server" yaml:"server"`
	Database            DatabaseConfig `json:"database" yaml:"database"`
	Redis               RedisConfig    `json:"redis" yaml:"redis"`
	AMQP                AMQPConfig     `json:"amqp" yaml:"amqp"`
	Tracing             TracingConfig  `json:"tracing" yaml:"tracing"`
	Lookup              LookupConfig   `json:"lookup" yaml:"lookup"`
	Inboxes             []InboxConfig  `json:"inboxes" yaml:"inboxes"`
	LogLevel            string         `json:"log_level" yaml:"log_level"`
	DeletedShowOriginal bool           `json:"deleted_show_original" yaml:"deleted_show_original"`
	// Features overrides the default feature flags by name.
	Features map[string]bool `json:"features" yaml:"features"`
}

type ServerConfig struct {
	Addr              string `json:"addr" yaml:"addr"`
	ReadTimeoutSec    int    `json:"read_timeout_sec" yaml:"read_timeout_sec"`
	WriteTimeoutSec   int    `json:"write_timeout_sec" yaml:"write_timeout_sec"`
	IdleTimeoutSec    int    `json:"idle_timeout_sec" yaml:"idle_timeout_sec"`
	MaxBodyBytes      int64  `json:"max_body_bytes" yaml:"max_body_bytes"`
	WebhookMaxSkewSec int    `json:"webhook_max_skew_sec" yaml:"webhook_max_skew_sec"`
	// RateLimitPerMinute caps webhook requests per client address. Negative disables it.
	RateLimitPerMinute int `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	// TrustProxy takes the client address from X-Forwarded-For and X-Real-IP.
	TrustProxy bool `json:"trust_proxy" yaml:"trust_proxy"`
}

// DatabaseConfig selects the store driver. Driver is "sqlite3" or "postgres".
type DatabaseConfig struct {
	Driver        string `json:"driver" yaml:"driver"`
	DSN           string `json:"dsn" yaml:"dsn"`
	Path          string `json:"path" yaml:"path"`
	EncryptionKey string `json:"encryption_key" yaml:"encryption_key"`
}

// RedisConfig configures the shared cache. An empty Addr keeps caches in process.
type RedisConfig struct {
	Addr            string `json:"addr" yaml:"addr"`
	Password        string `json:"password" yaml:"password"`
	DB              int    `json:"db" yaml:"db"`
	DialTimeoutSec  int    `json:"dial_timeout_sec" yaml:"dial_timeout_sec"`
	ReadTimeoutSec  int    `json:"read_timeout_sec" yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `json:"write_timeout_sec" yaml:"write_timeout_sec"`
}

// AMQPConfig configures the job publisher. An empty URL logs jobs instead.
type AMQPConfig struct {
	URL      string `json:"url" yaml:"url"`
	Exchange string `json:"exchange" yaml:"exchange"`
}

type TracingConfig struct {
	Enabled      bool    `json:"enabled" yaml:"enabled"`
	ServiceName  string  `json:"service_name" yaml:"service_name"`
	OTLPEndpoint string  `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	SampleRate   float64 `json:"sample_rate" yaml:"sample_rate"`
	UseStdout    bool    `json:"use_stdout" yaml:"use_stdout"`
}

// LookupConfig tunes outbound provider calls.
type LookupConfig struct {
	TimeoutSec            int                 `json:"timeout_sec" yaml:"timeout_sec"`
	CircuitMaxFailures    int                 `json:"circuit_max_failures" yaml:"circuit_max_failures"`
	CircuitOpenTimeoutSec int                 `json:"circuit_open_timeout_sec" yaml:"circuit_open_timeout_sec"`
	Backoff               retry.BackoffConfig `json:"backoff" yaml:"backoff"`
}

// InboxConfig describes one gateway connection that posts webhooks to us.
type InboxConfig struct {
	ID                       int64    `json:"id" yaml:"id"`
	Name                     string   `json:"name" yaml:"name"`
	Provider                 Provider `json:"provider" yaml:"provider"`
	Session                  string   `json:"session" yaml:"session"`
	APIURL                   string   `json:"api_url" yaml:"api_url"`
	APIKey                   string   `json:"api_key" yaml:"api_key"`
	WebhookSecret            string   `json:"webhook_secret" yaml:"webhook_secret"`
	LockToSingleConversation bool     `json:"lock_to_single_conversation" yaml:"lock_to_single_conversation"`
	ShowDeletedOriginal      bool     `json:"show_deleted_original" yaml:"show_deleted_original"`
}

func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSec) * time.Second
}
func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSec) * time.Second
}
func (s ServerConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutSec) * time.Second
}

// InboxByID returns the configured inbox with the given id.
func (c *Config) InboxByID(id int64) (*InboxConfig, bool) {
	for i := range c.Inboxes {
		if c.Inboxes[i].ID == id {
			return &c.Inboxes[i], true
		}
	}
	return nil, false
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
