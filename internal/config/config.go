package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mariovalmir/chatwoot/internal/constants"
	"github.com/mariovalmir/chatwoot/internal/features"
	"github.com/mariovalmir/chatwoot/internal/models"
	"github.com/mariovalmir/chatwoot/internal/security"
	"github.com/mariovalmir/chatwoot/internal/validation"

	"gopkg.in/yaml.v3"
)

const envPrefix = "WAINGEST_"

var (
	ErrNoInboxes         = models.ConfigError{Message: "inboxes array is required and must contain at least one inbox"}
	ErrTooManyInboxes    = models.ConfigError{Message: fmt.Sprintf("too many inboxes (max %d)", constants.MaxInboxCount)}
	ErrMissingDSN        = models.ConfigError{Message: "postgres driver requires database.dsn"}
	ErrWeakEncryptionKey = models.ConfigError{Message: fmt.Sprintf("database.encryption_key must be at least %d characters", constants.MinEncryptionKeyChars)}
)

// LoadConfig reads a JSON or YAML file (by extension), fills defaults,
// applies WAINGEST_* environment overrides and validates the result.
func LoadConfig(path string) (*models.Config, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(file, &config)
	default:
		err = json.Unmarshal(file, &config)
	}
	if err != nil {
		return nil, models.ConfigError{Message: fmt.Sprintf("failed to parse %s: %v", path, err)}
	}

	if err := applyEnvironmentOverrides(&config); err != nil {
		return nil, err
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	applyDefaults(c)

	switch c.Database.Driver {
	case "sqlite3":
	case "postgres":
		if c.Database.DSN == "" {
			return ErrMissingDSN
		}
	default:
		return models.ConfigError{Message: fmt.Sprintf("unsupported database driver: %q", c.Database.Driver)}
	}
	if key := c.Database.EncryptionKey; key != "" && len(key) < constants.MinEncryptionKeyChars {
		return ErrWeakEncryptionKey
	}

	for field, sec := range map[string]int{
		"server.read_timeout_sec":  c.Server.ReadTimeoutSec,
		"server.write_timeout_sec": c.Server.WriteTimeoutSec,
		"server.idle_timeout_sec":  c.Server.IdleTimeoutSec,
		"lookup.timeout_sec":       c.Lookup.TimeoutSec,
	} {
		if err := validation.ValidateTimeout(sec, field); err != nil {
			return models.ConfigError{Message: err.Error()}
		}
	}

	if err := features.Validate(c.Features); err != nil {
		return models.ConfigError{Message: err.Error()}
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return models.ConfigError{Message: "tracing.sample_rate must be between 0 and 1"}
	}

	return validateInboxes(c.Inboxes)
}

func validateInboxes(inboxes []models.InboxConfig) error {
	if len(inboxes) == 0 {
		return ErrNoInboxes
	}
	if len(inboxes) > constants.MaxInboxCount {
		return ErrTooManyInboxes
	}

	ids := make(map[int64]bool, len(inboxes))
	sessions := make(map[string]bool, len(inboxes))
	for i, inbox := range inboxes {
		if inbox.ID <= 0 {
			return models.ConfigError{Message: fmt.Sprintf("inbox %d: id must be positive", i)}
		}
		if ids[inbox.ID] {
			return models.ConfigError{Message: fmt.Sprintf("duplicate inbox id: %d", inbox.ID)}
		}
		ids[inbox.ID] = true

		if !inbox.Provider.Valid() {
			return models.ConfigError{Message: fmt.Sprintf("inbox %d: unknown provider %q", inbox.ID, inbox.Provider)}
		}
		if err := validation.ValidateSessionName(inbox.Session); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("inbox %d: %v", inbox.ID, err)}
		}
		key := string(inbox.Provider) + "/" + inbox.APIURL + "/" + inbox.Session
		if sessions[key] {
			return models.ConfigError{Message: fmt.Sprintf("inbox %d: session %s already used by another inbox", inbox.ID, inbox.Session)}
		}
		sessions[key] = true
	}
	return nil
}

func applyDefaults(c *models.Config) {
	if c.Server.Addr == "" {
		c.Server.Addr = constants.DefaultServerAddr
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}
	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = constants.DefaultMaxWebhookBodyBytes
	}
	if c.Server.WebhookMaxSkewSec <= 0 {
		c.Server.WebhookMaxSkewSec = constants.DefaultWebhookMaxSkewSec
	}
	if c.Server.RateLimitPerMinute == 0 {
		c.Server.RateLimitPerMinute = constants.DefaultRateLimitPerMinute
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	if c.Database.Driver == "sqlite3" && c.Database.Path == "" {
		c.Database.Path = constants.DefaultDatabasePath
	}

	if c.Redis.DialTimeoutSec <= 0 {
		c.Redis.DialTimeoutSec = constants.DefaultRedisDialTimeoutSec
	}
	if c.Redis.ReadTimeoutSec <= 0 {
		c.Redis.ReadTimeoutSec = constants.DefaultRedisIOTimeoutSec
	}
	if c.Redis.WriteTimeoutSec <= 0 {
		c.Redis.WriteTimeoutSec = constants.DefaultRedisIOTimeoutSec
	}
	if c.AMQP.Exchange == "" {
		c.AMQP.Exchange = constants.DefaultAMQPExchange
	}

	if c.Lookup.TimeoutSec <= 0 {
		c.Lookup.TimeoutSec = constants.DefaultProviderTimeoutSec
	}
	if c.Lookup.CircuitMaxFailures <= 0 {
		c.Lookup.CircuitMaxFailures = constants.DefaultCircuitMaxFailures
	}
	if c.Lookup.CircuitOpenTimeoutSec <= 0 {
		c.Lookup.CircuitOpenTimeoutSec = constants.DefaultCircuitOpenSec
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	for i := range c.Inboxes {
		c.Inboxes[i].Provider = models.Provider(strings.ToLower(strings.TrimSpace(string(c.Inboxes[i].Provider))))
		if c.Inboxes[i].Name == "" {
			c.Inboxes[i].Name = fmt.Sprintf("%s-%d", c.Inboxes[i].Provider, c.Inboxes[i].ID)
		}
		if c.DeletedShowOriginal {
			c.Inboxes[i].ShowDeletedOriginal = true
		}
	}
}

// applyEnvironmentOverrides lets secrets stay out of the file. Every secret
// also has a _FILE variant that names a file holding the value.
func applyEnvironmentOverrides(c *models.Config) error {
	strOverrides := []struct {
		name   string
		target *string
	}{
		{"SERVER_ADDR", &c.Server.Addr},
		{"DB_DRIVER", &c.Database.Driver},
		{"DB_PATH", &c.Database.Path},
		{"DB_DSN", &c.Database.DSN},
		{"DB_ENCRYPTION_KEY", &c.Database.EncryptionKey},
		{"REDIS_ADDR", &c.Redis.Addr},
		{"REDIS_PASSWORD", &c.Redis.Password},
		{"AMQP_URL", &c.AMQP.URL},
		{"AMQP_EXCHANGE", &c.AMQP.Exchange},
		{"OTLP_ENDPOINT", &c.Tracing.OTLPEndpoint},
		{"LOG_LEVEL", &c.LogLevel},
	}
	for _, o := range strOverrides {
		v, err := lookupEnv(o.name)
		if err != nil {
			return err
		}
		if v != "" {
			*o.target = v
		}
	}

	if v := os.Getenv(envPrefix + "TRACING_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return models.ConfigError{Message: fmt.Sprintf("%sTRACING_ENABLED: %v", envPrefix, err)}
		}
		c.Tracing.Enabled = enabled
	}

	// Per-inbox secrets: WAINGEST_INBOX_<ID>_API_KEY and _WEBHOOK_SECRET.
	for i := range c.Inboxes {
		prefix := fmt.Sprintf("INBOX_%d_", c.Inboxes[i].ID)
		for suffix, target := range map[string]*string{
			"API_KEY":        &c.Inboxes[i].APIKey,
			"WEBHOOK_SECRET": &c.Inboxes[i].WebhookSecret,
			"API_URL":        &c.Inboxes[i].APIURL,
		} {
			v, err := lookupEnv(prefix + suffix)
			if err != nil {
				return err
			}
			if v != "" {
				*target = v
			}
		}
	}
	return nil
}

// lookupEnv returns WAINGEST_<name>, or the trimmed contents of the file
// named by WAINGEST_<name>_FILE.
func lookupEnv(name string) (string, error) {
	if v := os.Getenv(envPrefix + name); v != "" {
		return v, nil
	}
	path := os.Getenv(envPrefix + name + "_FILE")
	if path == "" {
		return "", nil
	}
	if err := security.ValidateFilePath(path); err != nil {
		return "", models.ConfigError{Message: fmt.Sprintf("%s%s_FILE: %v", envPrefix, name, err)}
	}
	data, err := os.ReadFile(path) // #nosec G304 - Path validated above
	if err != nil {
		return "", models.ConfigError{Message: fmt.Sprintf("%s%s_FILE: %v", envPrefix, name, err)}
	}
	return strings.TrimSpace(string(data)), nil
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	isProduction := os.Getenv(envPrefix+"ENV") == "production"

	for _, inbox := range c.Inboxes {
		if isProduction {
			if len(inbox.WebhookSecret) < 32 {
				return models.ConfigError{Message: fmt.Sprintf(
					"inbox %d: webhook secret of at least 32 characters is required in production (set %sINBOX_%d_WEBHOOK_SECRET)",
					inbox.ID, envPrefix, inbox.ID)}
			}
		} else if inbox.WebhookSecret == "" {
			fmt.Fprintf(os.Stderr, "WARNING: inbox %d has no webhook secret; signatures will not be checked\n", inbox.ID)
		}
	}

	if isProduction && c.LogLevel == "debug" {
		return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
	}
	return nil
}
