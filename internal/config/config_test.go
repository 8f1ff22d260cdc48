package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/mariovalmir/chatwoot/internal/constants"
	"github.com/mariovalmir/chatwoot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validJSON = `{
	"server": {"addr": ":9090"},
	"database": {"path": "data.db"},
	"inboxes": [
		{"id": 1, "provider": "evolution", "session": "main", "api_url": "http://evo:8080"},
		{"id": 2, "provider": "WAHA", "session": "default", "api_url": "http://waha:3000"}
	]
}`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig_JSONDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "config.json", validJSON))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, constants.DefaultServerReadTimeoutSec, cfg.Server.ReadTimeoutSec)
	assert.Equal(t, int64(constants.DefaultMaxWebhookBodyBytes), cfg.Server.MaxBodyBytes)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "data.db", cfg.Database.Path)
	assert.Equal(t, constants.DefaultAMQPExchange, cfg.AMQP.Exchange)
	assert.Equal(t, constants.DefaultProviderTimeoutSec, cfg.Lookup.TimeoutSec)
	assert.Equal(t, "info", cfg.LogLevel)

	require.Len(t, cfg.Inboxes, 2)
	assert.Equal(t, models.ProviderWAHA, cfg.Inboxes[1].Provider)
	assert.Equal(t, "waha-2", cfg.Inboxes[1].Name)

	inbox, ok := cfg.InboxByID(1)
	require.True(t, ok)
	assert.Equal(t, "main", inbox.Session)
}

func TestLoadConfig_YAML(t *testing.T) {
	content := `
log_level: debug
deleted_show_original: true
database:
  driver: postgres
  dsn: postgres://u:p@db/waingest
inboxes:
  - id: 7
    name: Sales
    provider: waha
    session: sales
    lock_to_single_conversation: true
`
	cfg, err := LoadConfig(writeConfig(t, "config.yaml", content))
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Empty(t, cfg.Database.Path)
	require.Len(t, cfg.Inboxes, 1)
	assert.Equal(t, "Sales", cfg.Inboxes[0].Name)
	assert.True(t, cfg.Inboxes[0].LockToSingleConversation)
	assert.True(t, cfg.Inboxes[0].ShowDeletedOriginal)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"no inboxes", `{"inboxes": []}`, "at least one inbox"},
		{"bad provider", `{"inboxes": [{"id": 1, "provider": "telegram", "session": "a"}]}`, "unknown provider"},
		{"bad session", `{"inboxes": [{"id": 1, "provider": "waha", "session": "a/b"}]}`, "session name"},
		{"duplicate id", `{"inboxes": [{"id": 1, "provider": "waha", "session": "a"}, {"id": 1, "provider": "waha", "session": "b"}]}`, "duplicate inbox id"},
		{"duplicate session", `{"inboxes": [{"id": 1, "provider": "waha", "session": "a"}, {"id": 2, "provider": "waha", "session": "a"}]}`, "already used"},
		{"zero id", `{"inboxes": [{"id": 0, "provider": "waha", "session": "a"}]}`, "id must be positive"},
		{"postgres without dsn", `{"database": {"driver": "postgres"}, "inboxes": [{"id": 1, "provider": "waha", "session": "a"}]}`, "dsn"},
		{"unknown driver", `{"database": {"driver": "mysql"}, "inboxes": [{"id": 1, "provider": "waha", "session": "a"}]}`, "unsupported database driver"},
		{"short key", `{"database": {"encryption_key": "short"}, "inboxes": [{"id": 1, "provider": "waha", "session": "a"}]}`, "encryption_key"},
		{"timeout too large", `{"lookup": {"timeout_sec": 7200}, "inboxes": [{"id": 1, "provider": "waha", "session": "a"}]}`, "lookup.timeout_sec"},
		{"sample rate", `{"tracing": {"sample_rate": 2}, "inboxes": [{"id": 1, "provider": "waha", "session": "a"}]}`, "sample_rate"},
		{"unknown feature", `{"features": {"teleport": true}, "inboxes": [{"id": 1, "provider": "waha", "session": "a"}]}`, "feature flag"},
		{"malformed", `{"inboxes": [`, "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, "config.json", tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfig_TooManyInboxes(t *testing.T) {
	var b strings.Builder
	b.WriteString(`{"inboxes": [`)
	for i := 1; i <= constants.MaxInboxCount+1; i++ {
		if i > 1 {
			b.WriteString(",")
		}
		b.WriteString(`{"id": ` + strconv.Itoa(i) + `, "provider": "waha", "session": "s` + strconv.Itoa(i) + `"}`)
	}
	b.WriteString(`]}`)

	_, err := LoadConfig(writeConfig(t, "config.json", b.String()))
	assert.ErrorIs(t, err, ErrTooManyInboxes)
}

func TestLoadConfig_PathValidation(t *testing.T) {
	_, err := LoadConfig("../../etc/passwd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config path")

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	secretFile := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(secretFile, []byte("from-file-secret\n"), 0600))

	t.Setenv("WAINGEST_SERVER_ADDR", ":7000")
	t.Setenv("WAINGEST_REDIS_ADDR", "redis:6379")
	t.Setenv("WAINGEST_AMQP_URL", "amqp://guest:guest@mq:5672/")
	t.Setenv("WAINGEST_TRACING_ENABLED", "true")
	t.Setenv("WAINGEST_OTLP_ENDPOINT", "http://collector:4318")
	t.Setenv("WAINGEST_INBOX_2_API_KEY", "waha-key")
	t.Setenv("WAINGEST_INBOX_1_WEBHOOK_SECRET_FILE", secretFile)

	cfg, err := LoadConfig(writeConfig(t, "config.json", validJSON))
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "amqp://guest:guest@mq:5672/", cfg.AMQP.URL)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "http://collector:4318", cfg.Tracing.OTLPEndpoint)
	assert.Equal(t, "waha-key", cfg.Inboxes[1].APIKey)
	assert.Equal(t, "from-file-secret", cfg.Inboxes[0].WebhookSecret)
}

func TestLoadConfig_BadEnvironment(t *testing.T) {
	t.Run("tracing flag", func(t *testing.T) {
		t.Setenv("WAINGEST_TRACING_ENABLED", "maybe")
		_, err := LoadConfig(writeConfig(t, "config.json", validJSON))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "TRACING_ENABLED")
	})

	t.Run("missing secret file", func(t *testing.T) {
		t.Setenv("WAINGEST_DB_ENCRYPTION_KEY_FILE", filepath.Join(t.TempDir(), "nope"))
		_, err := LoadConfig(writeConfig(t, "config.json", validJSON))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DB_ENCRYPTION_KEY_FILE")
	})
}

func TestValidateSecurity_Production(t *testing.T) {
	t.Setenv("WAINGEST_ENV", "production")

	_, err := LoadConfig(writeConfig(t, "config.json", validJSON))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WAINGEST_INBOX_1_WEBHOOK_SECRET")

	strong := strings.Repeat("s", 32)
	t.Setenv("WAINGEST_INBOX_1_WEBHOOK_SECRET", strong)
	t.Setenv("WAINGEST_INBOX_2_WEBHOOK_SECRET", strong)
	_, err = LoadConfig(writeConfig(t, "config.json", validJSON))
	require.NoError(t, err)

	t.Setenv("WAINGEST_LOG_LEVEL", "debug")
	_, err = LoadConfig(writeConfig(t, "config.json", validJSON))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "debug logging")
}
