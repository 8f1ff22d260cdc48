package validation

import (
	"strings"
	"testing"

	"github.com/mariovalmir/chatwoot/internal/errors"
	"github.com/mariovalmir/chatwoot/internal/payload"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSessionName(t *testing.T) {
	tests := []struct {
		name    string
		session string
		wantErr bool
	}{
		{"simple", "default", false},
		{"evolution instance", "sales-br_01", false},
		{"dotted", "team.support", false},
		{"empty", "", true},
		{"slash", "a/b", true},
		{"space", "my session", true},
		{"too long", strings.Repeat("a", 65), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSessionName(tt.session)
			if tt.wantErr {
				assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateTimeout(t *testing.T) {
	assert.NoError(t, ValidateTimeout(10, "lookup timeout"))
	assert.Error(t, ValidateTimeout(0, "lookup timeout"))
	assert.Error(t, ValidateTimeout(3601, "lookup timeout"))
}

func TestValidateBodySize(t *testing.T) {
	assert.NoError(t, ValidateBodySize(-1, 1024))
	assert.NoError(t, ValidateBodySize(1024, 1024))
	assert.Error(t, ValidateBodySize(1025, 1024))
}

func TestEnvelopeValidator(t *testing.T) {
	v, err := NewEnvelopeValidator()
	require.NoError(t, err)

	tests := []struct {
		name     string
		envelope payload.Payload
		wantErr  bool
	}{
		{"evolution", payload.Payload{"event": "messages.upsert", "instance": "main", "data": map[string]any{"key": map[string]any{}}}, false},
		{"evolution batch", payload.Payload{"event": "MESSAGES_UPDATE", "data": []any{map[string]any{}}}, false},
		{"waha", payload.Payload{"event": "message.ack", "session": "default", "payload": map[string]any{"ack": 3}, "timestamp": 1714560000}, false},
		{"no data is routed and skipped later", payload.Payload{"event": "messages.upsert"}, false},
		{"missing event", payload.Payload{"data": map[string]any{}}, true},
		{"empty event", payload.Payload{"event": "", "data": map[string]any{}}, true},
		{"event not a string", payload.Payload{"event": 3}, true},
		{"scalar data", payload.Payload{"event": "messages.upsert", "data": "oops"}, true},
		{"nil body", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.envelope)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
