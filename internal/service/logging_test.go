package service

import (
	"context"
	"testing"

	"github.com/mariovalmir/chatwoot/internal/models"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func TestIsVerboseLogging(t *testing.T) {
	tests := []struct {
		name     string
		ctx      context.Context
		expected bool
	}{
		{"verbose enabled", WithVerbose(context.Background(), true), true},
		{"verbose disabled", WithVerbose(context.Background(), false), false},
		{"no verbose in context", context.Background(), false},
		{"wrong type", context.WithValue(context.Background(), VerboseContextKey, "yes"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsVerboseLogging(tt.ctx))
		})
	}
}

func TestMaskingFollowsVerbose(t *testing.T) {
	jid := "5511999998888@s.whatsapp.net"
	id := "true_5511999998888@c.us_3EB0C9A1B2C3"

	quiet := context.Background()
	assert.Equal(t, "*********8888@s.whatsapp.net", maskJID(quiet, jid))
	assert.NotEqual(t, id, maskMessageID(quiet, id))
	assert.Contains(t, maskMessageID(quiet, id), "B2C3")

	loud := WithVerbose(context.Background(), true)
	assert.Equal(t, jid, maskJID(loud, jid))
	assert.Equal(t, id, maskMessageID(loud, id))
}

func TestLogEntryCarriesRequestFields(t *testing.T) {
	logger, hook := test.NewNullLogger()
	s := &Service{logger: logger}

	s.logEntry(&Request{
		Event: "messages.upsert",
		Inbox: &models.Inbox{ID: 9, Provider: models.ProviderEvolution},
	}).Info("hello")

	entry := hook.LastEntry()
	assert.Equal(t, "messages.upsert", entry.Data[LogFieldEvent])
	assert.Equal(t, "evolution", entry.Data[LogFieldProvider])
	assert.Equal(t, int64(9), entry.Data[LogFieldInbox])

	s.logEntry(nil).Info("bare")
	assert.Empty(t, hook.LastEntry().Data)
}
