package whatsapp

import (
	"context"
	"errors"
	"testing"

	"github.com/mariovalmir/chatwoot/internal/models"
	"github.com/mariovalmir/chatwoot/internal/payload"
	"github.com/mariovalmir/chatwoot/internal/service"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	names []string
	reqs  []*service.Request
}

func (r *recordingRunner) Run(ctx context.Context, name string, h service.HandlerFunc, req *service.Request) service.Result {
	r.names = append(r.names, name)
	r.reqs = append(r.reqs, req)
	return h(ctx, req)
}

var allHandlers = []string{
	service.HandlerUpsert, service.HandlerUpdate, service.HandlerDelete, service.HandlerAck,
	service.HandlerContacts, service.HandlerChats, service.HandlerGroups, service.HandlerConnection,
	service.HandlerQRCode, service.HandlerAny, service.HandlerMessage, service.HandlerReaction,
	service.HandlerEdited, service.HandlerRevoked,
}

func newTestRouter() (*WebhookRouter, *recordingRunner, *test.Hook) {
	logger, hook := test.NewNullLogger()
	runner := &recordingRunner{}
	r := NewWebhookRouter(runner, logger)
	for _, name := range allHandlers {
		r.RegisterHandler(name, func(_ context.Context, req *service.Request) service.Result {
			if req.Data.Str("fail") != "" {
				return service.Result{Outcome: service.OutcomeFailed, Reason: "boom", Err: errors.New("boom")}
			}
			return service.Result{Outcome: service.OutcomeProcessed, Reason: "ok"}
		})
	}
	return r, runner, hook
}

func TestNormalizeEventName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"MESSAGES_UPSERT", "messages.upsert"},
		{"messages.upsert", "messages.upsert"},
		{" Connection.Update ", "connection.update"},
		{"SEND_MESSAGE", "send.message"},
		{"send.message_update", "send.message_update"},
		{"message", "message"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeEventName(tt.in))
		})
	}
}

func TestWebhookRouter_Routes(t *testing.T) {
	r, _, _ := newTestRouter()

	tests := []struct {
		provider models.Provider
		event    string
		want     string
	}{
		{models.ProviderEvolution, "messages.upsert", service.HandlerUpsert},
		{models.ProviderEvolution, "SEND_MESSAGE", service.HandlerUpsert},
		{models.ProviderEvolution, "send.message_update", service.HandlerUpdate},
		{models.ProviderEvolution, "send.message.update", service.HandlerUpdate},
		{models.ProviderEvolution, "messages.edited", service.HandlerUpdate},
		{models.ProviderEvolution, "MESSAGES_DELETE", service.HandlerDelete},
		{models.ProviderEvolution, "chats.upsert", service.HandlerChats},
		{models.ProviderEvolution, "groups.upsert", service.HandlerGroups},
		{models.ProviderEvolution, "QRCODE_UPDATED", service.HandlerQRCode},
		{models.ProviderEvolution, "connection.update", service.HandlerConnection},
		{models.ProviderWAHA, "messages.edited", service.HandlerEdited},
		{models.ProviderWAHA, "messages.upsert", service.HandlerUpsert},
		{models.ProviderWAHA, "session.status", service.HandlerConnection},
		{models.ProviderWAHA, "message.any", service.HandlerAny},
		{models.ProviderWAHA, "message", service.HandlerMessage},
		{models.ProviderWAHA, "message.reaction", service.HandlerReaction},
		{models.ProviderWAHA, "message.edited", service.HandlerEdited},
		{models.ProviderWAHA, "message.revoked", service.HandlerRevoked},
		{models.ProviderWAHA, "message.ack", service.HandlerAck},
	}
	for _, tt := range tests {
		t.Run(string(tt.provider)+"/"+tt.event, func(t *testing.T) {
			name, ok := r.Route(tt.provider, tt.event)
			require.True(t, ok)
			assert.Equal(t, tt.want, name)
		})
	}

	_, ok := r.Route(models.ProviderEvolution, "message.ack")
	assert.False(t, ok, "WAHA-only events are not routed for Evolution")
	_, ok = r.Route(models.ProviderWAHA, "presence.update")
	assert.False(t, ok)
}

func TestWebhookRouter_UnregisteredHandlerIsNotRouted(t *testing.T) {
	r := NewWebhookRouter(&recordingRunner{}, nil)
	_, ok := r.Route(models.ProviderEvolution, "messages.upsert")
	assert.False(t, ok)
}

func TestWebhookRouter_RegisterAlias(t *testing.T) {
	r, _, _ := newTestRouter()
	r.RegisterAlias(models.ProviderEvolution, "MESSAGES_SET", service.HandlerUpsert)

	name, ok := r.Route(models.ProviderEvolution, "messages.set")
	require.True(t, ok)
	assert.Equal(t, service.HandlerUpsert, name)
}

func TestWebhookRouter_DispatchSingleObject(t *testing.T) {
	r, runner, _ := newTestRouter()
	inbox := &models.Inbox{ID: 1, Provider: models.ProviderEvolution}
	envelope := payload.Payload{
		"event":    "MESSAGES_UPSERT",
		"instance": "main",
		"data":     map[string]any{"key": map[string]any{"id": "A1"}},
	}

	report := r.Dispatch(context.Background(), inbox, envelope)

	assert.Equal(t, "messages.upsert", report.Event)
	assert.Equal(t, service.HandlerUpsert, report.Handler)
	assert.Equal(t, 1, report.Processed())
	require.Len(t, runner.reqs, 1)
	req := runner.reqs[0]
	assert.Equal(t, "messages.upsert", req.Event)
	assert.Equal(t, "A1", req.Data.Str("key", "id"))
	assert.Equal(t, "main", req.Envelope.Str("instance"))
	assert.Same(t, inbox, req.Inbox)
}

func TestWebhookRouter_DispatchBatchKeepsGoingAfterFailure(t *testing.T) {
	r, runner, _ := newTestRouter()
	inbox := &models.Inbox{ID: 1, Provider: models.ProviderEvolution}
	envelope := payload.Payload{
		"event": "messages.update",
		"data": []any{
			map[string]any{"keyId": "1"},
			map[string]any{"keyId": "2", "fail": "yes"},
			"not an object",
			map[string]any{"keyId": "3"},
		},
	}

	report := r.Dispatch(context.Background(), inbox, envelope)

	assert.Equal(t, 2, report.Processed())
	assert.Equal(t, 1, report.Failed())
	assert.Equal(t, 1, report.Skipped())
	require.Len(t, runner.reqs, 3)
	assert.Equal(t, []int{0, 1, 3}, []int{runner.reqs[0].Index, runner.reqs[1].Index, runner.reqs[2].Index})
	assert.Equal(t, "3", runner.reqs[2].Data.Str("keyId"))
}

func TestWebhookRouter_DispatchWAHAPayload(t *testing.T) {
	r, runner, _ := newTestRouter()
	inbox := &models.Inbox{ID: 2, Provider: models.ProviderWAHA}
	envelope := payload.Payload{
		"event":   "message.ack",
		"session": "default",
		"payload": map[string]any{"id": "true_5511@c.us_X", "ack": 3},
	}

	report := r.Dispatch(context.Background(), inbox, envelope)

	assert.Equal(t, 1, report.Processed())
	assert.Equal(t, []string{service.HandlerAck}, runner.names)
	assert.Equal(t, "true_5511@c.us_X", runner.reqs[0].Data.Str("id"))
}

func TestWebhookRouter_UnknownEventIsDropped(t *testing.T) {
	r, runner, hook := newTestRouter()
	inbox := &models.Inbox{ID: 1, Provider: models.ProviderEvolution}

	report := r.Dispatch(context.Background(), inbox, payload.Payload{"event": "presence.update", "data": map[string]any{}})

	assert.Empty(t, runner.reqs)
	assert.Equal(t, 1, report.Skipped())
	assert.Equal(t, "unknown event", report.Results[0].Reason)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "presence.update", entry.Data[service.LogFieldEvent])
}

func TestWebhookRouter_MissingDataIsSkipped(t *testing.T) {
	r, runner, _ := newTestRouter()
	inbox := &models.Inbox{ID: 1, Provider: models.ProviderEvolution}

	report := r.Dispatch(context.Background(), inbox, payload.Payload{"event": "messages.upsert"})

	assert.Empty(t, runner.reqs)
	assert.Equal(t, "missing data", report.Results[0].Reason)
}
