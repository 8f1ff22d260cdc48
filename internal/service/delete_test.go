package service

import (
	"context"
	"testing"

	"github.com/mariovalmir/chatwoot/internal/constants"
	"github.com/mariovalmir/chatwoot/internal/models"
	"github.com/mariovalmir/chatwoot/internal/payload"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deleteReq(inbox *models.Inbox, data payload.Payload) *Request {
	return &Request{Inbox: inbox, Event: "messages.delete", Data: data, Envelope: payload.Payload{"data": map[string]any(data)}}
}

func TestDelete_ReplacesContentAndDropsAttachments(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	inbox := evolutionInbox()
	msg := seedMessage(t, h, inbox, "D1", "5511999998888@s.whatsapp.net", "secret", false)
	msg.Attachments = []models.Attachment{{FileType: models.FileTypeImage, ExternalURL: "https://cdn.example/x.jpg"}}

	res := h.svc.Delete(ctx, deleteReq(inbox, payload.Payload{"key": map[string]any{"id": "D1", "remoteJid": "5511999998888@s.whatsapp.net"}}))
	require.Equal(t, OutcomeProcessed, res.Outcome, res.Reason)

	assert.Equal(t, constants.DeletedMarker, msg.Content)
	assert.Equal(t, string(models.ContentText), msg.ContentType)
	assert.Equal(t, true, msg.Attr("deleted"))
	assert.Empty(t, msg.Attachments)
}

func TestDelete_TwiceIsNoOp(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	inbox := evolutionInbox()
	inbox.ShowDeletedOriginal = true
	msg := seedMessage(t, h, inbox, "D2", "5511999998888@s.whatsapp.net", "oops", false)

	data := payload.Payload{"key": map[string]any{"id": "D2"}}
	require.Equal(t, OutcomeProcessed, h.svc.Delete(ctx, deleteReq(inbox, data)).Outcome)
	assert.Equal(t, constants.DeletedMarker+"\noops", msg.Content)

	res := h.svc.Delete(ctx, deleteReq(inbox, data.Clone()))
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Equal(t, "already deleted", res.Reason)
	assert.Equal(t, constants.DeletedMarker+"\noops", msg.Content)
}

func TestDelete_ByCompositeID(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	inbox := wahaInbox()
	msg := seedMessage(t, h, inbox, "3EB0C9", "5511999998888@s.whatsapp.net", "bye", true)

	res := h.svc.Delete(ctx, deleteReq(inbox, payload.Payload{"id": "true_5511999998888@c.us_3EB0C9"}))
	require.Equal(t, OutcomeProcessed, res.Outcome, res.Reason)
	assert.Equal(t, constants.DeletedMarker, msg.Content)
}

func TestDelete_UnknownMessageIsSkipped(t *testing.T) {
	h := newHarness()
	res := h.svc.Delete(context.Background(), deleteReq(evolutionInbox(), payload.Payload{"key": map[string]any{"id": "GONE"}}))
	assert.Equal(t, OutcomeSkipped, res.Outcome)
}
