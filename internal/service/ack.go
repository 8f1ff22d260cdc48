package service

import (
	"context"

	apperrors "github.com/mariovalmir/chatwoot/internal/errors"
	"github.com/mariovalmir/chatwoot/internal/jid"
	"github.com/mariovalmir/chatwoot/internal/models"
	"github.com/mariovalmir/chatwoot/internal/payload"
	"github.com/mariovalmir/chatwoot/internal/status"

	"github.com/sirupsen/logrus"
)

// Ack applies a WAHA delivery receipt to an outgoing message. Receipts
// respect the status order and read receipts from groups are ignored, since
// one member reading says nothing about the others.
func (s *Service) Ack(ctx context.Context, req *Request) Result {
	if err := requireInbox(req); err != nil {
		return failed("no inbox", err)
	}
	p := req.Data
	dataIDs := p.Strings("_data", "MessageIDs")

	id := p.First(payload.P("id"), payload.P("messageId"), payload.P("key", "id"))
	if id == "" && len(dataIDs) > 0 {
		id = dataIDs[0]
	}
	if id == "" {
		return skipped("missing message id")
	}

	msg, err := s.reconciler.Find(ctx, req.Inbox.ID, id, dataIDs)
	if err != nil {
		return failed("find message", apperrors.NewDatabaseError("find message", err))
	}
	if msg == nil {
		s.logEntry(req).WithField(LogFieldMessageID, maskMessageID(ctx, id)).Debug("Ack for unknown message")
		return skipped("message not found")
	}

	s.rememberIDs(ctx, msg, p)
	if storeParticipantMetadata(msg, p) {
		if err := s.store.UpdateMessageContent(ctx, msg); err != nil {
			s.errLogger.LogWarn(apperrors.NewDatabaseError("store participants", err), "Failed to store ack participants", logrus.Fields{
				LogFieldMessageID: maskMessageID(ctx, msg.SourceID),
			})
		}
	}

	to, ok := status.FromPayload(p)
	if !ok {
		return skipped("no status")
	}
	if !msg.Outgoing() {
		return skipped("incoming message")
	}
	if to == models.DeliveryStatusRead && s.groupAck(ctx, p, msg) {
		return skipped("group read receipt")
	}

	if !s.applyStatus(ctx, req, msg, to, true) {
		return skipped("status unchanged")
	}
	return processed("status " + string(to))
}

// groupAck reports whether the receipt belongs to a group chat, judging by
// the addresses it carries and by the contact of the message's conversation.
func (s *Service) groupAck(ctx context.Context, p payload.Payload, msg *models.Message) bool {
	for _, candidate := range []string{
		p.Str("from"),
		p.Str("remoteJid"),
		p.Str("remote_jid"),
		p.Str("chatId"),
		p.Str("chat_id"),
		p.Str("key", "remoteJid"),
		p.Str("key", "remoteJID"),
		p.Str("_data", "Chat"),
		p.Str("_data", "Info", "Chat"),
	} {
		if jid.IsGroup(candidate) {
			return true
		}
	}

	conv, err := s.store.GetConversation(ctx, msg.ConversationID)
	if err != nil || conv == nil {
		return false
	}
	ci, err := s.store.GetContactInbox(ctx, conv.ContactInboxID)
	if err != nil || ci == nil {
		return false
	}
	return jid.IsGroup(ci.SourceID)
}
