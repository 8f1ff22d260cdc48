package service

import (
	"context"
	"time"

	"github.com/mariovalmir/chatwoot/internal/constants"
	apperrors "github.com/mariovalmir/chatwoot/internal/errors"
	"github.com/mariovalmir/chatwoot/internal/identity"
	"github.com/mariovalmir/chatwoot/internal/metrics"
	"github.com/mariovalmir/chatwoot/internal/models"
	"github.com/mariovalmir/chatwoot/internal/normalize"
	"github.com/mariovalmir/chatwoot/internal/payload"
	"github.com/mariovalmir/chatwoot/internal/reconcile"
	"github.com/mariovalmir/chatwoot/internal/status"

	"github.com/sirupsen/logrus"
)

var editedTextPaths = [][]string{
	{"conversation"},
	{"extendedTextMessage", "text"},
	{"imageMessage", "caption"},
	{"videoMessage", "caption"},
	{"documentMessage", "caption"},
}

// Update handles a status change or edit of a stored message. Outgoing
// updates for messages that are not stored yet are bound to the latest
// unsourced outgoing message of the chat.
func (s *Service) Update(ctx context.Context, req *Request) Result {
	if err := requireInbox(req); err != nil {
		return failed("no inbox", err)
	}
	data := req.Data
	inbox := req.Inbox
	primary := reconcile.PrimaryID(data)

	entry := s.logEntry(req).WithField(LogFieldMessageID, maskMessageID(ctx, primary))

	msg, err := s.reconciler.Find(ctx, inbox.ID, primary, reconcile.LookupIDs(data, primary))
	if err != nil {
		return failed("find message", apperrors.NewDatabaseError("find message", err))
	}
	if msg == nil && !normalize.Incoming(data) {
		r := s.resolver(inbox)
		sources := r.CandidateSourceIDs(ctx, chatAddress(data), identity.Fallbacks(data)...)
		msg, err = s.reconciler.BindFallback(ctx, inbox.ID, sources, primary, inbox.LockToSingleConversation)
		if err != nil {
			return failed("bind fallback", apperrors.NewDatabaseError("bind fallback", err))
		}
	}
	if msg == nil {
		metrics.EventDropped(string(inbox.Provider), "store_miss")
		s.errLogger.LogWarn(apperrors.NewStoreMissError(primary), "Message to update not found", logrus.Fields{
			LogFieldEvent:     req.Event,
			LogFieldMessageID: maskMessageID(ctx, primary),
		})
		return skipped("message not found")
	}

	s.rememberIDs(ctx, msg, data)

	if to, ok := status.FromPayload(data); ok {
		s.applyStatus(ctx, req, msg, to, false)
	}

	if data.Present("editedMessage") || data.Present("message") {
		edited, err := s.applyEdit(ctx, msg, data)
		if err != nil {
			return failed("edit", err)
		}
		if edited {
			entry.Info("Message edited")
		}
	}
	return processed("updated")
}

// applyEdit rewrites msg with the edited text data carries. The first
// original content is kept across repeated edits.
func (s *Service) applyEdit(ctx context.Context, msg *models.Message, data payload.Payload) (bool, error) {
	text := editedContent(data)
	if text == "" {
		return false, nil
	}
	content := constants.EditedMarker + "\n" + text
	if msg.Content == content {
		return false, nil
	}

	if payload.String(msg.Attr("original_content")) == "" {
		msg.SetAttr("original_content", msg.Content)
	}
	msg.SetAttr("edited", true)
	msg.SetAttr("edit_timestamp", s.now().Unix())
	msg.Content = content

	if err := s.store.UpdateMessageContent(ctx, msg); err != nil {
		return false, apperrors.NewDatabaseError("update message content", err)
	}
	return true, nil
}

// editedContent extracts the new text of an edit from editedMessage or
// message, looking through the protocol wrapper gateways nest it in.
func editedContent(data payload.Payload) string {
	block := data.Map("editedMessage")
	if block == nil {
		block = data.Map("message")
	}
	if block == nil {
		return ""
	}
	for _, candidate := range []payload.Payload{
		block,
		block.Map("editedMessage"),
		block.Map("editedMessage", "message", "protocolMessage", "editedMessage"),
		block.Map("protocolMessage", "editedMessage"),
	} {
		if candidate == nil {
			continue
		}
		for _, path := range editedTextPaths {
			if v := candidate.Str(path...); v != "" {
				return v
			}
		}
	}
	return ""
}

// statusTime is when a status change happened: the event's timestamp, else
// the delivery's date_time, else now.
func statusTime(req *Request, now time.Time) time.Time {
	var raw any
	for _, v := range []any{req.Data.Get("timestamp"), req.Data.Get("_data", "Timestamp"), req.Envelope.Get("date_time")} {
		if payload.Present(v) {
			raw = v
			break
		}
	}
	if raw == nil {
		return now
	}
	return normalize.Time(raw, now)
}
