package service

import (
	"context"

	"github.com/mariovalmir/chatwoot/internal/constants"
	apperrors "github.com/mariovalmir/chatwoot/internal/errors"
	"github.com/mariovalmir/chatwoot/internal/identity"
	"github.com/mariovalmir/chatwoot/internal/jid"
	"github.com/mariovalmir/chatwoot/internal/metrics"
	"github.com/mariovalmir/chatwoot/internal/models"
	"github.com/mariovalmir/chatwoot/internal/normalize"
	"github.com/mariovalmir/chatwoot/internal/payload"
	"github.com/mariovalmir/chatwoot/internal/status"

	"github.com/sirupsen/logrus"
)

// Upsert handles a message announcement. A message already known by its id
// only has its ids and status refreshed; an outgoing message sent through the
// API is bound to its stored copy; anything else is created. Outgoing
// announcements are serialized per inbox.
func (s *Service) Upsert(ctx context.Context, req *Request) Result {
	if err := requireInbox(req); err != nil {
		return failed("no inbox", err)
	}
	if normalize.Incoming(req.Data) {
		return s.upsert(ctx, req)
	}
	return s.withLock(ctx, req.Inbox.ID, func(ctx context.Context) Result {
		return s.upsert(ctx, req)
	})
}

func (s *Service) upsert(ctx context.Context, req *Request) Result {
	data := req.Data
	inbox := req.Inbox
	provider := string(inbox.Provider)
	r := s.resolver(inbox)

	chat := chatAddress(data)
	kindOf := chat
	if kindOf == "" {
		kindOf = r.ResolvePrimary(ctx, "", identity.Fallbacks(data)...)
	}
	if !jid.Processable(kindOf) {
		metrics.EventDropped(provider, "unsupported_chat")
		return skipped("unsupported chat " + string(jid.KindOf(kindOf)))
	}
	if chat == "" {
		chat = kindOf
	}

	ev := normalize.Event(models.EventCreated, data, s.now())
	if normalize.Ignored(ev.Content.Type, ev.Content.Text) {
		metrics.EventDropped(provider, "ignored_type")
		return skipped("ignored " + string(ev.Content.Type))
	}
	primary := ev.ExternalMessageID
	if primary == "" {
		metrics.EventDropped(provider, "missing_id")
		return skipped("missing message id")
	}

	entry := s.logEntry(req).WithFields(logrus.Fields{
		LogFieldMessageID: maskMessageID(ctx, primary),
		LogFieldChatID:    maskJID(ctx, chat),
		LogFieldDirection: ev.Direction,
	})

	existing, err := s.reconciler.Find(ctx, inbox.ID, primary, nil)
	if err != nil {
		return failed("find message", apperrors.NewDatabaseError("find message", err))
	}
	if existing != nil {
		metrics.DuplicateSuppressed(provider)
		s.rememberIDs(ctx, existing, data)
		s.applyUpsertStatus(ctx, req, existing)
		entry.Debug("Message already stored")
		return skipped("duplicate")
	}

	if !ev.Incoming() {
		sources := r.CandidateSourceIDs(ctx, chat, identity.Fallbacks(data)...)
		bound, err := s.reconciler.BindFallback(ctx, inbox.ID, sources, primary, inbox.LockToSingleConversation)
		if err != nil {
			return failed("bind fallback", apperrors.NewDatabaseError("bind fallback", err))
		}
		if bound != nil {
			s.rememberIDs(ctx, bound, data)
			s.applyUpsertStatus(ctx, req, bound)
			return processed("bound")
		}
	}

	if s.marker != nil {
		acquired, err := s.marker.TryAcquire(ctx, inbox.ID, primary)
		if err != nil {
			s.errLogger.LogWarn(apperrors.NewCollaboratorError("dedupe marker", err), "Dedupe marker unavailable", logrus.Fields{
				LogFieldMessageID: maskMessageID(ctx, primary),
			})
		} else if !acquired {
			metrics.DuplicateSuppressed(provider)
			entry.Debug("Message creation already in flight")
			return skipped("in flight")
		} else {
			defer func() {
				if err := s.marker.Release(ctx, inbox.ID, primary); err != nil {
					s.errLogger.LogWarn(apperrors.NewCollaboratorError("dedupe marker", err), "Failed to release dedupe marker")
				}
			}()
		}
	}

	r.CacheLIDIdentifiers(ctx, chat, data.Str("remoteJidAlt"), data.Str("key", "remoteJidAlt"),
		ev.ParticipantIdentifier, ev.ParticipantAltIdentifier)

	target, err := s.ensureContact(ctx, req, r, chat, ev.Incoming())
	if err != nil {
		return failed("contact", err)
	}
	if target == nil {
		entry.Warn("Contact could not be resolved")
		return skipped("contact unresolved")
	}
	conv, err := s.ensureConversation(ctx, inbox, target)
	if err != nil {
		return failed("conversation", err)
	}

	msg := s.buildMessage(ctx, r, inbox, conv, ev, chat)
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return failed("create message", apperrors.NewDatabaseError("create message", err))
	}
	s.rememberIDs(ctx, msg, data)
	s.addLabels(ctx, req, conv, chat)
	metrics.MessageCreated(provider, string(ev.Direction))

	s.syncAvatar(ctx, inbox, r, target.contact, target.contactInbox.SourceID, ProfilePictureURL(data))

	entry.WithFields(logrus.Fields{
		LogFieldMessageType: ev.Content.Type,
		"conversation_id":   conv.ID,
	}).Info("Message created")
	return processed("created")
}

func (s *Service) buildMessage(ctx context.Context, r *identity.Resolver, inbox *models.Inbox, conv *models.Conversation, ev *models.CanonicalMessageEvent, chat string) *models.Message {
	content := ev.Content.Text
	if jid.IsGroup(chat) && ev.Incoming() &&
		ev.Content.Type != models.ContentLocation && ev.Content.Type != models.ContentContacts {
		content = s.groupPrefix(ctx, r, ev) + content
	}

	msg := &models.Message{
		ConversationID:    conv.ID,
		InboxID:           inbox.ID,
		MessageType:       ev.Direction,
		Content:           content,
		ContentType:       string(models.ContentText),
		SourceID:          ev.ExternalMessageID,
		Status:            models.DeliveryStatusSent,
		ContentAttributes: contentAttributes(ev),
		CreatedAt:         s.now(),
	}
	msg.Attachments = s.attachments(ctx, ev, msg)
	return msg
}

// addLabels tags group conversations and those whose event names an origin.
func (s *Service) addLabels(ctx context.Context, req *Request, conv *models.Conversation, chat string) {
	var labels []string
	if jid.IsGroup(chat) && !conv.HasLabel(constants.GroupLabel) {
		labels = append(labels, constants.GroupLabel)
	}
	if origin := req.Origin(); origin != "" && !conv.HasLabel(origin) {
		labels = append(labels, origin)
	}
	if len(labels) == 0 {
		return
	}
	if err := s.store.AddConversationLabels(ctx, conv.ID, labels); err != nil {
		s.errLogger.LogWarn(apperrors.NewDatabaseError("add labels", err), "Failed to label conversation", logrus.Fields{
			"conversation_id": conv.ID,
		})
		return
	}
	conv.Labels = append(conv.Labels, labels...)
}

// rememberIDs indexes every id data references msg by. Failures only cost
// future lookups, so they are logged.
func (s *Service) rememberIDs(ctx context.Context, msg *models.Message, data payload.Payload) {
	if err := s.reconciler.Remember(ctx, msg, data); err != nil {
		s.errLogger.LogWarn(apperrors.NewDatabaseError("append id variants", err), "Failed to index message ids", logrus.Fields{
			LogFieldMessageID: maskMessageID(ctx, msg.SourceID),
		})
	}
}

// applyUpsertStatus moves an outgoing message to the status an announcement
// carries.
func (s *Service) applyUpsertStatus(ctx context.Context, req *Request, msg *models.Message) {
	if !msg.Outgoing() {
		return
	}
	to, ok := status.FromPayload(req.Data)
	if !ok {
		return
	}
	s.applyStatus(ctx, req, msg, to, false)
}

// applyStatus runs the transition to to. checked selects legality before
// side effects, the order acks use.
func (s *Service) applyStatus(ctx context.Context, req *Request, msg *models.Message, to models.DeliveryStatus, checked bool) bool {
	ts := statusTime(req, s.now())
	var (
		applied bool
		err     error
	)
	if checked {
		applied, err = s.machine.ApplyChecked(ctx, msg, to, ts)
	} else {
		applied, err = s.machine.Apply(ctx, msg, to, ts)
	}
	if err != nil {
		s.errLogger.LogWarn(err, "Failed to apply message status", logrus.Fields{
			LogFieldMessageID: maskMessageID(ctx, msg.SourceID),
			LogFieldStatus:    to,
		})
		return false
	}
	return applied
}

// chatAddress is the chat an event belongs to.
func chatAddress(data payload.Payload) string {
	return data.First(payload.P("key", "remoteJid"), payload.P("remoteJid"))
}
