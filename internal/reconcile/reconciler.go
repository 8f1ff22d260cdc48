package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/mariovalmir/chatwoot/internal/constants"
	"github.com/mariovalmir/chatwoot/internal/jid"
	"github.com/mariovalmir/chatwoot/internal/models"
	"github.com/mariovalmir/chatwoot/internal/payload"
	"github.com/mariovalmir/chatwoot/internal/privacy"

	"github.com/sirupsen/logrus"
)

// Store is the persistence the reconciler probes and updates. Finders return
// (nil, nil) when nothing matches.
type Store interface {
	FindMessageBySourceID(ctx context.Context, inboxID int64, sourceID string) (*models.Message, error)
	FindMessageByWAHAID(ctx context.Context, inboxID int64, wahaID string) (*models.Message, error)
	FindMessageByExternalIDContains(ctx context.Context, inboxID int64, externalID string) (*models.Message, error)
	AppendExternalIDVariants(ctx context.Context, messageID int64, ids []string) error
	SetMessageSourceID(ctx context.Context, messageID int64, sourceID string) error
	FindContactInboxBySourceIDs(ctx context.Context, inboxID int64, sourceIDs []string) (*models.ContactInbox, error)
	LastConversation(ctx context.Context, contactInboxID int64, includeResolved bool) (*models.Conversation, error)
	RecentOutgoingMessages(ctx context.Context, conversationID int64, limit int) ([]*models.Message, error)
}

type Reconciler struct {
	store  Store
	logger *logrus.Logger
	now    func() time.Time
}

func New(store Store, logger *logrus.Logger) *Reconciler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Reconciler{store: store, logger: logger, now: time.Now}
}

// Find locates the message known by primary or any of lookupIDs. Each
// candidate is probed by exact source id, then by the provider id, then
// against the variant index; the first hit wins.
func (r *Reconciler) Find(ctx context.Context, inboxID int64, primary string, lookupIDs []string) (*models.Message, error) {
	candidates := jid.Unique(append([]string{primary}, lookupIDs...))

	probes := []func(context.Context, int64, string) (*models.Message, error){
		r.store.FindMessageBySourceID,
		r.store.FindMessageByWAHAID,
		r.store.FindMessageByExternalIDContains,
	}

	for _, candidate := range candidates {
		for _, probe := range probes {
			msg, err := probe(ctx, inboxID, candidate)
			if err != nil {
				return nil, fmt.Errorf("failed to probe message %s: %w", privacy.MaskMessageID(candidate), err)
			}
			if msg != nil {
				return msg, nil
			}
		}
	}
	return nil, nil
}

// Remember appends every id p can be referenced by to msg's variant index.
// The index only grows.
func (r *Reconciler) Remember(ctx context.Context, msg *models.Message, p payload.Payload) error {
	if msg == nil {
		return nil
	}
	return r.RememberIDs(ctx, msg, ExpandMessageIDs(p))
}

// RememberIDs appends ids to msg's variant index and records the first one as
// the provider id when the message has none yet.
func (r *Reconciler) RememberIDs(ctx context.Context, msg *models.Message, ids []string) error {
	ids = jid.Unique(ids)
	if msg == nil || len(ids) == 0 {
		return nil
	}
	if err := r.store.AppendExternalIDVariants(ctx, msg.ID, ids); err != nil {
		return fmt.Errorf("failed to append id variants for message %d: %w", msg.ID, err)
	}
	if msg.WAHAMessageID == "" {
		msg.WAHAMessageID = ids[0]
	}
	return nil
}

// BindFallback attaches externalID to the newest outgoing message of the
// chat that has no source id yet and was created within the bind window.
// Outgoing messages sent through the API can be reported by the gateway
// before the send call returned their id. Returns nil when no candidate
// qualifies.
func (r *Reconciler) BindFallback(ctx context.Context, inboxID int64, sourceIDs []string, externalID string, lockToSingle bool) (*models.Message, error) {
	if externalID == "" || len(sourceIDs) == 0 {
		return nil, nil
	}

	ci, err := r.store.FindContactInboxBySourceIDs(ctx, inboxID, sourceIDs)
	if err != nil || ci == nil {
		return nil, err
	}

	conv, err := r.store.LastConversation(ctx, ci.ID, lockToSingle)
	if err != nil || conv == nil {
		return nil, err
	}

	recent, err := r.store.RecentOutgoingMessages(ctx, conv.ID, constants.FallbackBindCandidates)
	if err != nil {
		return nil, err
	}

	cutoff := r.now().Add(-constants.FallbackBindWindow)
	for _, msg := range recent {
		if msg.SourceID != "" || !msg.CreatedAt.After(cutoff) {
			continue
		}
		if err := r.store.SetMessageSourceID(ctx, msg.ID, externalID); err != nil {
			return nil, fmt.Errorf("failed to bind source id: %w", err)
		}
		msg.SourceID = externalID

		r.logger.WithFields(logrus.Fields{
			"inbox_id":        inboxID,
			"conversation_id": conv.ID,
			"message_id":      privacy.MaskMessageID(externalID),
		}).Info("Bound external id to latest unsourced outgoing message")
		return msg, nil
	}
	return nil, nil
}
