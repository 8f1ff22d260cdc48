package status

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/mariovalmir/chatwoot/internal/errors"
	"github.com/mariovalmir/chatwoot/internal/metrics"
	"github.com/mariovalmir/chatwoot/internal/models"
	"github.com/mariovalmir/chatwoot/internal/privacy"

	"github.com/sirupsen/logrus"
)

// Store is the persistence touched by status changes.
type Store interface {
	UpdateMessageStatus(ctx context.Context, messageID int64, status models.DeliveryStatus) (bool, error)
	GetConversation(ctx context.Context, conversationID int64) (*models.Conversation, error)
	SetContactLastSeen(ctx context.Context, conversationID int64, ts time.Time) error
	TouchContactActivity(ctx context.Context, contactID int64, ts time.Time) error
}

// Broadcaster announces read and delivered receipts for a conversation.
type Broadcaster interface {
	Enqueue(ctx context.Context, conversationID int64, ts time.Time, status models.DeliveryStatus) error
}

type Machine struct {
	store       Store
	broadcaster Broadcaster
	logger      *logrus.Logger
	errLogger   *apperrors.Logger
}

func NewMachine(store Store, broadcaster Broadcaster, logger *logrus.Logger) *Machine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Machine{
		store:       store,
		broadcaster: broadcaster,
		logger:      logger,
		errLogger:   apperrors.NewLogger(logger),
	}
}

// Apply runs the receipt side effects for to and then moves msg to it when
// the transition is legal. This is the order message upserts and updates use.
func (m *Machine) Apply(ctx context.Context, msg *models.Message, to models.DeliveryStatus, ts time.Time) (bool, error) {
	if msg == nil || !to.Valid() {
		return false, nil
	}
	if err := m.Effects(ctx, msg, to, ts); err != nil {
		return false, err
	}
	return m.Transition(ctx, msg, to)
}

// ApplyChecked checks legality first and skips the side effects of an
// illegal transition. Acks use this order.
func (m *Machine) ApplyChecked(ctx context.Context, msg *models.Message, to models.DeliveryStatus, ts time.Time) (bool, error) {
	if msg == nil || !to.Valid() {
		return false, nil
	}
	if !CanTransition(msg.Status, to) {
		m.rejected(msg, to)
		return false, nil
	}
	if err := m.Effects(ctx, msg, to, ts); err != nil {
		return false, err
	}
	return m.Transition(ctx, msg, to)
}

// Transition stores to on msg when legal. Illegal transitions log a warning
// and leave the message untouched. The store re-checks legality against the
// persisted state, which may have moved on since msg was loaded.
func (m *Machine) Transition(ctx context.Context, msg *models.Message, to models.DeliveryStatus) (bool, error) {
	if !CanTransition(msg.Status, to) {
		m.rejected(msg, to)
		return false, nil
	}
	updated, err := m.store.UpdateMessageStatus(ctx, msg.ID, to)
	if err != nil {
		return false, fmt.Errorf("failed to update message status: %w", err)
	}
	if !updated {
		metrics.StatusTransition(string(to), false)
		m.logger.WithFields(logrus.Fields{
			"message_id": privacy.MaskMessageID(msg.SourceID),
			"from":       msg.Status,
			"to":         to,
		}).Warn("Status already moved past the requested transition")
		return false, nil
	}
	msg.Status = to
	metrics.StatusTransition(string(to), true)
	return true, nil
}

// Effects records read receipts on the conversation, broadcasts read and
// delivered receipts and touches the contact's activity.
func (m *Machine) Effects(ctx context.Context, msg *models.Message, to models.DeliveryStatus, ts time.Time) error {
	if to != models.DeliveryStatusRead && to != models.DeliveryStatusDelivered {
		return nil
	}

	conv, err := m.store.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv == nil || conv.ContactID == 0 {
		return nil
	}
	if ts.IsZero() {
		ts = time.Now()
	}

	if to == models.DeliveryStatusRead {
		if err := m.store.SetContactLastSeen(ctx, conv.ID, ts); err != nil {
			return fmt.Errorf("failed to set contact last seen: %w", err)
		}
	}
	if m.broadcaster != nil {
		if err := m.broadcaster.Enqueue(ctx, conv.ID, ts, to); err != nil {
			m.errLogger.LogWarn(apperrors.NewCollaboratorError("status broadcast", err), "Status broadcast not enqueued", logrus.Fields{
				"conversation_id": conv.ID,
				"status":          to,
			})
		}
	}

	if err := m.store.TouchContactActivity(ctx, conv.ContactID, ts); err != nil {
		return fmt.Errorf("failed to touch contact activity: %w", err)
	}
	return nil
}

func (m *Machine) rejected(msg *models.Message, to models.DeliveryStatus) {
	metrics.StatusTransition(string(to), false)
	entry := m.logger.WithFields(logrus.Fields{
		"message_id": privacy.MaskMessageID(msg.SourceID),
		"from":       msg.Status,
		"to":         to,
	})
	if msg.Status == to {
		entry.Debug("Status already reached")
		return
	}
	entry.Warn("Status transition not allowed")
}
