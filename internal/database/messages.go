package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/mariovalmir/chatwoot/internal/errors"
	"github.com/mariovalmir/chatwoot/internal/models"
	"github.com/mariovalmir/chatwoot/internal/status"
)

func (d *Database) FindMessageBySourceID(ctx context.Context, inboxID int64, sourceID string) (*models.Message, error) {
	if sourceID == "" {
		return nil, nil
	}
	return d.findMessage(ctx, "find message by source id",
		SelectMessageQuery+` WHERE m.inbox_id = ? AND m.source_id = ? ORDER BY m.id LIMIT 1`, inboxID, sourceID)
}

func (d *Database) FindMessageByWAHAID(ctx context.Context, inboxID int64, wahaID string) (*models.Message, error) {
	if wahaID == "" {
		return nil, nil
	}
	return d.findMessage(ctx, "find message by waha id",
		SelectMessageQuery+` WHERE m.inbox_id = ? AND m.waha_message_id = ? ORDER BY m.id LIMIT 1`, inboxID, wahaID)
}

// FindMessageByExternalIDContains matches externalID against the variant
// ids recorded for each message of the inbox.
func (d *Database) FindMessageByExternalIDContains(ctx context.Context, inboxID int64, externalID string) (*models.Message, error) {
	if externalID == "" {
		return nil, nil
	}
	return d.findMessage(ctx, "find message by external id",
		SelectMessageQuery+` JOIN message_external_ids e ON e.message_id = m.id
		WHERE m.inbox_id = ? AND e.external_id = ? ORDER BY m.id LIMIT 1`, inboxID, externalID)
}

func (d *Database) findMessage(ctx context.Context, operation, query string, args ...any) (*models.Message, error) {
	msg, err := scanMessage(d.db.QueryRowContext(ctx, d.rebind(query), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError(operation, err)
	}
	if msg.Attachments, err = d.attachments(ctx, msg.ID); err != nil {
		return nil, apperrors.NewDatabaseError(operation, err)
	}
	return msg, nil
}

// CreateMessage stores msg with its attachments and fills in their ids.
func (d *Database) CreateMessage(ctx context.Context, msg *models.Message) error {
	attrs, err := encodeJSON(msg.ContentAttributes)
	if err != nil {
		return fmt.Errorf("failed to encode content attributes: %w", err)
	}
	if msg.Status == models.DeliveryStatusUnknown {
		msg.Status = models.DeliveryStatusSent
	}
	now := time.Now().UTC()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.UpdatedAt = now

	return d.withRetry(ctx, "create message", func() error {
		return d.inTx(ctx, func(tx *sql.Tx) error {
			id, err := insertID(ctx, tx, d.rebind(InsertMessageQuery),
				msg.ConversationID, msg.InboxID, string(msg.MessageType), msg.Content, msg.ContentType,
				msg.SourceID, msg.WAHAMessageID, string(msg.Status), attrs, msg.CreatedAt, msg.UpdatedAt)
			if err != nil {
				return err
			}
			ids := make([]int64, len(msg.Attachments))
			for i, a := range msg.Attachments {
				meta, err := encodeJSON(a.Meta)
				if err != nil {
					return fmt.Errorf("failed to encode attachment meta: %w", err)
				}
				ids[i], err = insertID(ctx, tx, d.rebind(InsertAttachmentQuery),
					id, a.FileType, a.ExternalURL, nullFloat(a.CoordinatesLat), nullFloat(a.CoordinatesLong), a.FallbackTitle, meta)
				if err != nil {
					return err
				}
			}
			msg.ID = id
			for i := range msg.Attachments {
				msg.Attachments[i].ID = ids[i]
				msg.Attachments[i].MessageID = id
			}
			return nil
		})
	})
}

// UpdateMessageStatus moves a message to status only while the stored state
// still allows it. It reports false when the row was left untouched, so a
// stale reader can never move a message backwards.
func (d *Database) UpdateMessageStatus(ctx context.Context, messageID int64, to models.DeliveryStatus) (bool, error) {
	args := []any{string(to), time.Now().UTC(), messageID}
	var blocked []string
	for _, from := range allStatuses {
		if !status.CanTransition(from, to) {
			blocked = append(blocked, "?")
			args = append(args, string(from))
		}
	}
	query := d.rebind(fmt.Sprintf(UpdateMessageStatusQuery, strings.Join(blocked, ", ")))

	var affected int64
	err := d.withRetry(ctx, "update message status", func() error {
		res, err := d.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

var allStatuses = []models.DeliveryStatus{
	models.DeliveryStatusSent,
	models.DeliveryStatusDelivered,
	models.DeliveryStatusRead,
	models.DeliveryStatusFailed,
}

// UpdateMessageContent rewrites the body, type and attributes of msg.
func (d *Database) UpdateMessageContent(ctx context.Context, msg *models.Message) error {
	attrs, err := encodeJSON(msg.ContentAttributes)
	if err != nil {
		return fmt.Errorf("failed to encode content attributes: %w", err)
	}
	return d.exec(ctx, "update message content", UpdateMessageContentQuery,
		msg.Content, msg.ContentType, attrs, time.Now().UTC(), msg.ID)
}

// AppendExternalIDVariants records additional ids a message is known by.
// The first id also becomes the provider message id when none is set.
func (d *Database) AppendExternalIDVariants(ctx context.Context, messageID int64, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	insert := d.rebind(InsertExternalIDQuery)
	return d.withRetry(ctx, "append external ids", func() error {
		return d.inTx(ctx, func(tx *sql.Tx) error {
			for _, id := range ids {
				if id == "" {
					continue
				}
				if _, err := tx.ExecContext(ctx, insert, messageID, id); err != nil {
					return err
				}
			}
			if ids[0] == "" {
				return nil
			}
			_, err := tx.ExecContext(ctx, d.rebind(FillMessageWAHAIDQuery), ids[0], messageID)
			return err
		})
	})
}

func (d *Database) SetMessageSourceID(ctx context.Context, messageID int64, sourceID string) error {
	return d.exec(ctx, "set message source id", UpdateMessageSourceIDQuery, sourceID, time.Now().UTC(), messageID)
}

func (d *Database) DeleteAttachments(ctx context.Context, messageID int64) error {
	return d.exec(ctx, "delete attachments", DeleteAttachmentsQuery, messageID)
}

// RecentOutgoingMessages returns up to limit outgoing messages of a
// conversation, newest first.
func (d *Database) RecentOutgoingMessages(ctx context.Context, conversationID int64, limit int) ([]*models.Message, error) {
	rows, err := d.db.QueryContext(ctx, d.rebind(SelectMessageQuery+`
		WHERE m.conversation_id = ? AND m.message_type = ?
		ORDER BY m.id DESC LIMIT ?`), conversationID, string(models.DirectionOutgoing), limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("recent outgoing messages", err)
	}

	var out []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			rows.Close()
			return nil, apperrors.NewDatabaseError("recent outgoing messages", err)
		}
		out = append(out, msg)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("recent outgoing messages", err)
	}

	for _, msg := range out {
		if msg.Attachments, err = d.attachments(ctx, msg.ID); err != nil {
			return nil, apperrors.NewDatabaseError("recent outgoing messages", err)
		}
	}
	return out, nil
}

// ExternalIDs lists the variant ids recorded for a message.
func (d *Database) ExternalIDs(ctx context.Context, messageID int64) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, d.rebind(SelectExternalIDsQuery+` ORDER BY external_id`), messageID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list external ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (d *Database) attachments(ctx context.Context, messageID int64) ([]models.Attachment, error) {
	rows, err := d.db.QueryContext(ctx, d.rebind(SelectAttachmentsQuery), messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Attachment
	for rows.Next() {
		var (
			a        models.Attachment
			lat, lng sql.NullFloat64
			meta     string
		)
		if err := rows.Scan(&a.ID, &a.MessageID, &a.FileType, &a.ExternalURL, &lat, &lng, &a.FallbackTitle, &meta); err != nil {
			return nil, err
		}
		a.CoordinatesLat = floatPtr(lat)
		a.CoordinatesLong = floatPtr(lng)
		if a.Meta, err = decodeJSON(meta); err != nil {
			return nil, fmt.Errorf("attachment %d meta: %w", a.ID, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		m                models.Message
		direction, state string
		attrs            string
	)
	err := row.Scan(&m.ID, &m.ConversationID, &m.InboxID, &direction, &m.Content,
		&m.ContentType, &m.SourceID, &m.WAHAMessageID, &state,
		&attrs, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.MessageType = models.Direction(direction)
	m.Status = models.DeliveryStatus(state)
	if m.ContentAttributes, err = decodeJSON(attrs); err != nil {
		return nil, fmt.Errorf("message %d content attributes: %w", m.ID, err)
	}
	return &m, nil
}

func encodeJSON(v map[string]any) (string, error) {
	if len(v) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decodeJSON returns nil for an empty object so callers see the same shape
// they stored.
func decodeJSON(s string) (map[string]any, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}
