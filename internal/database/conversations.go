package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	apperrors "github.com/mariovalmir/chatwoot/internal/errors"
	"github.com/mariovalmir/chatwoot/internal/models"
)

func (d *Database) GetConversation(ctx context.Context, conversationID int64) (*models.Conversation, error) {
	return d.findConversation(ctx, "get conversation", SelectConversationQuery+` WHERE id = ?`, conversationID)
}

// LastConversation returns the newest conversation of a contact binding.
// Resolved conversations count only when includeResolved is set.
func (d *Database) LastConversation(ctx context.Context, contactInboxID int64, includeResolved bool) (*models.Conversation, error) {
	query := SelectConversationQuery + ` WHERE contact_inbox_id = ?`
	args := []any{contactInboxID}
	if !includeResolved {
		query += ` AND status <> ?`
		args = append(args, string(models.ConversationResolved))
	}
	query += ` ORDER BY id DESC LIMIT 1`
	return d.findConversation(ctx, "last conversation", query, args...)
}

func (d *Database) findConversation(ctx context.Context, operation, query string, args ...any) (*models.Conversation, error) {
	var (
		c        models.Conversation
		status   string
		lastSeen sql.NullTime
	)
	err := d.db.QueryRowContext(ctx, d.rebind(query), args...).Scan(
		&c.ID, &c.InboxID, &c.ContactID, &c.ContactInboxID, &status,
		&lastSeen, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError(operation, err)
	}
	c.Status = models.ConversationStatus(status)
	c.ContactLastSeenAt = timePtr(lastSeen)

	c.Labels, err = d.conversationLabels(ctx, c.ID)
	if err != nil {
		return nil, apperrors.NewDatabaseError(operation, err)
	}
	return &c, nil
}

func (d *Database) conversationLabels(ctx context.Context, conversationID int64) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, d.rebind(SelectConversationLabelsQuery), conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

func (d *Database) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv.Status == "" {
		conv.Status = models.ConversationOpen
	}
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now

	return d.withRetry(ctx, "create conversation", func() error {
		return d.inTx(ctx, func(tx *sql.Tx) error {
			id, err := insertID(ctx, tx, d.rebind(InsertConversationQuery),
				conv.InboxID, conv.ContactID, conv.ContactInboxID, string(conv.Status), conv.CreatedAt, conv.UpdatedAt)
			if err != nil {
				return err
			}
			for _, l := range conv.Labels {
				if _, err := tx.ExecContext(ctx, d.rebind(InsertConversationLabelQuery), id, l); err != nil {
					return err
				}
			}
			conv.ID = id
			return nil
		})
	})
}

// AddConversationLabels attaches labels, ignoring ones already present.
func (d *Database) AddConversationLabels(ctx context.Context, conversationID int64, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	query := d.rebind(InsertConversationLabelQuery)
	return d.withRetry(ctx, "add conversation labels", func() error {
		return d.inTx(ctx, func(tx *sql.Tx) error {
			for _, l := range labels {
				if _, err := tx.ExecContext(ctx, query, conversationID, l); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func (d *Database) SetContactLastSeen(ctx context.Context, conversationID int64, ts time.Time) error {
	return d.exec(ctx, "set contact last seen", UpdateContactLastSeenQuery, ts.UTC(), time.Now().UTC(), conversationID)
}
