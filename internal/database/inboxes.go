package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	apperrors "github.com/mariovalmir/chatwoot/internal/errors"
	"github.com/mariovalmir/chatwoot/internal/models"
)

// UpsertInbox writes the configured settings of an inbox, leaving its
// connection state alone.
func (d *Database) UpsertInbox(ctx context.Context, cfg models.InboxConfig) error {
	return d.withRetry(ctx, "upsert inbox", func() error {
		_, err := d.db.ExecContext(ctx, d.rebind(UpsertInboxQuery),
			cfg.ID, cfg.Name, string(cfg.Provider), cfg.Session, cfg.APIURL, cfg.APIKey,
			cfg.LockToSingleConversation, cfg.ShowDeletedOriginal, time.Now().UTC())
		return err
	})
}

func (d *Database) GetInbox(ctx context.Context, id int64) (*models.Inbox, error) {
	row := d.db.QueryRowContext(ctx, d.rebind(SelectInboxQuery+` WHERE id = ?`), id)
	in, err := scanInbox(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get inbox", err)
	}
	return in, nil
}

// ListInboxes returns every stored inbox ordered by id.
func (d *Database) ListInboxes(ctx context.Context) ([]*models.Inbox, error) {
	rows, err := d.db.QueryContext(ctx, SelectInboxQuery+` ORDER BY id`)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list inboxes", err)
	}
	defer rows.Close()

	var out []*models.Inbox
	for rows.Next() {
		in, err := scanInbox(rows)
		if err != nil {
			return nil, apperrors.NewDatabaseError("list inboxes", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// UpdateInboxConnection stores the connection state, creating a bare row
// for inboxes that were never seeded.
func (d *Database) UpdateInboxConnection(ctx context.Context, inboxID int64, status, qrCode, errText string) error {
	return d.withRetry(ctx, "update inbox connection", func() error {
		_, err := d.db.ExecContext(ctx, d.rebind(UpsertInboxConnectionQuery),
			inboxID, status, qrCode, errText, time.Now().UTC())
		return err
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInbox(row rowScanner) (*models.Inbox, error) {
	var (
		in       models.Inbox
		provider string
	)
	err := row.Scan(&in.ID, &in.Name, &provider, &in.Session, &in.APIURL, &in.APIKey,
		&in.ConnectionStatus, &in.QRCode, &in.Error,
		&in.LockToSingleConversation, &in.ShowDeletedOriginal, &in.UpdatedAt)
	if err != nil {
		return nil, err
	}
	in.Provider = models.Provider(provider)
	return &in, nil
}
