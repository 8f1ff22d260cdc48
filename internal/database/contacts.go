package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/mariovalmir/chatwoot/internal/errors"
	"github.com/mariovalmir/chatwoot/internal/models"
)

// FindContactInboxBySourceIDs returns the binding of the first source id,
// in the given order, that exists in the inbox.
func (d *Database) FindContactInboxBySourceIDs(ctx context.Context, inboxID int64, sourceIDs []string) (*models.ContactInbox, error) {
	query := d.rebind(SelectContactInboxBySourceQuery)
	for _, sourceID := range sourceIDs {
		if sourceID == "" {
			continue
		}
		ci, err := scanContactInbox(d.db.QueryRowContext(ctx, query, inboxID, sourceID))
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, apperrors.NewDatabaseError("find contact inbox", err)
		}
		return ci, nil
	}
	return nil, nil
}

func (d *Database) GetContactInbox(ctx context.Context, id int64) (*models.ContactInbox, error) {
	ci, err := scanContactInbox(d.db.QueryRowContext(ctx, d.rebind(SelectContactInboxQuery), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get contact inbox", err)
	}
	return ci, nil
}

func (d *Database) GetContact(ctx context.Context, id int64) (*models.Contact, error) {
	var (
		c                 models.Contact
		phone             string
		checkedAt, active sql.NullTime
	)
	err := d.db.QueryRowContext(ctx, d.rebind(SelectContactQuery), id).Scan(
		&c.ID, &c.InboxID, &c.Name, &phone, &c.Identifier, &c.AvatarURL,
		&checkedAt, &active, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get contact", err)
	}

	c.PhoneNumber, err = d.encryptor.Decrypt(phone)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt phone number: %w", err)
	}
	c.AvatarCheckedAt = timePtr(checkedAt)
	c.LastActivityAt = timePtr(active)
	return &c, nil
}

// CreateContactWithInbox inserts the contact and its source id binding in
// one transaction.
func (d *Database) CreateContactWithInbox(ctx context.Context, contact *models.Contact, sourceID string) (*models.ContactInbox, error) {
	phone, err := d.encryptor.Encrypt(contact.PhoneNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt phone number: %w", err)
	}
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = time.Now().UTC()
	}

	var ci *models.ContactInbox
	err = d.withRetry(ctx, "create contact", func() error {
		return d.inTx(ctx, func(tx *sql.Tx) error {
			contactID, err := insertID(ctx, tx, d.rebind(InsertContactQuery),
				contact.InboxID, contact.Name, phone, contact.Identifier, contact.AvatarURL, contact.CreatedAt)
			if err != nil {
				return err
			}
			bindingID, err := insertID(ctx, tx, d.rebind(InsertContactInboxQuery), contactID, contact.InboxID, sourceID)
			if err != nil {
				return err
			}
			contact.ID = contactID
			ci = &models.ContactInbox{ID: bindingID, ContactID: contactID, InboxID: contact.InboxID, SourceID: sourceID}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ci, nil
}

func (d *Database) UpdateContactName(ctx context.Context, contactID int64, name string) error {
	return d.exec(ctx, "update contact name", UpdateContactNameQuery, name, contactID)
}

func (d *Database) UpdateContactAvatar(ctx context.Context, contactID int64, url string, checkedAt *time.Time) error {
	return d.exec(ctx, "update contact avatar", UpdateContactAvatarQuery, url, nullTime(checkedAt), contactID)
}

func (d *Database) TouchContactActivity(ctx context.Context, contactID int64, ts time.Time) error {
	return d.exec(ctx, "touch contact activity", UpdateContactActivityQuery, ts.UTC(), contactID)
}

// exec runs a single retried write.
func (d *Database) exec(ctx context.Context, operation, query string, args ...any) error {
	query = d.rebind(query)
	return d.withRetry(ctx, operation, func() error {
		_, err := d.db.ExecContext(ctx, query, args...)
		return err
	})
}

func scanContactInbox(row rowScanner) (*models.ContactInbox, error) {
	var ci models.ContactInbox
	if err := row.Scan(&ci.ID, &ci.ContactID, &ci.InboxID, &ci.SourceID); err != nil {
		return nil, err
	}
	return &ci, nil
}
