package service

import (
	"context"
	"time"

	"github.com/mariovalmir/chatwoot/internal/identity"
	"github.com/mariovalmir/chatwoot/internal/models"
)

// MessageStore persists conversation messages and their id index. Finders
// return (nil, nil) when nothing matches.
type MessageStore interface {
	FindMessageBySourceID(ctx context.Context, inboxID int64, sourceID string) (*models.Message, error)
	FindMessageByWAHAID(ctx context.Context, inboxID int64, wahaID string) (*models.Message, error)
	FindMessageByExternalIDContains(ctx context.Context, inboxID int64, externalID string) (*models.Message, error)
	CreateMessage(ctx context.Context, msg *models.Message) error
	// UpdateMessageStatus reports false when the stored state no longer allows the move.
	UpdateMessageStatus(ctx context.Context, messageID int64, status models.DeliveryStatus) (bool, error)
	UpdateMessageContent(ctx context.Context, msg *models.Message) error
	AppendExternalIDVariants(ctx context.Context, messageID int64, ids []string) error
	SetMessageSourceID(ctx context.Context, messageID int64, sourceID string) error
	DeleteAttachments(ctx context.Context, messageID int64) error
	RecentOutgoingMessages(ctx context.Context, conversationID int64, limit int) ([]*models.Message, error)
}

// ContactStore persists contacts and their per-inbox source ids.
type ContactStore interface {
	FindContactInboxBySourceIDs(ctx context.Context, inboxID int64, sourceIDs []string) (*models.ContactInbox, error)
	GetContactInbox(ctx context.Context, id int64) (*models.ContactInbox, error)
	GetContact(ctx context.Context, id int64) (*models.Contact, error)
	// CreateContactWithInbox stores contact and binds it to sourceID in its inbox.
	CreateContactWithInbox(ctx context.Context, contact *models.Contact, sourceID string) (*models.ContactInbox, error)
	UpdateContactName(ctx context.Context, contactID int64, name string) error
	UpdateContactAvatar(ctx context.Context, contactID int64, url string, checkedAt *time.Time) error
	TouchContactActivity(ctx context.Context, contactID int64, ts time.Time) error
}

type ConversationStore interface {
	GetConversation(ctx context.Context, conversationID int64) (*models.Conversation, error)
	LastConversation(ctx context.Context, contactInboxID int64, includeResolved bool) (*models.Conversation, error)
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	AddConversationLabels(ctx context.Context, conversationID int64, labels []string) error
	SetContactLastSeen(ctx context.Context, conversationID int64, ts time.Time) error
}

type InboxStore interface {
	GetInbox(ctx context.Context, id int64) (*models.Inbox, error)
	UpdateInboxConnection(ctx context.Context, inboxID int64, status, qrCode, errText string) error
}

// Store is everything the handlers persist through.
type Store interface {
	MessageStore
	ContactStore
	ConversationStore
	InboxStore
}

// IdentityCache is the shared key/value cache for identity metadata.
type IdentityCache = identity.Cache

// DedupeMarker claims a source id of an inbox while its message is being
// created.
type DedupeMarker interface {
	TryAcquire(ctx context.Context, inboxID int64, sourceID string) (bool, error)
	Release(ctx context.Context, inboxID int64, sourceID string) error
}

// ChannelLocker serializes work per inbox.
type ChannelLocker interface {
	WithLock(ctx context.Context, channelID int64, fn func(ctx context.Context) error) error
}

// ProviderLookup is the gateway API used to enrich identities.
type ProviderLookup interface {
	identity.Lookup
	// ProfilePictureURL returns the current picture of a contact or group,
	// bypassing the gateway's own cache when refresh is set.
	ProfilePictureURL(ctx context.Context, chatJID string, refresh bool) (string, error)
}

// LookupSource hands out the lookup client of an inbox.
type LookupSource interface {
	LookupFor(inbox *models.Inbox) ProviderLookup
}

// StatusBroadcast announces read and delivered receipts.
type StatusBroadcast interface {
	Enqueue(ctx context.Context, conversationID int64, ts time.Time, status models.DeliveryStatus) error
}

// AvatarFetch schedules downloading a contact picture.
type AvatarFetch interface {
	Enqueue(ctx context.Context, contactID int64, url string) error
}

// InboxEvents publishes connection state changes of an inbox.
type InboxEvents interface {
	PublishConnection(ctx context.Context, inboxID int64, status string) error
	PublishQRCode(ctx context.Context, inboxID int64, qrCode string) error
}

// MediaValidator vets a media reference before it is attached.
type MediaValidator interface {
	ValidateRef(ctx context.Context, ref string) error
}
