// Package queue publishes the follow-up jobs webhook handlers schedule:
// status broadcasts, avatar downloads and inbox connection events.
package queue

import (
	"context"
	"time"

	"github.com/mariovalmir/chatwoot/internal/models"
)

// Job kinds double as AMQP routing keys.
const (
	KindStatusBroadcast = "conversation.status"
	KindAvatarFetch     = "contact.avatar"
	KindInboxConnection = "inbox.connection"
	KindInboxQRCode     = "inbox.qrcode"
)

// Job is the body of every published message. Fields unused by a kind
// are omitted.
type Job struct {
	ID             string                `json:"id"`
	Kind           string                `json:"kind"`
	InboxID        int64                 `json:"inbox_id,omitempty"`
	ConversationID int64                 `json:"conversation_id,omitempty"`
	ContactID      int64                 `json:"contact_id,omitempty"`
	Status         models.DeliveryStatus `json:"status,omitempty"`
	Connection     string                `json:"connection,omitempty"`
	URL            string                `json:"url,omitempty"`
	QRCode         string                `json:"qr_code,omitempty"`
	Timestamp      time.Time             `json:"timestamp"`
}

// Publisher delivers jobs to workers.
type Publisher interface {
	Publish(ctx context.Context, job Job) error
	Close() error
}

// StatusJobs announces read and delivered receipts for a conversation.
type StatusJobs struct{ pub Publisher }

func NewStatusJobs(pub Publisher) *StatusJobs { return &StatusJobs{pub: pub} }

func (s *StatusJobs) Enqueue(ctx context.Context, conversationID int64, ts time.Time, status models.DeliveryStatus) error {
	return s.pub.Publish(ctx, Job{
		Kind:           KindStatusBroadcast,
		ConversationID: conversationID,
		Status:         status,
		Timestamp:      ts.UTC(),
	})
}

// AvatarJobs schedules contact picture downloads.
type AvatarJobs struct{ pub Publisher }

func NewAvatarJobs(pub Publisher) *AvatarJobs { return &AvatarJobs{pub: pub} }

func (a *AvatarJobs) Enqueue(ctx context.Context, contactID int64, url string) error {
	return a.pub.Publish(ctx, Job{
		Kind:      KindAvatarFetch,
		ContactID: contactID,
		URL:       url,
		Timestamp: time.Now().UTC(),
	})
}

// InboxEvents publishes connection and QR code changes of an inbox.
type InboxEvents struct{ pub Publisher }

func NewInboxEvents(pub Publisher) *InboxEvents { return &InboxEvents{pub: pub} }

func (e *InboxEvents) PublishConnection(ctx context.Context, inboxID int64, status string) error {
	return e.pub.Publish(ctx, Job{
		Kind:       KindInboxConnection,
		InboxID:    inboxID,
		Connection: status,
		Timestamp:  time.Now().UTC(),
	})
}

func (e *InboxEvents) PublishQRCode(ctx context.Context, inboxID int64, qrCode string) error {
	return e.pub.Publish(ctx, Job{
		Kind:      KindInboxQRCode,
		InboxID:   inboxID,
		QRCode:    qrCode,
		Timestamp: time.Now().UTC(),
	})
}
