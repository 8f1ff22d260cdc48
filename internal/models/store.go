package models

import "time"

type Inbox struct {
	ID               int64
	Name             string
	Provider         Provider
	Session          string
	APIURL           string
	APIKey           string
	ConnectionStatus string
	QRCode           string
	Error            string
	UpdatedAt        time.Time

	LockToSingleConversation bool
	ShowDeletedOriginal      bool
}

type Contact struct {
	ID              int64
	InboxID         int64
	Name            string
	PhoneNumber     string
	Identifier      string
	AvatarURL       string
	AvatarCheckedAt *time.Time
	LastActivityAt  *time.Time
	CreatedAt       time.Time
}

type ContactInbox struct {
	ID        int64
	ContactID int64
	InboxID   int64
	SourceID  string
}

type ConversationStatus string

const (
	ConversationOpen     ConversationStatus = "open"
	ConversationResolved ConversationStatus = "resolved"
)

type Conversation struct {
	ID                int64
	InboxID           int64
	ContactID         int64
	ContactInboxID    int64
	Status            ConversationStatus
	ContactLastSeenAt *time.Time
	Labels            []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasLabel reports whether the conversation carries label.
func (c *Conversation) HasLabel(label string) bool {
	for _, l := range c.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Message is a stored conversation message. SourceID holds the primary
// external id and WAHAMessageID the provider's serialized id.
type Message struct {
	ID                int64
	ConversationID    int64
	InboxID           int64
	MessageType       Direction
	Content           string
	ContentType       string
	SourceID          string
	WAHAMessageID     string
	Status            DeliveryStatus
	ContentAttributes map[string]any
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Attachments       []Attachment
}

func (m *Message) Outgoing() bool {
	return m.MessageType == DirectionOutgoing
}

// Attr returns a content attribute, or nil.
func (m *Message) Attr(key string) any {
	if m.ContentAttributes == nil {
		return nil
	}
	return m.ContentAttributes[key]
}

// SetAttr writes a content attribute.
func (m *Message) SetAttr(key string, value any) {
	if m.ContentAttributes == nil {
		m.ContentAttributes = map[string]any{}
	}
	m.ContentAttributes[key] = value
}

// Attachment file types
const (
	FileTypeImage    = "image"
	FileTypeAudio    = "audio"
	FileTypeVideo    = "video"
	FileTypeFile     = "file"
	FileTypeLocation = "location"
	FileTypeContact  = "contact"
)

type Attachment struct {
	ID              int64
	MessageID       int64
	FileType        string
	ExternalURL     string
	CoordinatesLat  *float64
	CoordinatesLong *float64
	FallbackTitle   string
	Meta            map[string]any
}
