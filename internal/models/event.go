package models

import (
	"time"

	"github.com/mariovalmir/chatwoot/internal/payload"
)

// Provider names a gateway dialect.
type Provider string

const (
	ProviderEvolution Provider = "evolution"
	ProviderWAHA      Provider = "waha"
)

func (p Provider) Valid() bool {
	return p == ProviderEvolution || p == ProviderWAHA
}

// EventKind classifies a canonical event.
type EventKind string

const (
	EventCreated       EventKind = "created"
	EventUpdated       EventKind = "updated"
	EventDeleted       EventKind = "deleted"
	EventStatusChanged EventKind = "status_changed"
	EventReaction      EventKind = "reaction"
	EventConnection    EventKind = "connection"
	EventContactUpdate EventKind = "contact_update"
	EventChatUpdate    EventKind = "chat_update"
	EventGroupUpdate   EventKind = "group_update"
)

// Direction is incoming for messages the contact sent, outgoing for ours.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// ContentType is the normalized message type.
type ContentType string

const (
	ContentText        ContentType = "text"
	ContentImage       ContentType = "image"
	ContentAudio       ContentType = "audio"
	ContentVideo       ContentType = "video"
	ContentFile        ContentType = "file"
	ContentSticker     ContentType = "sticker"
	ContentReaction    ContentType = "reaction"
	ContentProtocol    ContentType = "protocol"
	ContentLocation    ContentType = "location"
	ContentContacts    ContentType = "contacts"
	ContentUnsupported ContentType = "unsupported"
)

// IsMedia reports types that carry a downloadable file.
func (c ContentType) IsMedia() bool {
	switch c {
	case ContentImage, ContentAudio, ContentVideo, ContentFile, ContentSticker:
		return true
	}
	return false
}

// AllowsBlankText reports types that are stored even without a caption.
func (c ContentType) AllowsBlankText() bool {
	return c.IsMedia() || c == ContentLocation
}

type Location struct {
	Latitude  float64
	Longitude float64
	Name      string
	Address   string
	URL       string
}

// SharedContact is one entry of a contacts message. Phones is empty when
// neither the structured list nor the vCard carries a number.
type SharedContact struct {
	Name   string
	VCard  string
	Phones []string
}

type Content struct {
	Type     ContentType
	Text     string
	MediaRef string
	MimeType string
	FileName string
	Location *Location
	Contacts []SharedContact
}

// CanonicalMessageEvent is the provider independent view of one inbound
// message event.
type CanonicalMessageEvent struct {
	Kind                     EventKind
	ExternalMessageID        string
	ExternalIDVariants       []string
	ChatIdentifier           string
	ParticipantIdentifier    string
	ParticipantAltIdentifier string
	Direction                Direction
	Content                  Content
	StatusHint               any
	Timestamp                time.Time
	ReplyToID                string
	ReplyToParticipants      []string
	PushName                 string
	ReactionTo               string
	Raw                      payload.Payload
}

func (e *CanonicalMessageEvent) Incoming() bool {
	return e.Direction == DirectionIncoming
}
