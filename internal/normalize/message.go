// Package normalize turns gateway message payloads into the canonical event
// model. Evolution payloads are read as they arrive; WAHA payloads are first
// rebuilt into the Evolution shape by the BuildWAHA* functions.
package normalize

import (
	"regexp"
	"strings"
	"time"

	"github.com/mariovalmir/chatwoot/internal/models"
	"github.com/mariovalmir/chatwoot/internal/payload"
	"github.com/mariovalmir/chatwoot/internal/reconcile"
)

// typeVocabulary maps explicit provider type names, lower-cased.
var typeVocabulary = map[string]models.ContentType{
	"conversation":               models.ContentText,
	"text":                       models.ContentText,
	"chat":                       models.ContentText,
	"extendedtextmessage":        models.ContentText,
	"image":                      models.ContentImage,
	"imagemessage":               models.ContentImage,
	"audio":                      models.ContentAudio,
	"ptt":                        models.ContentAudio,
	"audiomessage":               models.ContentAudio,
	"video":                      models.ContentVideo,
	"videomessage":               models.ContentVideo,
	"document":                   models.ContentFile,
	"file":                       models.ContentFile,
	"documentmessage":            models.ContentFile,
	"documentwithcaptionmessage": models.ContentFile,
	"sticker":                    models.ContentSticker,
	"stickermessage":             models.ContentSticker,
	"reaction":                   models.ContentReaction,
	"reactionmessage":            models.ContentReaction,
	"protocol":                   models.ContentProtocol,
	"protocolmessage":            models.ContentProtocol,
	"location":                   models.ContentLocation,
	"locationmessage":            models.ContentLocation,
	"livelocationmessage":        models.ContentLocation,
	"contacts":                   models.ContentContacts,
	"contact":                    models.ContentContacts,
	"contactmessage":             models.ContentContacts,
	"contactsarraymessage":       models.ContentContacts,
}

var explicitTypePaths = [][]string{
	{"type"}, {"messageType"},
	{"_data", "Info", "MediaType"}, {"_data", "Info", "mediaType"}, {"_data", "Info", "Type"},
}

// ExplicitType maps a provider supplied type name. The second result is
// false when no known name is present.
func ExplicitType(data payload.Payload) (models.ContentType, bool) {
	for _, path := range explicitTypePaths {
		if t, ok := typeVocabulary[strings.ToLower(data.Str(path...))]; ok {
			return t, true
		}
	}
	return "", false
}

// InferType classifies a message block by its first populated sub-object.
func InferType(msg payload.Payload) models.ContentType {
	switch {
	case msg.Present("conversation") || msg.Present("extendedTextMessage", "text"):
		return models.ContentText
	case msg.Present("imageMessage"):
		return models.ContentImage
	case msg.Present("audioMessage"):
		return models.ContentAudio
	case msg.Present("videoMessage"):
		return models.ContentVideo
	case msg.Present("documentMessage") || msg.Present("documentWithCaptionMessage"):
		return models.ContentFile
	case msg.Present("stickerMessage"):
		return models.ContentSticker
	case msg.Present("reactionMessage"):
		return models.ContentReaction
	case msg.Present("protocolMessage"):
		return models.ContentProtocol
	case msg.Present("locationMessage") || msg.Present("liveLocationMessage"):
		return models.ContentLocation
	case msg.Present("contactMessage") || msg.Present("contactsArrayMessage"):
		return models.ContentContacts
	default:
		return models.ContentUnsupported
	}
}

// MessageType returns the content type of an Evolution-shaped message.
// Data without a message block is text.
func MessageType(data payload.Payload) models.ContentType {
	if t, ok := ExplicitType(data); ok {
		return t
	}
	msg := data.Map("message")
	if msg == nil {
		return models.ContentText
	}
	return InferType(msg)
}

// Text extracts the textual content for t.
func Text(data payload.Payload, t models.ContentType) string {
	msg := data.Map("message")
	if msg == nil {
		msg = payload.Payload{}
	}

	switch t {
	case models.ContentText:
		return msg.First(payload.P("conversation"), payload.P("extendedTextMessage", "text"))
	case models.ContentImage:
		return msg.Str("imageMessage", "caption")
	case models.ContentVideo:
		return msg.Str("videoMessage", "caption")
	case models.ContentFile:
		return msg.First(
			payload.P("documentMessage", "caption"),
			payload.P("documentWithCaptionMessage", "message", "documentMessage", "caption"),
		)
	case models.ContentReaction:
		return msg.Str("reactionMessage", "text")
	case models.ContentContacts:
		return contactsText(msg)
	default:
		return ""
	}
}

// Ignored reports messages that are not stored: protocol and unsupported
// types, and blank text for types that need text.
func Ignored(t models.ContentType, text string) bool {
	if t == models.ContentProtocol || t == models.ContentUnsupported {
		return true
	}
	return strings.TrimSpace(text) == "" && !t.AllowsBlankText()
}

// FromMe reads fromMe, then key.fromMe. The second result is false when
// neither carries a boolean.
func FromMe(data payload.Payload) (bool, bool) {
	if v, ok := payload.Bool(data.Get("fromMe")); ok {
		return v, true
	}
	return payload.Bool(data.Get("key", "fromMe"))
}

// Incoming reports whether the contact sent the message. Unknown direction
// counts as incoming.
func Incoming(data payload.Payload) bool {
	fromMe, _ := FromMe(data)
	return !fromMe
}

// DirectionOf maps Incoming onto a Direction.
func DirectionOf(data payload.Payload) models.Direction {
	if Incoming(data) {
		return models.DirectionIncoming
	}
	return models.DirectionOutgoing
}

// UnixSeconds reads a unix timestamp, converting milliseconds. Zero means
// absent or unparsable.
func UnixSeconds(v any) int64 {
	n, ok := payload.Int(v)
	if !ok {
		if f, fok := payload.Float(v); fok {
			n, ok = int64(f), true
		}
	}
	if !ok || n <= 0 {
		return 0
	}
	if n > 1_000_000_000_000 {
		n /= 1000
	}
	return n
}

// Time reads a receipt timestamp: unix seconds or milliseconds, or an
// RFC 3339 string. now is returned when v carries none.
func Time(v any, now time.Time) time.Time {
	if secs := UnixSeconds(v); secs > 0 {
		return time.Unix(secs, 0)
	}
	s := payload.String(v)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return now
}

// Timestamp returns the message time from messageTimestamp, timestamp or
// date_time.
func Timestamp(data payload.Payload, now time.Time) time.Time {
	for _, key := range []string{"messageTimestamp", "timestamp", "date_time"} {
		if v := data.Get(key); payload.Present(v) {
			return Time(v, now)
		}
	}
	return now
}

var fnPattern = regexp.MustCompile(`(?i)FN:(.+)`)
var telPattern = regexp.MustCompile(`(?i)TEL[^:]*:([^\n]+)`)

// Event builds the canonical view of an Evolution-shaped message.
func Event(kind models.EventKind, data payload.Payload, now time.Time) *models.CanonicalMessageEvent {
	t := MessageType(data)
	msg := data.Map("message")

	event := &models.CanonicalMessageEvent{
		Kind:                     kind,
		ExternalMessageID:        reconcile.PrimaryID(data),
		ExternalIDVariants:       reconcile.ExpandMessageIDs(data),
		ChatIdentifier:           data.First(payload.P("remoteJid"), payload.P("key", "remoteJid")),
		ParticipantIdentifier:    data.First(payload.P("participant"), payload.P("key", "participant")),
		ParticipantAltIdentifier: data.First(payload.P("participantAlt"), payload.P("key", "participantAlt")),
		Direction:                DirectionOf(data),
		Content: models.Content{
			Type: t,
			Text: Text(data, t),
		},
		StatusHint:          statusHint(data),
		Timestamp:           Timestamp(data, now),
		ReplyToID:           ReplyToID(data),
		ReplyToParticipants: ReplyParticipants(data),
		PushName:            data.Str("pushName"),
		Raw:                 data,
	}

	if t.IsMedia() {
		event.Content.MediaRef = MediaRef(data)
		event.Content.MimeType = MimeType(data, t)
		event.Content.FileName = FileName(data)
	}
	switch t {
	case models.ContentLocation:
		event.Content.Location = MessageLocation(data)
	case models.ContentContacts:
		event.Content.Contacts = SharedContacts(msg)
	case models.ContentReaction:
		event.ReactionTo = data.Str("message", "reactionMessage", "key", "id")
	}
	if event.ExternalMessageID != "" && !contains(event.ExternalIDVariants, event.ExternalMessageID) {
		event.ExternalIDVariants = append([]string{event.ExternalMessageID}, event.ExternalIDVariants...)
	}
	return event
}

func statusHint(data payload.Payload) any {
	if v := data.Get("status"); payload.Present(v) {
		return v
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
