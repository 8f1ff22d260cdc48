package normalize

import (
	"fmt"
	"strings"

	"github.com/mariovalmir/chatwoot/internal/models"
	"github.com/mariovalmir/chatwoot/internal/payload"
)

const defaultContactName = "Contact"

// DefaultMediaHost serves directPath references when the payload names no
// base URL.
const DefaultMediaHost = "https://mmg.whatsapp.net"

var typedMessageKeys = map[models.ContentType][]string{
	models.ContentImage:   {"imageMessage"},
	models.ContentAudio:   {"audioMessage"},
	models.ContentVideo:   {"videoMessage"},
	models.ContentFile:    {"documentMessage", "documentWithCaptionMessage"},
	models.ContentSticker: {"stickerMessage"},
}

// typedMessage returns the typed sub-object of msg for t. The document with
// caption wrapper is unwrapped.
func typedMessage(msg payload.Payload, t models.ContentType) payload.Payload {
	for _, key := range typedMessageKeys[t] {
		m := msg.Map(key)
		if m == nil {
			continue
		}
		if key == "documentWithCaptionMessage" {
			if inner := m.Map("message", "documentMessage"); inner != nil {
				return inner
			}
		}
		return m
	}
	return nil
}

// MediaRef returns a reference the attachment can be fetched from: a data
// URI for inline base64, else the first URL, else directPath joined to the
// media host.
func MediaRef(data payload.Payload) string {
	if b64 := data.First(payload.P("message", "base64"), payload.P("media", "base64"), payload.P("media", "data")); b64 != "" {
		if strings.HasPrefix(b64, "data:") {
			return b64
		}
		mime := MimeType(data, MessageType(data))
		if mime == "" {
			mime = "application/octet-stream"
		}
		return "data:" + mime + ";base64," + b64
	}
	if url := data.First(payload.P("message", "mediaUrl"), payload.P("media", "mediaUrl"), payload.P("media", "url")); url != "" {
		return url
	}

	msg := data.Map("message")
	if msg == nil {
		return ""
	}
	var typed []payload.Payload
	for _, keys := range [][]string{
		{"imageMessage"}, {"videoMessage"}, {"audioMessage"}, {"documentMessage"},
		{"documentWithCaptionMessage", "message", "documentMessage"}, {"stickerMessage"},
	} {
		if m := msg.Map(keys...); m != nil {
			typed = append(typed, m)
		}
	}
	for _, m := range typed {
		if url := m.Str("url"); url != "" {
			return url
		}
	}
	for _, m := range typed {
		if path := m.Str("directPath"); path != "" {
			base := data.Str("media", "baseUrl")
			if base == "" {
				base = DefaultMediaHost
			}
			return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
		}
	}
	return ""
}

// MimeType returns the declared mime type of the typed message.
func MimeType(data payload.Payload, t models.ContentType) string {
	if m := typedMessage(data.Map("message"), t); m != nil {
		if mime := m.Str("mimetype"); mime != "" {
			return mime
		}
	}
	return data.First(payload.P("media", "mimetype"), payload.P("media", "mimeType"))
}

// FileName returns the document's declared file name, or "".
func FileName(data payload.Payload) string {
	return data.First(
		payload.P("message", "documentMessage", "fileName"),
		payload.P("message", "documentWithCaptionMessage", "message", "documentMessage", "fileName"),
		payload.P("media", "filename"),
	)
}

// RecordedAudio reports a push-to-talk voice note.
func RecordedAudio(data payload.Payload) bool {
	v, _ := payload.Bool(data.Get("message", "audioMessage", "ptt"))
	return v
}

// contactEntries returns the shared contacts of a message block: the single
// contactMessage or each entry of contactsArrayMessage.
func contactEntries(msg payload.Payload) []payload.Payload {
	if msg == nil {
		return nil
	}
	if c := msg.Map("contactMessage"); c != nil {
		return []payload.Payload{c}
	}
	var out []payload.Payload
	for _, v := range msg.Slice("contactsArrayMessage", "contacts") {
		if c := payload.AsMap(v); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// SharedContacts decodes the shared contacts of a message block.
func SharedContacts(msg payload.Payload) []models.SharedContact {
	var out []models.SharedContact
	for _, c := range contactEntries(msg) {
		out = append(out, models.SharedContact{
			Name:   contactName(c),
			VCard:  c.Str("vcard"),
			Phones: contactPhones(c),
		})
	}
	return out
}

func contactName(c payload.Payload) string {
	if name := c.First(payload.P("displayName"), payload.P("display_name")); name != "" {
		return name
	}
	if m := fnPattern.FindStringSubmatch(c.Str("vcard")); m != nil {
		if name := strings.TrimSpace(m[1]); name != "" {
			return name
		}
	}
	return defaultContactName
}

func contactPhones(c payload.Payload) []string {
	var phones []string
	for _, v := range c.Slice("phones") {
		if p := payload.AsMap(v); p != nil {
			if phone := p.Str("phone"); phone != "" {
				phones = append(phones, phone)
			}
		}
	}
	if len(phones) > 0 {
		return phones
	}
	for _, m := range telPattern.FindAllStringSubmatch(c.Str("vcard"), -1) {
		if phone := strings.TrimSpace(m[1]); phone != "" {
			phones = append(phones, phone)
		}
	}
	return phones
}

// contactsText renders the first shared contact as its name followed by one
// phone per line.
func contactsText(msg payload.Payload) string {
	entries := contactEntries(msg)
	if len(entries) == 0 {
		return defaultContactName
	}
	first := entries[0]
	lines := append([]string{contactName(first)}, contactPhones(first)...)
	return strings.Join(lines, "\n")
}

// MessageLocation decodes message.locationMessage (or its live variant)
// with the coordinate aliases and defaults applied.
func MessageLocation(data payload.Payload) *models.Location {
	loc := normalizeLocation(firstMap(data.Map("message", "locationMessage"), data.Map("message", "liveLocationMessage")))
	if loc == nil {
		return nil
	}
	lat, _ := payload.Float(loc["degreesLatitude"])
	lng, _ := payload.Float(loc["degreesLongitude"])
	return &models.Location{
		Latitude:  lat,
		Longitude: lng,
		Name:      loc.Str("name"),
		Address:   loc.Str("address"),
		URL:       loc.Str("url"),
	}
}

// LocationTitle is "name, address" when the location is named.
func LocationTitle(loc *models.Location) string {
	if loc == nil || loc.Name == "" {
		return ""
	}
	if loc.Address == "" {
		return loc.Name
	}
	return fmt.Sprintf("%s, %s", loc.Name, loc.Address)
}
