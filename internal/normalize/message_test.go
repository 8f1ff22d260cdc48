package normalize

import (
	"testing"
	"time"

	"github.com/mariovalmir/chatwoot/internal/models"
	"github.com/mariovalmir/chatwoot/internal/payload"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecode(t *testing.T, raw string) payload.Payload {
	t.Helper()
	p, err := payload.DecodeObject([]byte(raw))
	require.NoError(t, err)
	return p
}

func TestMessageType(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want models.ContentType
	}{
		{"no message block is text", `{"key":{"id":"A"}}`, models.ContentText},
		{"conversation", `{"message":{"conversation":"hi"}}`, models.ContentText},
		{"extended text", `{"message":{"extendedTextMessage":{"text":"hi"}}}`, models.ContentText},
		{"image", `{"message":{"imageMessage":{"caption":"c"}}}`, models.ContentImage},
		{"document", `{"message":{"documentMessage":{"fileName":"a.pdf"}}}`, models.ContentFile},
		{"document with caption", `{"message":{"documentWithCaptionMessage":{"message":{"documentMessage":{"caption":"c"}}}}}`, models.ContentFile},
		{"sticker", `{"message":{"stickerMessage":{"url":"u"}}}`, models.ContentSticker},
		{"reaction", `{"message":{"reactionMessage":{"text":"x"}}}`, models.ContentReaction},
		{"protocol before location", `{"message":{"protocolMessage":{"type":0},"locationMessage":{"degreesLatitude":1}}}`, models.ContentProtocol},
		{"live location", `{"message":{"liveLocationMessage":{"degreesLatitude":1}}}`, models.ContentLocation},
		{"contacts array", `{"message":{"contactsArrayMessage":{"contacts":[{"displayName":"A"}]}}}`, models.ContentContacts},
		{"unknown block", `{"message":{"pollCreationMessage":{"name":"x"}}}`, models.ContentUnsupported},
		{"explicit type wins", `{"messageType":"imageMessage","message":{"conversation":"x"}}`, models.ContentImage},
		{"explicit ptt", `{"type":"ptt","message":{"conversation":"x"}}`, models.ContentAudio},
		{"unknown explicit falls back", `{"messageType":"editedMessage","message":{"conversation":"x"}}`, models.ContentText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MessageType(mustDecode(t, tt.raw)))
		})
	}
}

func TestIgnored(t *testing.T) {
	tests := []struct {
		name string
		t    models.ContentType
		text string
		want bool
	}{
		{"protocol", models.ContentProtocol, "x", true},
		{"unsupported", models.ContentUnsupported, "x", true},
		{"blank text", models.ContentText, "  ", true},
		{"blank reaction", models.ContentReaction, "", true},
		{"text", models.ContentText, "hi", false},
		{"file without caption", models.ContentFile, "", false},
		{"sticker without caption", models.ContentSticker, "", false},
		{"location without text", models.ContentLocation, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Ignored(tt.t, tt.text))
		})
	}
}

func TestText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"conversation", `{"message":{"conversation":"hello"}}`, "hello"},
		{"extended", `{"message":{"extendedTextMessage":{"text":"hello"}}}`, "hello"},
		{"image caption", `{"message":{"imageMessage":{"caption":"look"}}}`, "look"},
		{"wrapped document caption", `{"message":{"documentWithCaptionMessage":{"message":{"documentMessage":{"caption":"doc"}}}}}`, "doc"},
		{"reaction", `{"message":{"reactionMessage":{"text":"👍"}}}`, "👍"},
		{
			"contact with vcard phones",
			`{"message":{"contactMessage":{"displayName":"Ana","vcard":"BEGIN:VCARD\nFN:Ana B\nTEL;type=CELL:+55 11 99999\nEND:VCARD"}}}`,
			"Ana\n+55 11 99999",
		},
		{
			"contact name from vcard",
			`{"message":{"contactMessage":{"vcard":"BEGIN:VCARD\nFN:Ana B\nEND:VCARD"}}}`,
			"Ana B",
		},
		{
			"structured phones win",
			`{"message":{"contactsArrayMessage":{"contacts":[{"displayName":"Bo","phones":[{"phone":"+1 555"}],"vcard":"TEL:+9"}]}}}`,
			"Bo\n+1 555",
		},
		{"empty contacts", `{"message":{"contactsArrayMessage":{"contacts":[]}}}`, "Contact"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := mustDecode(t, tt.raw)
			assert.Equal(t, tt.want, Text(data, MessageType(data)))
		})
	}
}

func TestIncoming(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"unknown is incoming", `{}`, true},
		{"fromMe true", `{"fromMe":true}`, false},
		{"key fromMe", `{"key":{"fromMe":true}}`, false},
		{"string spelling", `{"fromMe":"yes"}`, false},
		{"false spelling", `{"fromMe":"off","key":{"fromMe":true}}`, true},
		{"numeric", `{"fromMe":0}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Incoming(mustDecode(t, tt.raw)))
		})
	}
}

func TestTimestamp(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, int64(1700000000), Timestamp(mustDecode(t, `{"messageTimestamp":1700000000}`), now).Unix())
	assert.Equal(t, int64(1700000000), Timestamp(mustDecode(t, `{"timestamp":1700000000123}`), now).Unix())
	assert.Equal(t, int64(1700000000), Timestamp(mustDecode(t, `{"messageTimestamp":"1700000000"}`), now).Unix())
	assert.Equal(t, now, Timestamp(mustDecode(t, `{}`), now))

	parsed := Timestamp(mustDecode(t, `{"date_time":"2024-03-01T10:00:00Z"}`), now)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), parsed.UTC())
	assert.Equal(t, now, Time("garbage", now))
}

func TestReplyToID(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"replyTo object", `{"replyTo":{"id":"R1"},"contextInfo":{"stanzaId":"C1"}}`, "R1"},
		{"reply_to scalar", `{"reply_to":"R2"}`, "R2"},
		{"context stanza", `{"contextInfo":{"stanzaId":"C1"}}`, "C1"},
		{"context quoted key", `{"contextInfo":{"quotedMessage":{"key":{"id":"C2"}}}}`, "C2"},
		{"three levels deep", `{"message":{"extendedTextMessage":{"text":"x","contextInfo":{"stanzaId":"S3"}}}}`, "S3"},
		{"deep quoted key", `{"message":{"extendedTextMessage":{"contextInfo":{"quotedMessage":{"key":{"id":"S4"}}}}}}`, "S4"},
		{"quotedMsgId", `{"quotedMsgId":"Q1"}`, "Q1"},
		{"none", `{"message":{"conversation":"x"}}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReplyToID(mustDecode(t, tt.raw)))
		})
	}
}

func TestReplyParticipants_Union(t *testing.T) {
	data := mustDecode(t, `{
		"replyTo": {"participant": " A@s.whatsapp.net "},
		"contextInfo": {
			"participant": "B@lid",
			"quotedMessage": {"key": {"participantAlt": "C@s.whatsapp.net"}}
		},
		"message": {"extendedTextMessage": {"contextInfo": {"participant": "A@s.whatsapp.net"}}},
		"quoted": {"key": {"participant": "D@c.us"}}
	}`)

	assert.Equal(t, []string{"A@s.whatsapp.net", "B@lid", "C@s.whatsapp.net", "D@c.us"}, ReplyParticipants(data))
}

func TestMediaRef(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"inline base64", `{"message":{"base64":"QUJD","imageMessage":{"mimetype":"image/png"}}}`, "data:image/png;base64,QUJD"},
		{"media url", `{"media":{"url":"https://gw/file.jpg"},"message":{"imageMessage":{"url":"https://cdn/x"}}}`, "https://gw/file.jpg"},
		{"typed url", `{"message":{"videoMessage":{"url":"https://cdn/v.mp4"}}}`, "https://cdn/v.mp4"},
		{"direct path", `{"message":{"audioMessage":{"directPath":"/v/t62/abc"}}}`, "https://mmg.whatsapp.net/v/t62/abc"},
		{"nothing", `{"message":{"conversation":"x"}}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MediaRef(mustDecode(t, tt.raw)))
		})
	}
}

func TestEvent_Evolution(t *testing.T) {
	now := time.Now()
	data := mustDecode(t, `{
		"key": {"id": "ABC", "remoteJid": "5511999@s.whatsapp.net", "fromMe": false},
		"pushName": "Ana",
		"messageTimestamp": 1700000000,
		"message": {"documentMessage": {"fileName": "report.pdf", "mimetype": "application/pdf", "url": "https://cdn/r.pdf"}}
	}`)

	event := Event(models.EventCreated, data, now)

	assert.Equal(t, "ABC", event.ExternalMessageID)
	assert.Equal(t, "5511999@s.whatsapp.net", event.ChatIdentifier)
	assert.True(t, event.Incoming())
	assert.Equal(t, models.ContentFile, event.Content.Type)
	assert.Equal(t, "report.pdf", event.Content.FileName)
	assert.Equal(t, "application/pdf", event.Content.MimeType)
	assert.Equal(t, "https://cdn/r.pdf", event.Content.MediaRef)
	assert.Equal(t, "Ana", event.PushName)
	assert.Equal(t, int64(1700000000), event.Timestamp.Unix())
	assert.Contains(t, event.ExternalIDVariants, "false_5511999@c.us_ABC")
	assert.False(t, Ignored(event.Content.Type, event.Content.Text))
}

func TestEvent_LocationDefaults(t *testing.T) {
	data := mustDecode(t, `{"key":{"id":"L"},"message":{"locationMessage":{"degreesLatitude":-23.5,"degreesLongitude":-46.6}}}`)

	event := Event(models.EventCreated, data, time.Now())

	require.NotNil(t, event.Content.Location)
	assert.Equal(t, "-23.500000, -46.600000", event.Content.Location.Name)
	assert.Equal(t, "https://maps.google.com/?q=-23.5,-46.6", event.Content.Location.URL)
	assert.Equal(t, "-23.500000, -46.600000", LocationTitle(event.Content.Location))
}

func TestEvent_Reaction(t *testing.T) {
	data := mustDecode(t, `{"key":{"id":"R"},"message":{"reactionMessage":{"text":"❤","key":{"id":"TARGET"}}}}`)

	event := Event(models.EventReaction, data, time.Now())

	assert.Equal(t, models.ContentReaction, event.Content.Type)
	assert.Equal(t, "TARGET", event.ReactionTo)
	assert.Equal(t, "❤", event.Content.Text)
}
