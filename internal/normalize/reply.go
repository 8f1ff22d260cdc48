package normalize

import (
	"github.com/mariovalmir/chatwoot/internal/jid"
	"github.com/mariovalmir/chatwoot/internal/payload"
)

var replyIDPaths = [][]string{
	{"contextInfo", "stanzaId"},
	{"contextInfo", "quotedMessage", "key", "id"},
	{"message", "extendedTextMessage", "contextInfo", "stanzaId"},
	{"message", "extendedTextMessage", "contextInfo", "quotedMessage", "key", "id"},
	{"context", "id"},
	{"quoted", "key", "id"},
	{"quotedMsgId"},
}

// ReplyToID returns the external id of the quoted message, or "".
func ReplyToID(data payload.Payload) string {
	for _, key := range []string{"replyTo", "reply_to"} {
		v := data.Get(key)
		if m := payload.AsMap(v); m != nil {
			if id := m.Str("id"); id != "" {
				return id
			}
			continue
		}
		if id := payload.String(v); id != "" {
			return id
		}
	}
	return data.First(replyIDPaths...)
}

var replyParticipantPaths = [][]string{
	{"replyTo", "participant"}, {"replyTo", "participantAlt"},
	{"quoted", "key", "participant"}, {"quoted", "key", "participantAlt"},
	{"context", "participant"},
	{"contextInfo", "participant"},
	{"contextInfo", "quotedMessage", "key", "participant"},
	{"contextInfo", "quotedMessage", "key", "participantAlt"},
	{"message", "extendedTextMessage", "contextInfo", "participant"},
	{"message", "extendedTextMessage", "contextInfo", "quotedMessage", "key", "participant"},
}

// ReplyParticipants collects every address the quoted message's author is
// referenced under, trimmed and without duplicates.
func ReplyParticipants(data payload.Payload) []string {
	var out []string
	for _, key := range []string{"replyTo", "reply_to"} {
		out = append(out, replyHashParticipants(data.Map(key))...)
	}

	ctx := data.Map("contextInfo")
	out = append(out, contextParticipants(ctx)...)
	out = append(out, contextParticipants(data.Map("message", "extendedTextMessage", "contextInfo"))...)
	out = append(out, replyHashParticipants(data.Map("message", "reactionMessage", "key"))...)

	for _, path := range replyParticipantPaths {
		out = append(out, data.Str(path...))
	}
	return jid.Unique(out)
}

func contextParticipants(ctx payload.Payload) []string {
	if ctx == nil {
		return nil
	}
	out := []string{ctx.Str("participant")}
	quoted := ctx.Map("quotedMessage")
	out = append(out, replyHashParticipants(quoted)...)
	if quoted != nil {
		out = append(out, replyHashParticipants(quoted.Map("key"))...)
	}
	return out
}

func replyHashParticipants(h payload.Payload) []string {
	if h == nil {
		return nil
	}
	return []string{
		h.Str("participant"),
		h.Str("participantAlt"),
		h.Str("key", "participant"),
		h.Str("key", "participantAlt"),
	}
}
