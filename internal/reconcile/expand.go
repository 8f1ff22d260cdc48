// Package reconcile keeps a message's identity stable across the different
// id encodings gateways emit for it over its lifetime.
package reconcile

import (
	"strings"

	"github.com/mariovalmir/chatwoot/internal/jid"
	"github.com/mariovalmir/chatwoot/internal/payload"
)

var (
	idPaths = [][]string{
		{"waha_message_id"}, {"messageId"}, {"id"}, {"keyId"},
		{"key", "id"}, {"key", "ID"},
		{"message", "stanzaId"}, {"message", "stanzaID"}, {"message", "id"}, {"message", "key", "id"},
		{"key", "stanzaId"}, {"key", "stanzaID"}, {"key", "editedMessageId"}, {"key", "edited_message_id"},
		{"message", "editedMessageId"}, {"message", "edited_message_id"},
	}
	idListPaths = [][]string{
		{"message", "editedMessageIds"}, {"message", "edited_message_ids"},
	}
	editedKeyPaths = [][]string{
		{"message", "editedMessage", "key", "id"}, {"message", "editedMessage", "key", "ID"},
	}
	dataIDListPaths = [][]string{
		{"_data", "MessageIDs"}, {"_data", "messageIDs"}, {"_data", "messageIds"},
	}
	infoIDPaths = [][]string{
		{"_data", "Info", "ID"}, {"_data", "Info", "Id"}, {"_data", "Info", "id"},
		{"_data", "Info", "MessageID"}, {"_data", "Info", "messageId"}, {"_data", "Info", "ServerID"},
	}
	remotePaths = [][]string{
		{"remoteJid"}, {"remoteJidAlt"}, {"remoteJID"}, {"chatId"}, {"chat_id"}, {"chat"}, {"chatID"},
		{"from"}, {"to"}, {"key", "remoteJid"}, {"key", "remoteJID"},
		{"_data", "remoteJid"}, {"_data", "Info", "Chat"},
		{"message", "remoteJid"}, {"message", "remoteJID"},
	}
	participantPaths = [][]string{
		{"participant"}, {"participantAlt"}, {"author"}, {"sender"}, {"remoteParticipant"},
		{"key", "participant"}, {"key", "participantAlt"},
		{"_data", "Participant"}, {"_data", "participant"},
		{"_data", "Info", "Participant"}, {"_data", "Info", "participant"},
		{"_data", "Info", "Sender"}, {"_data", "Info", "SenderAlt"},
	}
	tokenPaths = [][]string{
		{"messageToken"}, {"message_token"}, {"token"}, {"key", "token"},
		{"_data", "messageToken"}, {"_data", "MessageToken"},
		{"revokedMessageId"}, {"revoked_message_id"},
	}
	lookupListPaths = [][]string{
		{"editLookupIds"}, {"edit_lookup_ids"}, {"waha_message_ids"},
	}
	lookupPaths = [][]string{
		{"waha_message_id"}, {"id"}, {"messageId"}, {"keyId"}, {"key", "id"},
	}
)

// ExpandMessageIDs derives every identifier under which the message described
// by p may be referenced later: the ids it carries, plus the composite
// "<fromMe>_<chat>_<token>[_<participant>]" forms built from each spelling of
// the chat and participant addresses. The result is deterministic, unique and
// in insertion order.
func ExpandMessageIDs(p payload.Payload) []string {
	if p == nil {
		return nil
	}

	var ids []string
	ids = append(ids, p.Strings("waha_message_ids")...)
	for _, path := range idPaths {
		ids = appendStr(ids, p.Str(path...))
	}
	for _, path := range idListPaths {
		ids = append(ids, p.Strings(path...)...)
	}
	for _, path := range editedKeyPaths {
		ids = appendStr(ids, p.Str(path...))
	}
	for _, path := range dataIDListPaths {
		ids = append(ids, p.Strings(path...)...)
	}
	for _, path := range infoIDPaths {
		ids = appendStr(ids, p.Str(path...))
	}

	var remotes, participants, tokens, prefixes []string
	for _, path := range remotePaths {
		remotes = appendStr(remotes, p.Str(path...))
	}
	for _, path := range participantPaths {
		participants = appendStr(participants, p.Str(path...))
	}

	for _, id := range ids {
		if !strings.Contains(id, "_") {
			tokens = append(tokens, id)
		}
	}
	for _, path := range tokenPaths {
		tokens = appendStr(tokens, p.Str(path...))
	}

	for _, id := range append([]string(nil), ids...) {
		c, ok := ParseComposite(id)
		if !ok {
			continue
		}
		prefixes = append(prefixes, c.FromMe)
		remotes = appendStr(remotes, c.Remote)
		tokens = appendStr(tokens, c.Token)
		if len(c.Participants) > 0 {
			participants = append(participants, c.Participants...)
			if c.Remote != "" && c.Token != "" {
				ids = append(ids, c.Base())
			}
		}
	}

	if v, known := fromMeOf(p); known {
		prefixes = append(prefixes, boolToken(v))
	} else {
		prefixes = append(prefixes, "true", "false")
	}
	prefixes = jid.Unique(prefixes)

	remoteVariants := variantsOf(remotes)
	participantVariants := variantsOf(participants)
	tokens = jid.Unique(tokens)

	if len(remoteVariants) > 0 && len(tokens) > 0 {
		for _, prefix := range prefixes {
			for _, remote := range remoteVariants {
				for _, token := range tokens {
					base := prefix + "_" + remote + "_" + token
					ids = append(ids, base)
					for _, participant := range participantVariants {
						ids = append(ids, base+"_"+participant)
					}
				}
			}
		}
	}

	return jid.Unique(ids)
}

// LookupIDs lists the alternate ids an update or delete event carries for the
// message it targets, excluding primary.
func LookupIDs(p payload.Payload, primary string) []string {
	if p == nil {
		return nil
	}

	var ids []string
	for _, path := range lookupListPaths {
		ids = append(ids, p.Strings(path...)...)
	}
	for _, path := range lookupPaths {
		ids = appendStr(ids, p.Str(path...))
	}
	for _, path := range dataIDListPaths {
		ids = append(ids, p.Strings(path...)...)
	}

	primary = strings.TrimSpace(primary)
	out := jid.Unique(ids)
	if primary == "" {
		return out
	}
	filtered := out[:0]
	for _, id := range out {
		if id != primary {
			filtered = append(filtered, id)
		}
	}
	return filtered
}

// PrimaryID returns the id an event is keyed by.
func PrimaryID(p payload.Payload) string {
	if p == nil {
		return ""
	}
	return p.First(payload.P("keyId"), payload.P("messageId"), payload.P("key", "id"), payload.P("id"))
}

// Composite is a parsed "<fromMe>_<chat>_<token>[_<participant>...]" id.
type Composite struct {
	FromMe       string
	Remote       string
	Token        string
	Participants []string
}

// Base is the three part form without participants.
func (c Composite) Base() string {
	return c.FromMe + "_" + c.Remote + "_" + c.Token
}

// ParseComposite splits id when it is a composite. The flag must be exactly
// "true" or "false".
func ParseComposite(id string) (Composite, bool) {
	fragments := strings.Split(id, "_")
	for len(fragments) > 0 && fragments[len(fragments)-1] == "" {
		fragments = fragments[:len(fragments)-1]
	}
	if len(fragments) < 3 {
		return Composite{}, false
	}
	if fragments[0] != "true" && fragments[0] != "false" {
		return Composite{}, false
	}

	c := Composite{FromMe: fragments[0], Remote: fragments[1], Token: fragments[2]}
	for _, f := range fragments[3:] {
		if f != "" {
			c.Participants = append(c.Participants, f)
		}
	}
	return c, true
}

// fromMeOf reads fromMe, falling back to key.fromMe. Values that are present
// but not a recognised false spelling count as true.
func fromMeOf(p payload.Payload) (bool, bool) {
	v := p.Get("fromMe")
	if v == nil {
		v = p.Get("key", "fromMe")
	}
	if v == nil {
		return false, false
	}

	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch t {
		case "", "0", "f", "F", "false", "FALSE", "off", "OFF":
			return false, true
		}
		return true, true
	default:
		if n, ok := payload.Float(t); ok {
			return n != 0, true
		}
		return true, true
	}
}

func boolToken(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func variantsOf(values []string) []string {
	var out []string
	for _, v := range values {
		out = append(out, jid.Variants(v)...)
	}
	return jid.Unique(out)
}

func appendStr(list []string, v string) []string {
	if v = strings.TrimSpace(v); v != "" {
		return append(list, v)
	}
	return list
}
