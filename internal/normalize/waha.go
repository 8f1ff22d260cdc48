package normalize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mariovalmir/chatwoot/internal/jid"
	"github.com/mariovalmir/chatwoot/internal/models"
	"github.com/mariovalmir/chatwoot/internal/payload"
	"github.com/mariovalmir/chatwoot/internal/reconcile"
)

// ProtocolKind is the action a WAHA protocol message carries.
type ProtocolKind string

const (
	ProtocolNone   ProtocolKind = ""
	ProtocolEdit   ProtocolKind = "edited"
	ProtocolRevoke ProtocolKind = "revoked"
)

const (
	protocolTypeRevoke = 0
	protocolTypeEdit   = 14
)

// NormalizeFromMe converts the boolean spellings to a bool and returns any
// other value unchanged.
func NormalizeFromMe(v any) any {
	if b, ok := payload.Bool(v); ok {
		return b
	}
	return v
}

// PrepareAny readies a message.any payload: fromMe is copied from
// key.fromMe when missing and both are normalized. The input is not
// modified.
func PrepareAny(p payload.Payload) payload.Payload {
	out := p.Clone()
	if out == nil {
		return nil
	}
	if out.Get("fromMe") == nil {
		if v := out.Get("key", "fromMe"); v != nil {
			out["fromMe"] = v
		}
	}
	if out.Has("fromMe") {
		out["fromMe"] = NormalizeFromMe(out["fromMe"])
	}
	if key := out.Map("key"); key != nil && key.Has("fromMe") {
		key["fromMe"] = NormalizeFromMe(key["fromMe"])
	}
	return out
}

func protocolMessage(p payload.Payload) payload.Payload {
	return firstMap(p.Map("_data", "Message", "protocolMessage"), p.Map("Message", "protocolMessage"))
}

// ProtocolType reports whether a WAHA message event is an edit or a revoke
// in disguise.
func ProtocolType(p payload.Payload) ProtocolKind {
	pm := protocolMessage(p)
	if len(pm) == 0 {
		return ProtocolNone
	}
	if n, ok := payload.Int(pm.Get("type")); ok {
		switch n {
		case protocolTypeEdit:
			return ProtocolEdit
		case protocolTypeRevoke:
			return ProtocolRevoke
		}
		return ProtocolNone
	}
	switch strings.ToUpper(pm.Str("type")) {
	case "MESSAGE_EDIT":
		return ProtocolEdit
	case "REVOKE":
		return ProtocolRevoke
	}
	return ProtocolNone
}

// BuildWAHAMessage rebuilds a WAHA message payload in the Evolution shape.
// It returns nil when no chat address can be found.
func BuildWAHAMessage(p payload.Payload) payload.Payload {
	if len(p) == 0 {
		return nil
	}

	raw := p.Map("_data").Clone()
	if raw == nil {
		raw = payload.Payload{}
	}
	info := raw.Map("Info")
	if info == nil {
		info = payload.Payload{}
	}

	block := firstMap(raw.Map("Message"), raw.Map("message"), raw.Map("RawMessage"), raw.Map("rawMessage"), p.Map("message")).Clone()
	if block == nil {
		block = payload.Payload{}
	}
	if len(block) == 0 && p.Present("body") {
		block["conversation"] = p.Str("body")
	}

	var locationHash payload.Payload
	loc := wahaLocation(p, block, raw)
	if loc != nil {
		block["locationMessage"] = loc
		locationHash = payload.Payload{}
		setNonBlank(locationHash, "latitude", loc["degreesLatitude"])
		setNonBlank(locationHash, "longitude", loc["degreesLongitude"])
		setNonBlank(locationHash, "name", loc["name"])
		setNonBlank(locationHash, "address", loc["address"])
		setNonBlank(locationHash, "url", loc["url"])
	}

	messageType := wahaMessageType(p, block, loc)

	remote := p.First(
		payload.P("_data", "Info", "Chat"), payload.P("chatId"), payload.P("jid"),
		payload.P("key", "remoteJid"), payload.P("key", "remoteJID"),
		payload.P("from"), payload.P("to"),
		payload.P("replyTo", "participant"), payload.P("replyTo", "participantAlt"),
	)
	if remote == "" {
		return nil
	}

	remoteAlt := info.First(payload.P("RecipientAlt"), payload.P("SenderAlt"))
	participant := firstNonBlank(p.Str("participant"), info.Str("Sender"))
	participantAlt := firstNonBlank(p.Str("participantAlt"), info.Str("SenderAlt"))
	fromMe := NormalizeFromMe(p.Get("fromMe"))

	var timestamp any = p.Get("timestamp")
	if n, ok := payload.Int(timestamp); ok {
		timestamp = n
	} else if f, ok := payload.Float(timestamp); ok {
		timestamp = int64(f)
	}

	replyRef := wahaReplyReference(p, raw, block)
	replyID := wahaReplyID(replyRef, p, block, raw)
	if !payload.Present(replyRef) && replyID != "" {
		replyRef = payload.Payload{"id": replyID}
	}

	ids := []string{p.Str("id"), info.Str("ID")}
	ids = append(ids, raw.Strings("MessageIDs")...)
	ids = append(ids, raw.Strings("messageIDs")...)
	ids = append(ids, raw.Strings("messageIds")...)
	ids = jid.Unique(append(ids, replyID))

	keyID := firstNonBlank(p.Str("id"), info.Str("ID"))
	if keyID == "" && len(ids) > 0 {
		keyID = ids[0]
	}

	key := payload.Payload{}
	setNonBlank(key, "id", keyID)
	setNonBlank(key, "remoteJid", remote)
	setNonBlank(key, "fromMe", fromMe)
	setNonBlank(key, "participant", participant)
	if v := p.Get("key", "fromMe"); v != nil {
		key["fromMe"] = NormalizeFromMe(v)
	}

	out := payload.Payload{}
	setNonBlank(out, "id", keyID)
	setNonBlank(out, "keyId", keyID)
	setNonBlank(out, "messageId", keyID)
	out["key"] = key
	out["remoteJid"] = remote
	setNonBlank(out, "remoteJidAlt", remoteAlt)
	setNonBlank(out, "participant", participant)
	setNonBlank(out, "participantAlt", participantAlt)
	setNonBlank(out, "fromMe", fromMe)
	setNonBlank(out, "hasMedia", p.Get("hasMedia"))
	setNonBlank(out, "media", p.Get("media"))
	setNonBlank(out, "pushName", firstNonBlank(info.Str("PushName"), p.Str("pushName")))
	setNonBlank(out, "status", firstValue(p, payload.P("status"), payload.P("ackName"), payload.P("ack")))
	setNonBlank(out, "ack", p.Get("ack"))
	setNonBlank(out, "ackName", p.Get("ackName"))
	setNonBlank(out, "messageTimestamp", timestamp)
	setNonBlank(out, "timestamp", timestamp)
	out["message"] = block
	setNonBlank(out, "body", p.Get("body"))
	setNonBlank(out, "replyTo", replyRef)
	setNonBlank(out, "source", p.Get("source"))
	setNonBlank(out, "origin", p.Get("origin"))
	if len(ids) > 0 {
		out["waha_message_id"] = ids[0]
		out["waha_message_ids"] = ids
	}
	out["_data"] = raw
	out["messageType"] = string(messageType)
	setNonBlank(out, "location", locationHash)
	return out
}

func wahaMessageType(p, block, loc payload.Payload) models.ContentType {
	if t, ok := ExplicitType(p); ok {
		return t
	}
	if loc != nil || block.Present("liveLocationMessage") {
		return models.ContentLocation
	}
	if block.Present("contactMessage") || block.Present("contactsArrayMessage", "contacts") {
		return models.ContentContacts
	}
	return InferType(block)
}

func wahaLocation(p, block, raw payload.Payload) payload.Payload {
	candidates := []any{
		block.Get("locationMessage"), block.Get("liveLocationMessage"),
		p.Get("location"), p.Get("locationMessage"), p.Get("liveLocationMessage"),
		p.Get("message", "locationMessage"), p.Get("message", "liveLocationMessage"),
		p.Get("Message", "locationMessage"), p.Get("Message", "liveLocationMessage"),
		p.Get("RawMessage", "locationMessage"), p.Get("RawMessage", "liveLocationMessage"),
		raw.Get("Location"), raw.Get("location"),
		raw.Get("Message", "locationMessage"), raw.Get("Message", "liveLocationMessage"),
		raw.Get("message", "locationMessage"), raw.Get("message", "liveLocationMessage"),
		raw.Get("RawMessage", "locationMessage"), raw.Get("RawMessage", "liveLocationMessage"),
	}
	for _, c := range candidates {
		if loc := normalizeLocation(payload.AsMap(c)); loc != nil {
			return loc
		}
	}
	return nil
}

// normalizeLocation maps the coordinate aliases onto degreesLatitude and
// degreesLongitude and fills in a name and a map URL. It returns nil without
// both coordinates.
func normalizeLocation(c payload.Payload) payload.Payload {
	if c == nil {
		return nil
	}
	latV := firstValue(c, payload.P("degreesLatitude"), payload.P("latitude"), payload.P("lat"))
	lngV := firstValue(c, payload.P("degreesLongitude"), payload.P("longitude"), payload.P("lng"), payload.P("lon"), payload.P("long"))
	if !payload.Present(latV) || !payload.Present(lngV) {
		return nil
	}
	lat, ok := payload.Float(latV)
	if !ok {
		return nil
	}
	lng, ok := payload.Float(lngV)
	if !ok {
		return nil
	}

	name := c.First(payload.P("name"), payload.P("title"), payload.P("label"))
	address := c.First(payload.P("address"), payload.P("description"), payload.P("addressLine"), payload.P("address_line"))
	if name == "" && address == "" {
		name = fmt.Sprintf("%.6f, %.6f", lat, lng)
	}
	url := c.First(
		payload.P("url"), payload.P("mapUrl"), payload.P("map_url"),
		payload.P("externalUrl"), payload.P("external_url"),
		payload.P("link"), payload.P("googleMapsUri"), payload.P("google_maps_uri"),
	)
	if url == "" {
		url = "https://maps.google.com/?q=" + formatCoord(lat) + "," + formatCoord(lng)
	}

	out := payload.Payload{
		"degreesLatitude":  lat,
		"degreesLongitude": lng,
		"url":              url,
	}
	setNonBlank(out, "name", name)
	setNonBlank(out, "address", address)
	setNonBlank(out, "accuracyInMeters", firstValue(c, payload.P("accuracyInMeters"), payload.P("accuracy")))
	setNonBlank(out, "speedMetersPerSecond", c.Get("speedMetersPerSecond"))
	setNonBlank(out, "degreesClockwiseFromMagneticNorth", c.Get("degreesClockwiseFromMagneticNorth"))
	setNonBlank(out, "jpegThumbnail", firstValue(c, payload.P("jpegThumbnail"), payload.P("JPEGThumbnail")))
	return out
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func wahaReplyReference(p, raw, block payload.Payload) any {
	for _, key := range []string{"replyTo", "reply_to", "quoted", "quotedMessage", "quoted_message", "reply", "inReplyTo"} {
		if v := p.Get(key); payload.Present(v) {
			return firstElement(v)
		}
	}
	candidates := []any{
		p.Get("context"), p.Get("contextInfo"), p.Get("context_info"),
		p.Get("quotedInfo"), p.Get("quoted_info"),
		block.Get("contextInfo"), block.Get("extendedTextMessage", "contextInfo"),
		raw.Get("ContextInfo"), raw.Get("Message", "contextInfo"), raw.Get("message", "contextInfo"),
	}
	for _, c := range candidates {
		if v := firstElement(c); payload.Present(v) {
			return v
		}
	}
	return nil
}

func wahaReplyID(ref any, p, block, raw payload.Payload) string {
	var refs []string
	if m := payload.AsMap(ref); m != nil {
		for _, path := range [][]string{
			{"id"}, {"messageId"}, {"message_id"}, {"keyId"}, {"key_id"}, {"key", "id"},
			{"stanzaId"}, {"stanza_id"}, {"quotedMessageId"}, {"quoted_message_id"},
			{"quotedMessage", "key", "id"},
		} {
			refs = append(refs, m.Str(path...))
		}
	} else {
		refs = append(refs, payload.String(ref))
	}
	for _, key := range []string{"quotedMsgId", "quoted_message_id", "quotedMessageId", "quotedStanzaId", "referencedMessageId", "referenced_message_id"} {
		refs = append(refs, p.Str(key))
	}
	refs = append(refs,
		block.Str("contextInfo", "stanzaId"),
		block.Str("extendedTextMessage", "contextInfo", "stanzaId"),
		block.Str("extendedTextMessage", "contextInfo", "quotedMessage", "key", "id"),
		raw.Str("ContextInfo", "stanzaId"),
		raw.Str("Message", "contextInfo", "stanzaId"),
		raw.Str("Message", "contextInfo", "quotedMessage", "key", "id"),
	)
	return firstNonBlank(refs...)
}

// BuildWAHAReaction rebuilds a message.reaction payload as an Evolution
// reactionMessage. It returns nil without reaction.messageId.
func BuildWAHAReaction(p payload.Payload) payload.Payload {
	reaction := p.Map("reaction")
	messageID := reaction.Str("messageId")
	if messageID == "" {
		return nil
	}

	p = p.Clone()
	if p.Has("fromMe") {
		p["fromMe"] = NormalizeFromMe(p["fromMe"])
	}

	key := reaction.Map("key").Clone()
	if key == nil {
		key = payload.Payload{}
	}
	remote := firstNonBlank(key.Str("remoteJid"), p.Str("chatId"), p.Str("from"), p.Str("to"))
	participant := firstNonBlank(key.Str("participant"), p.Str("participant"))
	participantAlt := firstNonBlank(key.Str("participantAlt"), p.Str("participantAlt"))

	key.SetIfBlank(messageID, "id")
	key.SetIfBlank(remote, "remoteJid")
	key.SetIfBlank(participant, "participant")
	key.SetIfBlank(participantAlt, "participantAlt")
	if key.Has("fromMe") {
		key["fromMe"] = NormalizeFromMe(key["fromMe"])
	}

	rm := payload.Payload{"key": key}
	setNonBlank(rm, "text", reaction.Get("text"))
	if ts, ok := payload.Int(p.Get("timestamp")); ok && ts > 0 {
		rm["senderTimestampMs"] = ts * 1000
	}

	p["message"] = payload.Payload{"reactionMessage": rm}
	p["body"] = reaction.Str("text")
	p["replyTo"] = payload.Payload{"id": messageID, "key": key}
	p["quotedMsgId"] = messageID
	p["quoted_message_id"] = messageID
	setNonBlank(p, "participant", participant)
	setNonBlank(p, "participantAlt", participantAlt)

	// A reaction without _data.Message must still infer as a reaction.
	if raw := p.Map("_data"); raw != nil {
		if !raw.Present("Message", "reactionMessage") && !raw.Present("message", "reactionMessage") {
			delete(raw, "Message")
			delete(raw, "message")
		}
	}
	return BuildWAHAMessage(p)
}

// BuildWAHARevoke rebuilds a message.revoked payload as a delete addressed
// by the legacy composite id of the revoked message.
func BuildWAHARevoke(p payload.Payload) payload.Payload {
	if len(p) == 0 {
		return nil
	}
	after := p.Map("after")

	sourceID := firstNonBlank(p.Str("id"), after.Str("id"))
	revokedID := p.First(payload.P("revokedMessageId"), payload.P("revoked_message_id"))

	remote := firstNonBlank(after.Str("_data", "Info", "Chat"), p.Str("chatId"), p.Str("from"))

	protocol := protocolMessage(p)
	protocolKey := protocol.Map("key")
	protocolID := protocolKey.First(payload.P("id"), payload.P("ID"))

	sourceID = firstNonBlank(sourceID, protocolID)
	remote = firstNonBlank(remote, protocolKey.Str("remoteJid"), protocolKey.Str("remoteJID"))
	participant := firstNonBlank(p.Str("participant"), after.Str("participant"), protocolKey.Str("participant"))

	var fromMe any
	switch {
	case p.Has("fromMe"):
		fromMe = NormalizeFromMe(p["fromMe"])
	case after.Has("fromMe"):
		fromMe = NormalizeFromMe(after["fromMe"])
	case protocolKey.Has("fromMe"):
		fromMe = NormalizeFromMe(protocolKey["fromMe"])
	}

	prefix := compositePrefix(fromMe, p.Str("id"))
	legacy := legacyCompositeID(prefix, remote, firstNonBlank(revokedID, protocolID))
	if legacy != "" {
		sourceID = legacy
	}
	if sourceID == "" && revokedID == "" {
		return nil
	}

	keyID := firstNonBlank(sourceID, revokedID, protocolID)
	remoteAlt := firstNonBlank(after.Str("remoteJidAlt"), p.Str("remoteJidAlt"))
	participantAlt := firstNonBlank(after.Str("participantAlt"), p.Str("participantAlt"))
	rawData := firstValue(after, payload.P("_data"))
	if rawData == nil {
		rawData = p.Get("_data")
	}

	ids := []string{sourceID, revokedID, after.Str("id"), legacy}
	ids = append(ids, protocolKey.Str("id"), protocolKey.Str("ID"), p.Str("_data", "Info", "ID"))

	seedKey := payload.Payload{}
	setNonBlank(seedKey, "id", keyID)
	setNonBlank(seedKey, "remoteJid", remote)
	setNonBlank(seedKey, "remoteJidAlt", remoteAlt)
	setNonBlank(seedKey, "fromMe", fromMe)
	setNonBlank(seedKey, "participant", participant)
	setNonBlank(seedKey, "participantAlt", participantAlt)

	seed := payload.Payload{"key": seedKey}
	setNonBlank(seed, "id", firstNonBlank(sourceID, revokedID, after.Str("id")))
	setNonBlank(seed, "keyId", keyID)
	setNonBlank(seed, "messageId", keyID)
	setNonBlank(seed, "remoteJid", remote)
	setNonBlank(seed, "remoteJidAlt", remoteAlt)
	setNonBlank(seed, "participant", participant)
	setNonBlank(seed, "participantAlt", participantAlt)
	setNonBlank(seed, "from", p.Get("from"))
	setNonBlank(seed, "to", p.Get("to"))
	setNonBlank(seed, "chatId", p.Get("chatId"))
	setNonBlank(seed, "chat_id", p.Get("chat_id"))
	setNonBlank(seed, "revokedMessageId", revokedID)
	setNonBlank(seed, "revoked_message_id", revokedID)
	setNonBlank(seed, "_data", rawData)
	ids = jid.Unique(append(ids, reconcile.ExpandMessageIDs(seed)...))

	key := payload.Payload{}
	setNonBlank(key, "id", keyID)
	setNonBlank(key, "remoteJid", remote)
	setNonBlank(key, "fromMe", fromMe)
	setNonBlank(key, "participant", participant)

	out := payload.Payload{"key": key}
	setNonBlank(out, "id", firstNonBlank(sourceID, revokedID))
	setNonBlank(out, "keyId", keyID)
	setNonBlank(out, "messageId", keyID)
	setNonBlank(out, "remoteJid", remote)
	setNonBlank(out, "participant", participant)
	setNonBlank(out, "fromMe", fromMe)
	if len(ids) > 0 {
		out["waha_message_id"] = firstComposite(ids)
		out["waha_message_ids"] = ids
		out["editLookupIds"] = ids
	}
	setNonBlank(out, "_data", rawData)
	return out
}

// BuildWAHAEdit rebuilds a message.edited payload (or a protocol edit) as
// an Evolution update addressed to the original message.
func BuildWAHAEdit(p payload.Payload) payload.Payload {
	if len(p) == 0 {
		return nil
	}
	after := p.Map("after")
	candidates := []payload.Payload{after, p.Map("message"), p.Map("data"), p}

	var merged payload.Payload
	for _, c := range candidates {
		if len(c) > 0 {
			merged = c.Clone()
			break
		}
	}
	for _, c := range candidates {
		for k, v := range c {
			if !merged.Present(k) {
				merged[k] = v
			}
		}
	}
	for _, k := range []string{"id", "from", "to", "body", "timestamp", "participant", "ack", "ackName", "editedMessageId"} {
		if !merged.Present(k) && p.Has(k) {
			merged[k] = p[k]
		}
	}
	if !merged.Present("fromMe") && p.Has("fromMe") {
		merged["fromMe"] = p["fromMe"]
	}
	if !merged.Present("_data") {
		if after.Present("_data") {
			merged["_data"] = after["_data"]
		} else if p.Has("_data") {
			merged["_data"] = p["_data"]
		}
	}

	protocol := firstMap(protocolMessage(merged), protocolMessage(p))
	protocolKey := protocol.Map("key")

	data := BuildWAHAMessage(merged)
	if data == nil {
		return nil
	}

	var fromMe, known bool
	switch {
	case merged.Has("fromMe"):
		fromMe, known = payload.Bool(merged["fromMe"])
	case p.Has("fromMe"):
		fromMe, known = payload.Bool(p["fromMe"])
	}
	if known {
		data["fromMe"] = fromMe
		keyOf(data)["fromMe"] = fromMe
	}

	remote := firstNonBlank(
		data.Str("remoteJid"), merged.Str("remoteJid"), after.Str("remoteJid"),
		protocolKey.Str("remoteJid"), protocolKey.Str("remoteJID"),
		protocol.Str("remoteJid"), protocol.Str("remoteJID"),
	)
	if remote == "" && known {
		if fromMe {
			remote = merged.Str("to")
		} else {
			remote = merged.Str("from")
		}
	}
	remote = firstNonBlank(remote, p.Str("from"), p.Str("to"))
	if remote != "" {
		data["remoteJid"] = remote
		keyOf(data).SetIfBlank(remote, "remoteJid")
	}

	participant := firstNonBlank(merged.Str("participant"), p.Str("participant"), protocolKey.Str("participant"))
	if participant != "" {
		data["participant"] = participant
		keyOf(data).SetIfBlank(participant, "participant")
	}

	editedID := firstNonBlank(
		merged.Str("editedMessageId"), p.Str("editedMessageId"), after.Str("editedMessageId"),
		protocol.Str("editedMessageId"),
		protocol.Str("editedMessage", "key", "id"), protocol.Str("editedMessage", "key", "ID"),
	)
	if editedID == "" {
		for _, id := range []string{protocolKey.Str("id"), protocolKey.Str("ID")} {
			if id != "" && id != data.Str("id") {
				editedID = id
				break
			}
		}
	}

	var fromMeAny any
	if known {
		fromMeAny = fromMe
	}
	legacy := legacyCompositeID(compositePrefix(fromMeAny, p.Str("id")), remote, editedID)
	original := firstNonBlank(
		legacy, p.Str("id"), merged.Str("id"), after.Str("id"),
		merged.Str("keyId"), merged.Str("messageId"),
		protocolKey.Str("id"), protocolKey.Str("ID"), data.Str("id"),
	)
	if original != "" {
		data["id"] = original
		data["keyId"] = original
		data["messageId"] = original
		keyOf(data)["id"] = original
	}

	if body := firstNonBlank(merged.Str("body"), p.Str("body")); body != "" {
		data["editedMessage"] = payload.Payload{"conversation": body}
		if msg := data.Map("message"); msg != nil {
			msg.SetIfBlank(body, "conversation")
		} else {
			data["message"] = payload.Payload{"conversation": body}
		}
		data["body"] = body
	} else if data.Present("message") {
		data.SetIfBlank(data.Map("message"), "editedMessage")
	}
	if editedID != "" {
		data.SetIfBlank(editedID, "editedMessageId")
		data.SetIfBlank(data.Map("message"), "editedMessage")
	}

	ids := data.Strings("waha_message_ids")
	ids = append(ids,
		data.Str("waha_message_id"), merged.Str("id"), p.Str("id"),
		merged.Str("editedMessageId"), p.Str("editedMessageId"),
		editedID, original, legacy,
		protocolKey.Str("id"), protocolKey.Str("ID"), protocol.Str("id"), protocol.Str("ID"),
		merged.Str("_data", "Info", "ID"), p.Str("_data", "Info", "ID"), after.Str("_data", "Info", "ID"),
	)
	ids = jid.Unique(ids)
	if len(ids) == 0 {
		return data
	}

	remoteAlt := firstNonBlank(data.Str("remoteJidAlt"), merged.Str("remoteJidAlt"), after.Str("remoteJidAlt"), p.Str("remoteJidAlt"))
	participantAlt := firstNonBlank(data.Str("participantAlt"), merged.Str("participantAlt"), after.Str("participantAlt"), p.Str("participantAlt"))
	fromMeValue := data.Get("fromMe")
	if known {
		fromMeValue = fromMe
	}

	key := keyOf(data)
	key.SetIfBlank(remote, "remoteJid")
	key.SetIfBlank(participant, "participant")
	key.SetIfBlank(participantAlt, "participantAlt")
	if fromMeValue != nil {
		key["fromMe"] = fromMeValue
	}

	seed := payload.Payload{
		"waha_message_ids": ids,
		"waha_message_id":  ids[0],
		"editLookupIds":    ids,
		"key":              key,
	}
	setNonBlank(seed, "id", firstNonBlank(original, data.Str("id")))
	setNonBlank(seed, "messageId", firstNonBlank(original, data.Str("messageId")))
	setNonBlank(seed, "keyId", firstNonBlank(original, data.Str("keyId")))
	setNonBlank(seed, "remoteJid", remote)
	setNonBlank(seed, "remoteJidAlt", remoteAlt)
	setNonBlank(seed, "participant", participant)
	setNonBlank(seed, "participantAlt", participantAlt)
	setNonBlank(seed, "from", p.Get("from"))
	setNonBlank(seed, "to", p.Get("to"))
	setNonBlank(seed, "chatId", firstValue(merged, payload.P("chatId")))
	setNonBlank(seed, "chat_id", firstValue(merged, payload.P("chat_id")))
	setNonBlank(seed, "fromMe", fromMeValue)
	setNonBlank(seed, "editedMessageId", editedID)
	setNonBlank(seed, "protocolMessage", protocol)
	setNonBlank(seed, "_data", firstValue(merged, payload.P("_data")))
	ids = jid.Unique(append(ids, reconcile.ExpandMessageIDs(seed)...))

	data.SetIfBlank(remoteAlt, "remoteJidAlt")
	data.SetIfBlank(participantAlt, "participantAlt")
	if fromMeValue != nil {
		data["fromMe"] = fromMeValue
	}
	data["waha_message_ids"] = ids
	data.SetIfBlank(ids[0], "waha_message_id")
	data["editLookupIds"] = ids
	return data
}

// compositePrefix is the fromMe flag of a composite id: the known value,
// else the first segment of id, else "false".
func compositePrefix(fromMe any, id string) string {
	if b, ok := payload.Bool(fromMe); ok {
		return boolFlag(b)
	}
	if head, _, _ := strings.Cut(id, "_"); head != "" {
		return head
	}
	return "false"
}

// legacyCompositeID builds "<prefix>_<chat as @c.us>_<id>".
func legacyCompositeID(prefix, remote, id string) string {
	if remote == "" || id == "" {
		return ""
	}
	return prefix + "_" + jid.LegacyUserJID(remote) + "_" + id
}

func firstComposite(ids []string) string {
	for _, id := range ids {
		if strings.Contains(id, "_") {
			return id
		}
	}
	if len(ids) > 0 {
		return ids[0]
	}
	return ""
}

func boolFlag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func keyOf(data payload.Payload) payload.Payload {
	key := data.Map("key")
	if key == nil {
		key = payload.Payload{}
		data["key"] = key
	}
	return key
}

func firstMap(candidates ...payload.Payload) payload.Payload {
	for _, c := range candidates {
		if len(c) > 0 {
			return c
		}
	}
	return nil
}

func firstValue(p payload.Payload, paths ...[]string) any {
	for _, path := range paths {
		if v := p.Get(path...); v != nil {
			return v
		}
	}
	return nil
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func firstElement(v any) any {
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return nil
		}
		return list[0]
	}
	return v
}

// setNonBlank stores v unless it is nil, a blank string or an empty
// object. false and zero are kept.
func setNonBlank(m payload.Payload, key string, v any) {
	switch t := v.(type) {
	case nil:
		return
	case string:
		if strings.TrimSpace(t) == "" {
			return
		}
	case payload.Payload:
		if len(t) == 0 {
			return
		}
	case map[string]any:
		if len(t) == 0 {
			return
		}
	case []string:
		if len(t) == 0 {
			return
		}
	}
	m[key] = v
}
