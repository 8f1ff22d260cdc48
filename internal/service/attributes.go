package service

import (
	"context"
	"strings"

	"github.com/mariovalmir/chatwoot/internal/identity"
	"github.com/mariovalmir/chatwoot/internal/jid"
	"github.com/mariovalmir/chatwoot/internal/models"
	"github.com/mariovalmir/chatwoot/internal/normalize"
	"github.com/mariovalmir/chatwoot/internal/payload"

	"github.com/sirupsen/logrus"
)

const phoneUnavailable = "Phone number is not available"

// contentAttributes builds the attributes stored with a new message.
func contentAttributes(ev *models.CanonicalMessageEvent) map[string]any {
	attrs := map[string]any{}
	if !ev.Timestamp.IsZero() {
		attrs["external_created_at"] = ev.Timestamp.Unix()
	}
	if ev.ReplyToID != "" {
		attrs["in_reply_to_external_id"] = ev.ReplyToID
	}
	if len(ev.ReplyToParticipants) > 0 {
		attrs["in_reply_to_participant"] = ev.ReplyToParticipants[0]
		attrs["in_reply_to_participants"] = ev.ReplyToParticipants
	}
	if ev.ParticipantIdentifier != "" {
		attrs["participant_jid"] = ev.ParticipantIdentifier
	}
	if ev.ParticipantAltIdentifier != "" {
		attrs["participant_alt_jid"] = ev.ParticipantAltIdentifier
	}
	if ev.Content.Type == models.ContentReaction {
		attrs["is_reaction"] = true
		if ev.ReactionTo != "" {
			attrs["in_reply_to"] = ev.ReactionTo
			attrs["in_reply_to_external_id"] = ev.ReactionTo
		}
	}
	if loc := ev.Content.Location; loc != nil {
		attrs["location"] = map[string]any{
			"latitude":  loc.Latitude,
			"longitude": loc.Longitude,
			"name":      loc.Name,
			"address":   loc.Address,
		}
	}
	if len(ev.Content.Contacts) > 0 {
		contacts := make([]any, 0, len(ev.Content.Contacts))
		for _, c := range ev.Content.Contacts {
			contacts = append(contacts, map[string]any{"display_name": c.Name, "vcard": c.VCard})
		}
		attrs["contacts"] = contacts
	}
	return attrs
}

// attachments builds the files, places and cards of a new message. A media
// reference the validator rejects marks the message unsupported instead.
func (s *Service) attachments(ctx context.Context, ev *models.CanonicalMessageEvent, msg *models.Message) []models.Attachment {
	c := ev.Content
	switch {
	case c.Type.IsMedia():
		if c.MediaRef == "" {
			return nil
		}
		if s.validator != nil {
			if err := s.validator.ValidateRef(ctx, c.MediaRef); err != nil {
				s.logger.WithFields(logrus.Fields{
					LogFieldMessageID:   maskMessageID(ctx, ev.ExternalMessageID),
					LogFieldMessageType: c.Type,
					"error":             err,
				}).Warn("Media reference rejected")
				msg.SetAttr("is_unsupported", true)
				return nil
			}
		}
		return []models.Attachment{{
			FileType:    s.media.FileType(c.Type),
			ExternalURL: c.MediaRef,
			Meta: map[string]any{
				"file_name":         s.media.FileName(c.Type, c.FileName, c.MimeType, ev.ExternalMessageID),
				"content_type":      s.media.ContentType(c.Type, c.MimeType),
				"is_recorded_audio": normalize.RecordedAudio(ev.Raw),
			},
		}}

	case c.Type == models.ContentLocation && c.Location != nil:
		lat, lng := c.Location.Latitude, c.Location.Longitude
		return []models.Attachment{{
			FileType:        models.FileTypeLocation,
			CoordinatesLat:  &lat,
			CoordinatesLong: &lng,
			FallbackTitle:   normalize.LocationTitle(c.Location),
			ExternalURL:     c.Location.URL,
		}}

	case c.Type == models.ContentContacts:
		var out []models.Attachment
		for _, contact := range c.Contacts {
			meta := map[string]any{"display_name": contact.Name}
			if len(contact.Phones) == 0 {
				out = append(out, models.Attachment{FileType: models.FileTypeContact, FallbackTitle: phoneUnavailable, Meta: meta})
				continue
			}
			for _, phone := range contact.Phones {
				out = append(out, models.Attachment{FileType: models.FileTypeContact, FallbackTitle: phone, Meta: meta})
			}
		}
		return out
	}
	return nil
}

// groupPrefix is the sender line put above incoming group messages:
// "**<phone> - <name>:**\n".
func (s *Service) groupPrefix(ctx context.Context, r *identity.Resolver, ev *models.CanonicalMessageEvent) string {
	phone := participantPhone(ctx, r, ev.ParticipantIdentifier, ev.ParticipantAltIdentifier)
	if phone != "" {
		phone = "+" + phone
	}
	name := participantName(ctx, r, ev)

	var core string
	switch {
	case phone != "" && name != "" && name != phone:
		core = phone + " - " + name
	case phone != "":
		core = phone
	default:
		core = name
	}
	if core == "" {
		return ""
	}
	return "**" + core + ":**\n"
}

// participantPhone returns the sender's digits, or "" when no address
// yields any.
func participantPhone(ctx context.Context, r *identity.Resolver, participant, alt string) string {
	for _, candidate := range []string{
		r.PhoneFromAnyJID(ctx, participant, alt),
		r.PhoneFromAnyJID(ctx, alt),
		jid.NormalizeNumber(alt),
	} {
		if candidate != "" && jid.Digits(candidate) == candidate {
			return candidate
		}
	}
	return ""
}

func participantName(ctx context.Context, r *identity.Resolver, ev *models.CanonicalMessageEvent) string {
	name := strings.TrimSpace(ev.PushName)
	if name == "" {
		name = r.CachedParticipantName(ctx, ev.ParticipantIdentifier)
	}
	if strings.Contains(name, "@") {
		if digits := jid.Digits(jid.Node(name)); digits != "" {
			return "+" + digits
		}
		return ""
	}
	return name
}

// storeParticipantMetadata merges the sender addresses an ack carries into
// the message attributes. It reports whether anything changed.
func storeParticipantMetadata(msg *models.Message, p payload.Payload) bool {
	participants := jid.Unique([]string{
		p.Str("participant"),
		p.Str("participantAlt"),
		p.Str("_data", "Info", "Sender"),
		p.Str("_data", "Info", "SenderAlt"),
		p.Str("from"),
		p.Str("to"),
	})
	if len(participants) == 0 {
		return false
	}

	changed := false
	var existing []string
	for _, v := range payload.Wrap(msg.Attr("in_reply_to_participants")) {
		existing = append(existing, payload.String(v))
	}
	merged := jid.Unique(append(existing, participants...))
	if len(merged) != len(jid.Unique(existing)) {
		msg.SetAttr("in_reply_to_participants", merged)
		changed = true
	}
	if payload.String(msg.Attr("participant_jid")) == "" {
		msg.SetAttr("participant_jid", participants[0])
		changed = true
	}
	if len(participants) > 1 && payload.String(msg.Attr("participant_alt_jid")) == "" {
		msg.SetAttr("participant_alt_jid", participants[1])
		changed = true
	}
	return changed
}
