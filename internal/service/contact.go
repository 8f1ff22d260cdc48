package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mariovalmir/chatwoot/internal/constants"
	apperrors "github.com/mariovalmir/chatwoot/internal/errors"
	"github.com/mariovalmir/chatwoot/internal/identity"
	"github.com/mariovalmir/chatwoot/internal/jid"
	"github.com/mariovalmir/chatwoot/internal/models"
	"github.com/mariovalmir/chatwoot/internal/payload"

	"github.com/sirupsen/logrus"
)

// ProfileRefreshInterval is how long a fetched profile picture is trusted.
var ProfileRefreshInterval = time.Duration(constants.DefaultProfileRefreshHours) * time.Hour

var (
	profilePicKeys      = []string{"profilepicurl", "profile_picture_url", "profilepictureurl", "profilepicture", "avatarurl", "avatar_url", "profilephoto", "profilephotourl", "profile_photo_url", "url"}
	profilePicThumbKeys = []string{"eurl", "url", "link", "previewurl", "preview_url"}
)

// contactTarget is the contact a message event belongs to.
type contactTarget struct {
	contact      *models.Contact
	contactInbox *models.ContactInbox
}

// ensureContact finds or creates the contact of chat. It returns a nil
// target when chat cannot be keyed.
func (s *Service) ensureContact(ctx context.Context, req *Request, r *identity.Resolver, chat string, incoming bool) (*contactTarget, error) {
	data := req.Data

	if jid.IsGroup(chat) {
		subject := r.EnsureGroupSubject(ctx, chat)
		ci, contact, err := s.findOrCreateContact(ctx, req.Inbox.ID, []string{chat}, chat, &models.Contact{
			InboxID:    req.Inbox.ID,
			Name:       identity.GroupDisplayName(subject, chat),
			Identifier: identity.GroupIdentifier(chat),
		})
		if err != nil || ci == nil {
			return nil, err
		}
		if subject != "" {
			desired := identity.GroupDisplayName(subject, chat)
			if !identity.NamesEquivalent(contact.Name, desired) {
				if err := s.store.UpdateContactName(ctx, contact.ID, desired); err != nil {
					return nil, apperrors.NewDatabaseError("update group name", err)
				}
				contact.Name = desired
			}
		}
		return &contactTarget{contact: contact, contactInbox: ci}, nil
	}

	fallbacks := identity.Fallbacks(data)
	sourceID := r.ContactSourceID(ctx, chat, fallbacks...)
	if sourceID == "" {
		sourceID = jid.NormalizeNumber(chat)
	}
	if sourceID == "" {
		return nil, nil
	}

	pushName := data.Str("pushName")
	name := sourceID
	if incoming && pushName != "" {
		name = pushName
	}
	contact := &models.Contact{InboxID: req.Inbox.ID, Name: name}
	if jid.Digits(sourceID) == sourceID {
		contact.PhoneNumber = "+" + sourceID
	}

	candidates := jid.Unique(append([]string{sourceID}, r.CandidateSourceIDs(ctx, chat, fallbacks...)...))
	ci, existing, err := s.findOrCreateContact(ctx, req.Inbox.ID, candidates, sourceID, contact)
	if err != nil || ci == nil {
		return nil, err
	}

	if incoming && pushName != "" && (existing.Name == ci.SourceID || existing.Name == "") {
		if err := s.store.UpdateContactName(ctx, existing.ID, pushName); err != nil {
			return nil, apperrors.NewDatabaseError("update contact name", err)
		}
		existing.Name = pushName
	}
	return &contactTarget{contact: existing, contactInbox: ci}, nil
}

// findOrCreateContact returns the contact bound to the first matching source
// id, creating draft under sourceID when none matches.
func (s *Service) findOrCreateContact(ctx context.Context, inboxID int64, candidates []string, sourceID string, draft *models.Contact) (*models.ContactInbox, *models.Contact, error) {
	ci, err := s.store.FindContactInboxBySourceIDs(ctx, inboxID, candidates)
	if err != nil {
		return nil, nil, apperrors.NewDatabaseError("find contact inbox", err)
	}
	if ci == nil {
		ci, err = s.store.CreateContactWithInbox(ctx, draft, sourceID)
		if err != nil {
			return nil, nil, apperrors.NewDatabaseError("create contact", err)
		}
		return ci, draft, nil
	}

	contact, err := s.store.GetContact(ctx, ci.ContactID)
	if err != nil {
		return nil, nil, apperrors.NewDatabaseError("get contact", err)
	}
	if contact == nil {
		return nil, nil, fmt.Errorf("contact %d of contact inbox %d missing", ci.ContactID, ci.ID)
	}
	return ci, contact, nil
}

// ensureConversation returns the contact's current conversation, opening a
// new one when there is none.
func (s *Service) ensureConversation(ctx context.Context, inbox *models.Inbox, target *contactTarget) (*models.Conversation, error) {
	conv, err := s.store.LastConversation(ctx, target.contactInbox.ID, inbox.LockToSingleConversation)
	if err != nil {
		return nil, apperrors.NewDatabaseError("last conversation", err)
	}
	if conv != nil {
		return conv, nil
	}

	conv = &models.Conversation{
		InboxID:        inbox.ID,
		ContactID:      target.contact.ID,
		ContactInboxID: target.contactInbox.ID,
		Status:         models.ConversationOpen,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, apperrors.NewDatabaseError("create conversation", err)
	}
	return conv, nil
}

// ProfilePictureURL extracts a profile picture reference from a contact or
// chat payload. Keys are matched case-insensitively.
func ProfilePictureURL(p payload.Payload) string {
	if p == nil {
		return ""
	}
	if v := firstKeyFold(p, profilePicKeys); v != "" {
		return v
	}
	for _, key := range []string{"profilePicThumbObj", "profilePicThumb"} {
		if thumb := p.Map(key); thumb != nil {
			if v := firstKeyFold(thumb, profilePicThumbKeys); v != "" {
				return v
			}
		}
	}
	if nested := p.Map("data"); nested != nil {
		return ProfilePictureURL(nested)
	}
	for _, item := range p.Slice("data") {
		if v := ProfilePictureURL(payload.AsMap(item)); v != "" {
			return v
		}
	}
	return ""
}

func firstKeyFold(p payload.Payload, keys []string) string {
	folded := make(map[string]string, len(p))
	for k, v := range p {
		lk := strings.ToLower(k)
		if _, seen := folded[lk]; !seen {
			folded[lk] = payload.String(v)
		}
	}
	for _, k := range keys {
		if v := folded[k]; v != "" {
			return v
		}
	}
	return ""
}

// syncAvatar stores a newer picture for contact and schedules its download.
// Without a provided url the gateway is asked for one once the previous
// check is older than ProfileRefreshInterval.
func (s *Service) syncAvatar(ctx context.Context, inbox *models.Inbox, r *identity.Resolver, contact *models.Contact, sourceID, url string) {
	if contact == nil {
		return
	}
	now := s.now()
	checkedAt := contact.AvatarCheckedAt
	checkedChanged := false

	if url == "" {
		if s.shouldRefreshAvatar(inbox, contact, now) {
			force := contact.AvatarURL != "" && checkedAt != nil && checkedAt.Before(now.Add(-ProfileRefreshInterval))
			url = s.fetchProfilePicture(ctx, inbox, r, sourceID, force)
			checkedAt = &now
			checkedChanged = true
		}
	} else if checkedAt == nil {
		checkedAt = &now
		checkedChanged = true
	}

	fields := logrus.Fields{LogFieldContactID: contact.ID, LogFieldInbox: inbox.ID}
	switch {
	case url != "" && url != contact.AvatarURL:
		if err := s.store.UpdateContactAvatar(ctx, contact.ID, url, checkedAt); err != nil {
			s.errLogger.LogWarn(apperrors.NewDatabaseError("update avatar", err), "Failed to store contact avatar", fields)
			return
		}
		contact.AvatarURL = url
		contact.AvatarCheckedAt = checkedAt
		if s.avatars != nil {
			if err := s.avatars.Enqueue(ctx, contact.ID, url); err != nil {
				s.errLogger.LogWarn(apperrors.NewCollaboratorError("avatar fetch", err), "Avatar fetch not enqueued", fields)
			}
		}
	case checkedChanged:
		if err := s.store.UpdateContactAvatar(ctx, contact.ID, contact.AvatarURL, checkedAt); err != nil {
			s.errLogger.LogWarn(apperrors.NewDatabaseError("update avatar", err), "Failed to store avatar check time", fields)
			return
		}
		contact.AvatarCheckedAt = checkedAt
	}
}

// shouldRefreshAvatar gates provider picture fetches to one per interval.
// Only WAHA exposes a picture endpoint.
func (s *Service) shouldRefreshAvatar(inbox *models.Inbox, contact *models.Contact, now time.Time) bool {
	if inbox.Provider != models.ProviderWAHA || s.lookupFor(inbox) == nil {
		return false
	}
	return contact.AvatarCheckedAt == nil || contact.AvatarCheckedAt.Before(now.Add(-ProfileRefreshInterval))
}

func (s *Service) fetchProfilePicture(ctx context.Context, inbox *models.Inbox, r *identity.Resolver, sourceID string, refresh bool) string {
	lookup := s.lookupFor(inbox)
	target := pictureTarget(ctx, r, sourceID)
	if lookup == nil || target == "" {
		return ""
	}
	url, err := lookup.ProfilePictureURL(ctx, target, refresh)
	if err != nil {
		s.errLogger.LogWarn(apperrors.NewCollaboratorError("profile picture", err), "Profile picture fetch failed", logrus.Fields{
			LogFieldInbox:  inbox.ID,
			LogFieldChatID: maskJID(ctx, target),
		})
		return ""
	}
	return strings.TrimSpace(url)
}

// pictureTarget turns a contact source id into the address the gateway
// serves pictures for.
func pictureTarget(ctx context.Context, r *identity.Resolver, sourceID string) string {
	v := strings.TrimSpace(sourceID)
	switch {
	case v == "":
		return ""
	case jid.IsGroup(v):
		return v
	case jid.IsLID(v):
		phone := r.PhoneFromAnyJID(ctx, v)
		if phone == "" || jid.IsLID(phone) {
			return ""
		}
		return phone + "@" + jid.ServerLegacyUser
	case strings.Contains(v, "@"):
		return v
	}
	if digits := jid.Digits(v); digits != "" {
		return digits + "@" + jid.ServerLegacyUser
	}
	return ""
}
