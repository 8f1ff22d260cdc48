package service

import (
	"context"
	"strings"

	apperrors "github.com/mariovalmir/chatwoot/internal/errors"
	"github.com/mariovalmir/chatwoot/internal/identity"
	"github.com/mariovalmir/chatwoot/internal/jid"
	"github.com/mariovalmir/chatwoot/internal/models"
	"github.com/mariovalmir/chatwoot/internal/payload"

	"github.com/sirupsen/logrus"
)

// Contacts applies a contact update: it caches the identity mappings and
// names the element reveals, then refreshes the stored contact. The first
// element of a delivery may also carry the connection state.
func (s *Service) Contacts(ctx context.Context, req *Request) Result {
	if err := requireInbox(req); err != nil {
		return failed("no inbox", err)
	}
	res := s.updateContactInfo(ctx, req)
	if req.Index == 0 {
		if state := connectionState(req.Data); state != "" {
			if cr := s.setConnection(ctx, req, state); cr.Outcome == OutcomeFailed {
				return cr
			}
		}
	}
	return res
}

func (s *Service) updateContactInfo(ctx context.Context, req *Request) Result {
	c := req.Data
	inbox := req.Inbox
	raw := c.Str("remoteJid")
	if raw == "" {
		return skipped("missing remoteJid")
	}
	r := s.resolver(inbox)

	fallbacks := []string{c.Str("remoteJidAlt"), c.Str("participant"), c.Str("participantAlt"), c.Str("waid")}
	lookupJID := r.ResolvePrimary(ctx, raw, fallbacks...)
	if lookupJID == "" {
		lookupJID = raw
	}

	r.CacheLIDMappings(ctx,
		[]string{raw, c.Str("remoteJidAlt"), c.Str("jid"), c.Str("userJid"), c.Str("lidJid")},
		[]string{raw, c.Str("remoteJidAlt"), c.Str("participant"), c.Str("participantAlt"), c.Str("waid")},
	)

	pushName := c.Str("pushName")
	if pushName != "" && isPlainUserServer(lookupJID) {
		r.StoreParticipantName(ctx, lookupJID, pushName)
	}

	ci, err := s.store.FindContactInboxBySourceIDs(ctx, inbox.ID, r.CandidateSourceIDs(ctx, lookupJID))
	if err != nil {
		return failed("find contact inbox", apperrors.NewDatabaseError("find contact inbox", err))
	}
	if ci == nil {
		return skipped("contact not found")
	}
	contact, err := s.store.GetContact(ctx, ci.ContactID)
	if err != nil {
		return failed("get contact", apperrors.NewDatabaseError("get contact", err))
	}
	if contact == nil {
		return skipped("contact not found")
	}

	if pushName != "" && !jid.IsGroup(lookupJID) && contact.Name != pushName {
		if err := s.store.UpdateContactName(ctx, contact.ID, pushName); err != nil {
			return failed("update contact name", apperrors.NewDatabaseError("update contact name", err))
		}
		contact.Name = pushName
	}

	url := c.Str("profilePicUrl")
	if inbox.Provider == models.ProviderWAHA {
		url = ProfilePictureURL(c)
	}
	s.syncAvatar(ctx, inbox, r, contact, ci.SourceID, url)

	s.logEntry(req).WithFields(logrus.Fields{
		LogFieldContactID: contact.ID,
		LogFieldChatID:    maskJID(ctx, lookupJID),
	}).Debug("Contact updated")
	return processed("contact updated")
}

// Chats applies chat metadata: group subjects, 1:1 names and pictures.
// Only contacts stored under the exact chat address are touched.
func (s *Service) Chats(ctx context.Context, req *Request) Result {
	if err := requireInbox(req); err != nil {
		return failed("no inbox", err)
	}
	c := req.Data
	remote := metadataAddress(c)
	if remote == "" {
		return skipped("missing chat id")
	}

	ci, contact, res := s.exactContact(ctx, req, remote)
	if ci == nil {
		return res
	}
	r := s.resolver(req.Inbox)

	subject := c.First(payload.P("name"), payload.P("subject"), payload.P("title"))
	if jid.IsGroup(remote) {
		if subject != "" {
			r.StoreGroupSubject(ctx, remote, subject)
			if err := s.renameGroup(ctx, contact, subject, remote); err != nil {
				return failed("rename group", err)
			}
		}
	} else if subject != "" && contact.Name != subject {
		if err := s.store.UpdateContactName(ctx, contact.ID, subject); err != nil {
			return failed("update contact name", apperrors.NewDatabaseError("update contact name", err))
		}
		contact.Name = subject
	}

	if url := c.First(payload.P("profilePicUrl"), payload.P("picUrl"), payload.P("imgUrl")); url != "" {
		s.syncAvatar(ctx, req.Inbox, r, contact, ci.SourceID, url)
	}
	return processed("chat updated")
}

// Groups caches a group's subject and renames its contact.
func (s *Service) Groups(ctx context.Context, req *Request) Result {
	if err := requireInbox(req); err != nil {
		return failed("no inbox", err)
	}
	g := req.Data
	remote := metadataAddress(g)
	if remote == "" {
		return skipped("missing group id")
	}
	subject := g.First(payload.P("subject"), payload.P("name"), payload.P("title"))
	if subject != "" {
		s.resolver(req.Inbox).StoreGroupSubject(ctx, remote, subject)
	}

	ci, contact, res := s.exactContact(ctx, req, remote)
	if ci == nil {
		return res
	}
	if subject == "" {
		return skipped("no subject")
	}
	if err := s.renameGroup(ctx, contact, subject, remote); err != nil {
		return failed("rename group", err)
	}
	return processed("group updated")
}

// exactContact loads the contact stored under remote. On a miss the returned
// Result says why.
func (s *Service) exactContact(ctx context.Context, req *Request, remote string) (*models.ContactInbox, *models.Contact, Result) {
	ci, err := s.store.FindContactInboxBySourceIDs(ctx, req.Inbox.ID, []string{remote})
	if err != nil {
		return nil, nil, failed("find contact inbox", apperrors.NewDatabaseError("find contact inbox", err))
	}
	if ci == nil {
		return nil, nil, skipped("contact not found")
	}
	contact, err := s.store.GetContact(ctx, ci.ContactID)
	if err != nil {
		return nil, nil, failed("get contact", apperrors.NewDatabaseError("get contact", err))
	}
	if contact == nil {
		return nil, nil, skipped("contact not found")
	}
	return ci, contact, Result{}
}

func (s *Service) renameGroup(ctx context.Context, contact *models.Contact, subject, groupJID string) error {
	desired := identity.GroupDisplayName(subject, groupJID)
	if identity.NamesEquivalent(contact.Name, desired) {
		return nil
	}
	if err := s.store.UpdateContactName(ctx, contact.ID, desired); err != nil {
		return apperrors.NewDatabaseError("update group name", err)
	}
	contact.Name = desired
	return nil
}

// metadataAddress reads the chat address of a chat or group element. WAHA
// may send the id as {"_serialized": ...}.
func metadataAddress(p payload.Payload) string {
	if id := p.Map("id"); id != nil {
		if v := id.Str("_serialized"); v != "" {
			return v
		}
	}
	return p.First(payload.P("id"), payload.P("jid"), payload.P("remoteJid"))
}

func isPlainUserServer(value string) bool {
	v := strings.TrimSpace(value)
	return strings.HasSuffix(v, "@"+jid.ServerUser) || strings.HasSuffix(v, "@"+jid.ServerLegacyUser)
}
