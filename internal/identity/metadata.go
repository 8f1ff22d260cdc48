package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/mariovalmir/chatwoot/internal/constants"
	"github.com/mariovalmir/chatwoot/internal/jid"
	"github.com/mariovalmir/chatwoot/internal/privacy"

	"github.com/sirupsen/logrus"
)

var trailingGroupTag = regexp.MustCompile(`(?i)\s*\(group\)\s*$`)

func (r *Resolver) groupSubjectKey(groupJID string) string {
	return fmt.Sprintf(constants.GroupSubjectKeyFormat, r.inboxID, groupJID)
}

func (r *Resolver) participantNameKey(participant string) string {
	return fmt.Sprintf(constants.ParticipantNameKeyFormat, r.inboxID, participant)
}

// CachedGroupSubject returns the cached subject for a group, or "".
func (r *Resolver) CachedGroupSubject(ctx context.Context, groupJID string) string {
	return r.read(ctx, r.groupSubjectKey(strings.TrimSpace(groupJID)), groupJID)
}

func (r *Resolver) StoreGroupSubject(ctx context.Context, groupJID, subject string) {
	groupJID, subject = strings.TrimSpace(groupJID), strings.TrimSpace(subject)
	if groupJID == "" || subject == "" {
		return
	}
	r.write(ctx, r.groupSubjectKey(groupJID), subject, groupJID)
}

// EnsureGroupSubject returns the cached subject or fetches and caches it.
func (r *Resolver) EnsureGroupSubject(ctx context.Context, groupJID string) string {
	if subject := r.CachedGroupSubject(ctx, groupJID); subject != "" {
		return subject
	}
	if r.lookup == nil || strings.TrimSpace(groupJID) == "" {
		return ""
	}

	subject, err := r.lookup.GroupSubject(ctx, groupJID)
	if err != nil {
		if !errors.Is(err, ErrLookupUnsupported) {
			r.logger.WithFields(logrus.Fields{
				"inbox_id": r.inboxID,
				"chat_id":  privacy.MaskJID(groupJID),
				"error":    err,
			}).Warn("Group subject lookup failed")
		}
		return ""
	}
	r.StoreGroupSubject(ctx, groupJID, subject)
	return strings.TrimSpace(subject)
}

func (r *Resolver) CachedParticipantName(ctx context.Context, participant string) string {
	participant = strings.TrimSpace(participant)
	if participant == "" {
		return ""
	}
	return r.read(ctx, r.participantNameKey(participant), participant)
}

func (r *Resolver) StoreParticipantName(ctx context.Context, participant, name string) {
	participant, name = strings.TrimSpace(participant), strings.TrimSpace(name)
	if participant == "" || name == "" {
		return
	}
	r.write(ctx, r.participantNameKey(participant), name, participant)
}

func (r *Resolver) read(ctx context.Context, key, subject string) string {
	if r.cache == nil {
		return ""
	}
	v, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		r.logger.WithFields(logrus.Fields{
			"inbox_id": r.inboxID,
			"subject":  privacy.MaskJID(subject),
			"error":    err,
		}).Warn("Metadata cache read failed")
		return ""
	}
	if !ok {
		return ""
	}
	return v
}

func (r *Resolver) write(ctx context.Context, key, value, subject string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, key, value, constants.GroupSubjectTTL); err != nil {
		r.logger.WithFields(logrus.Fields{
			"inbox_id": r.inboxID,
			"subject":  privacy.MaskJID(subject),
			"error":    err,
		}).Warn("Metadata cache write failed")
	}
}

// GroupDisplayName renders the contact name of a group: the subject without
// any trailing "(group)" tag, suffixed with "(GROUP)". Without a subject the
// group node is used, and "WhatsApp Group" as a last resort.
func GroupDisplayName(subject, groupJID string) string {
	base := strings.TrimSpace(subject)
	base = strings.TrimSpace(trailingGroupTag.ReplaceAllString(base, ""))
	if base == "" {
		return GroupIdentifier(groupJID)
	}
	if strings.HasSuffix(base, constants.GroupSuffix) {
		return base
	}
	return base + " " + constants.GroupSuffix
}

// GroupIdentifier is the fallback label of a group without a subject.
func GroupIdentifier(groupJID string) string {
	remote := strings.TrimSpace(groupJID)
	if node := jid.Node(remote); node != "" {
		return node
	}
	if remote != "" {
		return remote
	}
	return constants.DefaultGroupName
}

// NamesEquivalent compares display names case-insensitively. Blank names are
// never equivalent.
func NamesEquivalent(current, desired string) bool {
	current, desired = strings.TrimSpace(current), strings.TrimSpace(desired)
	if current == "" || desired == "" {
		return false
	}
	return strings.EqualFold(current, desired)
}
