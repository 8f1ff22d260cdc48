// Package identity maps opaque linked identifiers (LIDs) to phone based
// identities and caches group and participant display metadata.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mariovalmir/chatwoot/internal/constants"
	"github.com/mariovalmir/chatwoot/internal/jid"
	"github.com/mariovalmir/chatwoot/internal/metrics"
	"github.com/mariovalmir/chatwoot/internal/payload"
	"github.com/mariovalmir/chatwoot/internal/privacy"

	"github.com/sirupsen/logrus"
)

// ErrLookupUnsupported is returned by providers that cannot resolve LIDs.
var ErrLookupUnsupported = errors.New("opaque identity lookup not supported by provider")

// Cache is the shared key/value store backing the mappings.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Lookup queries the gateway for identity and group metadata.
type Lookup interface {
	ResolveOpaqueIdentity(ctx context.Context, lid string) (string, error)
	GroupSubject(ctx context.Context, groupJID string) (string, error)
}

// Resolver resolves identities for a single inbox. Cache keys are namespaced
// by inbox so two connections never share mappings.
type Resolver struct {
	inboxID int64
	cache   Cache
	lookup  Lookup
	logger  *logrus.Logger
}

func NewResolver(inboxID int64, cache Cache, lookup Lookup, logger *logrus.Logger) *Resolver {
	if logger == nil {
		logger = logrus.New()
	}
	return &Resolver{
		inboxID: inboxID,
		cache:   cache,
		lookup:  lookup,
		logger:  logger,
	}
}

func (r *Resolver) InboxID() int64 { return r.inboxID }

func (r *Resolver) lidKey(lid string) string {
	return fmt.Sprintf(constants.LIDMappingKeyFormat, r.inboxID, lid)
}

// Fallbacks collects the alternate addresses a message payload carries, in
// the order they are tried when the primary address is opaque.
func Fallbacks(p payload.Payload) []string {
	if p == nil {
		return nil
	}
	return nonBlank(
		p.First(payload.P("remoteJidAlt"), payload.P("key", "remoteJidAlt")),
		p.First(payload.P("participant"), payload.P("key", "participant")),
		p.First(payload.P("participantAlt"), payload.P("key", "participantAlt")),
		p.Str("chatId"),
		p.Str("from"),
		p.Str("to"),
		p.Str("jid"),
	)
}

// ResolvePrimary returns a phone based address for candidate. Plain user
// addresses pass through; otherwise the first user fallback that normalizes
// wins, then the cache and the provider are consulted for LIDs. Groups are
// never looked up. When nothing resolves the original candidate is returned.
func (r *Resolver) ResolvePrimary(ctx context.Context, candidate string, fallbacks ...string) string {
	primary := strings.TrimSpace(candidate)
	if primary != "" && !jid.IsLID(primary) && !jid.IsGroup(primary) {
		return primary
	}

	for _, fb := range fallbacks {
		if resolved := r.normalizeNonLID(ctx, fb); resolved != "" {
			return resolved
		}
	}

	if primary == "" || jid.IsGroup(primary) {
		return primary
	}

	mapped := r.CachedMapping(ctx, primary)
	if mapped == "" {
		mapped = r.lookupProvider(ctx, primary)
		if mapped != "" {
			r.StoreMapping(ctx, primary, mapped)
		}
	}

	if resolved := r.normalizeNonLID(ctx, mapped); resolved != "" {
		return resolved
	}
	metrics.IdentityLookup("unresolved")
	return primary
}

// normalizeNonLID turns value into a user address, or "" when it cannot.
func (r *Resolver) normalizeNonLID(ctx context.Context, value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return ""
	}

	if jid.IsLID(v) {
		mapped := r.CachedMapping(ctx, v)
		if mapped == "" {
			mapped = r.lookupProvider(ctx, v)
		}
		if mapped != "" {
			v = mapped
		}
	}

	if strings.Contains(v, "@") {
		if jid.IsLID(v) || jid.IsGroup(v) {
			return ""
		}
		return v
	}

	return jid.UserJID(v)
}

// PhoneFromAnyJID returns the digits-only phone for value. LIDs are resolved
// through the cache, the provider and then the alternate addresses; any
// mapping found is stored. An unresolved LID falls back to its digits, or
// is returned unchanged when it has none.
func (r *Resolver) PhoneFromAnyJID(ctx context.Context, value string, alts ...string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return ""
	}

	if jid.IsLID(v) {
		if mapped := r.CachedMapping(ctx, v); mapped != "" {
			return mapped
		}
		if mapped := r.lookupProvider(ctx, v); mapped != "" {
			r.StoreMapping(ctx, v, mapped)
			return mapped
		}

		for _, alt := range alts {
			alt = strings.TrimSpace(alt)
			if alt == "" || alt == v || jid.IsGroup(alt) {
				continue
			}

			if jid.IsLID(alt) {
				mapped := r.CachedMapping(ctx, alt)
				if mapped == "" {
					mapped = r.lookupProvider(ctx, alt)
				}
				if mapped == "" {
					continue
				}
				r.StoreMapping(ctx, v, mapped)
				metrics.IdentityLookup("alt_hit")
				return jid.NormalizeNumber(mapped)
			}

			if msisdn := jid.NormalizeNumber(alt); msisdn != "" {
				r.StoreMapping(ctx, v, msisdn)
				metrics.IdentityLookup("alt_hit")
				return msisdn
			}
		}
	}

	if normalized := jid.NormalizeNumber(v); normalized != "" {
		return normalized
	}
	if jid.IsLID(v) {
		metrics.IdentityLookup("unresolved")
		return v
	}
	return ""
}

// ContactSourceID returns the identity a contact is keyed by: the group
// address itself for groups, the phone otherwise.
func (r *Resolver) ContactSourceID(ctx context.Context, value string, alts ...string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return ""
	}
	if jid.IsGroup(v) {
		return v
	}
	return r.PhoneFromAnyJID(ctx, v, alts...)
}

// CandidateSourceIDs lists the identities an existing contact may be stored
// under, most specific first.
func (r *Resolver) CandidateSourceIDs(ctx context.Context, value string, alts ...string) []string {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	if jid.IsGroup(v) {
		return []string{v}
	}
	return jid.Unique([]string{v, r.PhoneFromAnyJID(ctx, v, alts...)})
}

// CacheLIDIdentifiers records mappings between the LID and plain addresses
// that arrive together on one event.
func (r *Resolver) CacheLIDIdentifiers(ctx context.Context, addresses ...string) {
	r.CacheLIDMappings(ctx, addresses, addresses)
}

// CacheLIDMappings stores every plain number in plains against every LID in
// lids. Without any plain number, each LID is looked up at the provider.
func (r *Resolver) CacheLIDMappings(ctx context.Context, lids, plains []string) {
	var lidSet []string
	for _, v := range jid.Unique(lids) {
		if jid.IsLID(v) {
			lidSet = append(lidSet, v)
		}
	}
	if len(lidSet) == 0 {
		return
	}

	var plainSet []string
	for _, v := range jid.Unique(plains) {
		if !jid.IsLID(v) {
			plainSet = append(plainSet, v)
		}
	}

	for _, plain := range plainSet {
		if jid.IsGroup(plain) {
			continue
		}
		msisdn := jid.NormalizeNumber(plain)
		if msisdn == "" {
			continue
		}
		for _, lid := range lidSet {
			r.StoreMapping(ctx, lid, msisdn)
		}
	}

	if len(plainSet) > 0 {
		return
	}
	for _, lid := range lidSet {
		if msisdn := r.lookupProvider(ctx, lid); msisdn != "" {
			r.StoreMapping(ctx, lid, msisdn)
		}
	}
}

// StoreMapping caches lid -> phone. Non-LID keys and unparseable phones are
// ignored.
func (r *Resolver) StoreMapping(ctx context.Context, lid, phone string) {
	if !jid.IsLID(lid) {
		return
	}
	msisdn := jid.NormalizeNumber(phone)
	if msisdn == "" || r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, r.lidKey(lid), msisdn, constants.IdentityMappingTTL); err != nil {
		r.logger.WithFields(logrus.Fields{
			"inbox_id": r.inboxID,
			"lid":      privacy.MaskJID(lid),
			"error":    err,
		}).Warn("Failed to store identity mapping")
	}
}

// CachedMapping returns the cached phone for lid, or "".
func (r *Resolver) CachedMapping(ctx context.Context, lid string) string {
	if strings.TrimSpace(lid) == "" || r.cache == nil {
		return ""
	}
	v, ok, err := r.cache.Get(ctx, r.lidKey(lid))
	if err != nil {
		r.logger.WithFields(logrus.Fields{
			"inbox_id": r.inboxID,
			"lid":      privacy.MaskJID(lid),
			"error":    err,
		}).Warn("Identity cache read failed")
		metrics.IdentityLookup("error")
		return ""
	}
	if !ok || v == "" {
		return ""
	}
	metrics.IdentityLookup("cache_hit")
	return v
}

func (r *Resolver) lookupProvider(ctx context.Context, lid string) string {
	if r.lookup == nil {
		return ""
	}
	phone, err := r.lookup.ResolveOpaqueIdentity(ctx, lid)
	if err != nil {
		if !errors.Is(err, ErrLookupUnsupported) {
			r.logger.WithFields(logrus.Fields{
				"inbox_id": r.inboxID,
				"lid":      privacy.MaskJID(lid),
				"error":    err,
			}).Warn("Provider identity lookup failed")
			metrics.IdentityLookup("error")
		}
		return ""
	}
	msisdn := jid.NormalizeNumber(phone)
	if msisdn != "" {
		metrics.IdentityLookup("provider_hit")
	}
	return msisdn
}

func nonBlank(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
