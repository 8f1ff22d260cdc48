// Package service applies normalized webhook events to the store: it creates
// contacts, conversations and messages, reconciles later updates against the
// messages they target, and keeps inbox connection state current.
package service

import (
	"context"
	"time"

	apperrors "github.com/mariovalmir/chatwoot/internal/errors"
	"github.com/mariovalmir/chatwoot/internal/identity"
	"github.com/mariovalmir/chatwoot/internal/media"
	"github.com/mariovalmir/chatwoot/internal/models"
	"github.com/mariovalmir/chatwoot/internal/reconcile"
	"github.com/mariovalmir/chatwoot/internal/status"

	"github.com/sirupsen/logrus"
)

// Dependencies are the collaborators a Service runs against. Store, Cache,
// Marker and Locker are required; the rest may be nil.
type Dependencies struct {
	Store     Store
	Cache     IdentityCache
	Lookups   LookupSource
	Marker    DedupeMarker
	Locker    ChannelLocker
	Broadcast StatusBroadcast
	Avatars   AvatarFetch
	Events    InboxEvents
	Media     MediaValidator
	Logger    *logrus.Logger

	// ShowDeletedOriginal keeps the original text below the deleted marker
	// for every inbox.
	ShowDeletedOriginal bool
}

type Service struct {
	store      Store
	cache      IdentityCache
	lookups    LookupSource
	marker     DedupeMarker
	locker     ChannelLocker
	avatars    AvatarFetch
	events     InboxEvents
	validator  MediaValidator
	reconciler *reconcile.Reconciler
	machine    *status.Machine
	media      media.Router
	logger     *logrus.Logger
	errLogger  *apperrors.Logger

	showDeletedOriginal bool
	now                 func() time.Time
}

func New(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.New()
	}
	var broadcaster status.Broadcaster
	if deps.Broadcast != nil {
		broadcaster = deps.Broadcast
	}
	return &Service{
		store:               deps.Store,
		cache:               deps.Cache,
		lookups:             deps.Lookups,
		marker:              deps.Marker,
		locker:              deps.Locker,
		avatars:             deps.Avatars,
		events:              deps.Events,
		validator:           deps.Media,
		reconciler:          reconcile.New(deps.Store, logger),
		machine:             status.NewMachine(deps.Store, broadcaster, logger),
		media:               media.NewRouter(),
		logger:              logger,
		errLogger:           apperrors.NewLogger(logger),
		showDeletedOriginal: deps.ShowDeletedOriginal,
		now:                 time.Now,
	}
}

// lookupFor returns the inbox's provider client, or nil.
func (s *Service) lookupFor(inbox *models.Inbox) ProviderLookup {
	if s.lookups == nil || inbox == nil {
		return nil
	}
	return s.lookups.LookupFor(inbox)
}

// resolver builds the identity resolver scoped to inbox.
func (s *Service) resolver(inbox *models.Inbox) *identity.Resolver {
	var lookup identity.Lookup
	if l := s.lookupFor(inbox); l != nil {
		lookup = l
	}
	return identity.NewResolver(inbox.ID, s.cache, lookup, s.logger)
}

func (s *Service) showOriginalOnDelete(inbox *models.Inbox) bool {
	return s.showDeletedOriginal || (inbox != nil && inbox.ShowDeletedOriginal)
}

// requireInbox rejects requests that were not bound to an inbox.
func requireInbox(req *Request) error {
	if req == nil || req.Inbox == nil {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "request has no inbox")
	}
	return nil
}

// withLock runs fn under the inbox's channel lock.
func (s *Service) withLock(ctx context.Context, inboxID int64, fn func(ctx context.Context) Result) Result {
	if s.locker == nil {
		return fn(ctx)
	}
	var res Result
	err := s.locker.WithLock(ctx, inboxID, func(ctx context.Context) error {
		res = fn(ctx)
		return nil
	})
	if err != nil {
		return failed("channel lock", err)
	}
	return res
}
