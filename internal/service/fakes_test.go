package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mariovalmir/chatwoot/internal/cache"
	"github.com/mariovalmir/chatwoot/internal/guard"
	"github.com/mariovalmir/chatwoot/internal/models"
	"github.com/mariovalmir/chatwoot/internal/status"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// memStore is an in-memory Store.
type memStore struct {
	mu            sync.Mutex
	nextID        int64
	inboxes       map[int64]*models.Inbox
	contacts      map[int64]*models.Contact
	contactInbox  map[int64]*models.ContactInbox
	conversations map[int64]*models.Conversation
	messages      map[int64]*models.Message
	variants      map[int64][]string
	lastSeen      map[int64]time.Time
	activity      map[int64]time.Time

	createErr error
}

func newMemStore() *memStore {
	return &memStore{
		inboxes:       map[int64]*models.Inbox{},
		contacts:      map[int64]*models.Contact{},
		contactInbox:  map[int64]*models.ContactInbox{},
		conversations: map[int64]*models.Conversation{},
		messages:      map[int64]*models.Message{},
		variants:      map[int64][]string{},
		lastSeen:      map[int64]time.Time{},
		activity:      map[int64]time.Time{},
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) sortedMessages() []*models.Message {
	out := make([]*models.Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) FindMessageBySourceID(_ context.Context, inboxID int64, sourceID string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.sortedMessages() {
		if m.InboxID == inboxID && sourceID != "" && m.SourceID == sourceID {
			return m, nil
		}
	}
	return nil, nil
}

func (s *memStore) FindMessageByWAHAID(_ context.Context, inboxID int64, wahaID string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.sortedMessages() {
		if m.InboxID == inboxID && wahaID != "" && m.WAHAMessageID == wahaID {
			return m, nil
		}
	}
	return nil, nil
}

func (s *memStore) FindMessageByExternalIDContains(_ context.Context, inboxID int64, externalID string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.sortedMessages() {
		if m.InboxID != inboxID {
			continue
		}
		for _, v := range s.variants[m.ID] {
			if v == externalID {
				return m, nil
			}
		}
	}
	return nil, nil
}

func (s *memStore) CreateMessage(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	msg.ID = s.id()
	for i := range msg.Attachments {
		msg.Attachments[i].ID = s.id()
		msg.Attachments[i].MessageID = msg.ID
	}
	s.messages[msg.ID] = msg
	return nil
}

func (s *memStore) UpdateMessageStatus(_ context.Context, messageID int64, st models.DeliveryStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok || !status.CanTransition(m.Status, st) {
		return false, nil
	}
	m.Status = st
	return true, nil
}

func (s *memStore) UpdateMessageContent(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.messages[msg.ID]; ok {
		m.Content = msg.Content
		m.ContentType = msg.ContentType
		m.ContentAttributes = msg.ContentAttributes
	}
	return nil
}

func (s *memStore) AppendExternalIDVariants(_ context.Context, messageID int64, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	for _, v := range s.variants[messageID] {
		seen[v] = true
	}
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			s.variants[messageID] = append(s.variants[messageID], id)
		}
	}
	if m, ok := s.messages[messageID]; ok && m.WAHAMessageID == "" && len(ids) > 0 {
		m.WAHAMessageID = ids[0]
	}
	return nil
}

func (s *memStore) SetMessageSourceID(_ context.Context, messageID int64, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.messages[messageID]; ok {
		m.SourceID = sourceID
	}
	return nil
}

func (s *memStore) DeleteAttachments(_ context.Context, messageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.messages[messageID]; ok {
		m.Attachments = nil
	}
	return nil
}

func (s *memStore) RecentOutgoingMessages(_ context.Context, conversationID int64, limit int) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.sortedMessages()
	var out []*models.Message
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if all[i].ConversationID == conversationID && all[i].Outgoing() {
			out = append(out, all[i])
		}
	}
	return out, nil
}

func (s *memStore) FindContactInboxBySourceIDs(_ context.Context, inboxID int64, sourceIDs []string) (*models.ContactInbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range sourceIDs {
		for _, ci := range s.contactInbox {
			if ci.InboxID == inboxID && id != "" && ci.SourceID == id {
				return ci, nil
			}
		}
	}
	return nil, nil
}

func (s *memStore) GetContactInbox(_ context.Context, id int64) (*models.ContactInbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contactInbox[id], nil
}

func (s *memStore) GetContact(_ context.Context, id int64) (*models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contacts[id], nil
}

func (s *memStore) CreateContactWithInbox(_ context.Context, contact *models.Contact, sourceID string) (*models.ContactInbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	contact.ID = s.id()
	s.contacts[contact.ID] = contact
	ci := &models.ContactInbox{ID: s.id(), ContactID: contact.ID, InboxID: contact.InboxID, SourceID: sourceID}
	s.contactInbox[ci.ID] = ci
	return ci, nil
}

func (s *memStore) UpdateContactName(_ context.Context, contactID int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.contacts[contactID]; ok {
		c.Name = name
	}
	return nil
}

func (s *memStore) UpdateContactAvatar(_ context.Context, contactID int64, url string, checkedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.contacts[contactID]; ok {
		c.AvatarURL = url
		c.AvatarCheckedAt = checkedAt
	}
	return nil
}

func (s *memStore) TouchContactActivity(_ context.Context, contactID int64, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity[contactID] = ts
	return nil
}

func (s *memStore) GetConversation(_ context.Context, conversationID int64) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversations[conversationID], nil
}

func (s *memStore) LastConversation(_ context.Context, contactInboxID int64, includeResolved bool) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last *models.Conversation
	for _, c := range s.conversations {
		if c.ContactInboxID != contactInboxID {
			continue
		}
		if !includeResolved && c.Status == models.ConversationResolved {
			continue
		}
		if last == nil || c.ID > last.ID {
			last = c
		}
	}
	return last, nil
}

func (s *memStore) CreateConversation(_ context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv.ID = s.id()
	s.conversations[conv.ID] = conv
	return nil
}

func (s *memStore) AddConversationLabels(_ context.Context, conversationID int64, labels []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return errors.New("conversation not found")
	}
	for _, l := range labels {
		if !c.HasLabel(l) {
			c.Labels = append(c.Labels, l)
		}
	}
	return nil
}

func (s *memStore) SetContactLastSeen(_ context.Context, conversationID int64, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen[conversationID] = ts
	return nil
}

func (s *memStore) GetInbox(_ context.Context, id int64) (*models.Inbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inboxes[id], nil
}

func (s *memStore) UpdateInboxConnection(_ context.Context, inboxID int64, st, qrCode, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.inboxes[inboxID]
	if !ok {
		in = &models.Inbox{ID: inboxID}
		s.inboxes[inboxID] = in
	}
	in.ConnectionStatus, in.QRCode, in.Error = st, qrCode, errText
	return nil
}

// messages returns the stored messages in creation order.
func (s *memStore) all() []*models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedMessages()
}

func (s *memStore) contactBySource(sourceID string) *models.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ci := range s.contactInbox {
		if ci.SourceID == sourceID {
			return s.contacts[ci.ContactID]
		}
	}
	return nil
}

// fakeLookup answers identity and picture queries from fixed maps.
type fakeLookup struct {
	lids     map[string]string
	subjects map[string]string
	pictures map[string]string
	calls    []string
}

func (f *fakeLookup) ResolveOpaqueIdentity(_ context.Context, lid string) (string, error) {
	f.calls = append(f.calls, "lid:"+lid)
	return f.lids[lid], nil
}

func (f *fakeLookup) GroupSubject(_ context.Context, groupJID string) (string, error) {
	f.calls = append(f.calls, "group:"+groupJID)
	return f.subjects[groupJID], nil
}

func (f *fakeLookup) ProfilePictureURL(_ context.Context, chatJID string, _ bool) (string, error) {
	f.calls = append(f.calls, "picture:"+chatJID)
	return f.pictures[chatJID], nil
}

type fixedLookups struct{ lookup ProviderLookup }

func (f fixedLookups) LookupFor(*models.Inbox) ProviderLookup { return f.lookup }

type broadcastCall struct {
	conversationID int64
	status         models.DeliveryStatus
}

type recordingBroadcast struct {
	mu    sync.Mutex
	calls []broadcastCall
}

func (r *recordingBroadcast) Enqueue(_ context.Context, conversationID int64, _ time.Time, st models.DeliveryStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, broadcastCall{conversationID, st})
	return nil
}

type recordingAvatars struct {
	urls map[int64]string
}

func (r *recordingAvatars) Enqueue(_ context.Context, contactID int64, url string) error {
	if r.urls == nil {
		r.urls = map[int64]string{}
	}
	r.urls[contactID] = url
	return nil
}

type recordingEvents struct {
	connections []string
	qrCodes     []string
}

func (r *recordingEvents) PublishConnection(_ context.Context, _ int64, st string) error {
	r.connections = append(r.connections, st)
	return nil
}

func (r *recordingEvents) PublishQRCode(_ context.Context, _ int64, qr string) error {
	r.qrCodes = append(r.qrCodes, qr)
	return nil
}

type rejectAll struct{}

func (rejectAll) ValidateRef(context.Context, string) error { return errors.New("blocked host") }

// harness bundles a Service with its fakes.
type harness struct {
	svc       *Service
	store     *memStore
	cache     *cache.Memory
	lookup    *fakeLookup
	broadcast *recordingBroadcast
	avatars   *recordingAvatars
	events    *recordingEvents
	logs      *test.Hook
	now       time.Time
}

func newHarness() *harness {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	h := &harness{
		store:     newMemStore(),
		cache:     cache.NewMemory(),
		lookup:    &fakeLookup{lids: map[string]string{}, subjects: map[string]string{}, pictures: map[string]string{}},
		broadcast: &recordingBroadcast{},
		avatars:   &recordingAvatars{},
		events:    &recordingEvents{},
		logs:      hook,
		now:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	h.svc = New(Dependencies{
		Store:     h.store,
		Cache:     h.cache,
		Lookups:   fixedLookups{lookup: h.lookup},
		Marker:    guard.NewDedupeMarker(h.cache),
		Locker:    guard.NewKeyedMutex(),
		Broadcast: h.broadcast,
		Avatars:   h.avatars,
		Events:    h.events,
		Logger:    logger,
	})
	h.svc.now = func() time.Time { return h.now }
	return h
}

func evolutionInbox() *models.Inbox {
	return &models.Inbox{ID: 1, Name: "sales", Provider: models.ProviderEvolution}
}

func wahaInbox() *models.Inbox {
	return &models.Inbox{ID: 2, Name: "support", Provider: models.ProviderWAHA}
}
