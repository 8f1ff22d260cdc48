package whatsapp

import (
	"strings"
	"sync"

	"github.com/mariovalmir/chatwoot/internal/models"
	"github.com/mariovalmir/chatwoot/internal/service"
)

type clientEntry struct {
	key    string
	client GatewayClient
}

// ClientSet hands out one gateway client per inbox. A client is rebuilt when
// the inbox's gateway settings change.
type ClientSet struct {
	opts    ClientOptions
	clients map[int64]clientEntry
	mu      sync.RWMutex
}

func NewClientSet(opts ClientOptions) *ClientSet {
	return &ClientSet{
		opts:    opts.withDefaults(),
		clients: make(map[int64]clientEntry),
	}
}

func clientKey(inbox *models.Inbox) string {
	return strings.Join([]string{string(inbox.Provider), inbox.APIURL, inbox.APIKey, inbox.Session}, "|")
}

// Client returns the inbox's gateway client, or nil when the inbox has no
// API URL or an unknown provider.
func (s *ClientSet) Client(inbox *models.Inbox) GatewayClient {
	if inbox == nil || strings.TrimSpace(inbox.APIURL) == "" {
		return nil
	}
	key := clientKey(inbox)

	s.mu.RLock()
	entry, ok := s.clients[inbox.ID]
	s.mu.RUnlock()
	if ok && entry.key == key {
		return entry.client
	}

	var client GatewayClient
	switch inbox.Provider {
	case models.ProviderWAHA:
		client = NewWAHAClient(inbox.APIURL, inbox.APIKey, inbox.Session, s.opts)
	case models.ProviderEvolution:
		client = NewEvolutionClient(inbox.APIURL, inbox.APIKey, inbox.Session, s.opts)
	default:
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.clients[inbox.ID]; ok && entry.key == key {
		return entry.client
	}
	s.clients[inbox.ID] = clientEntry{key: key, client: client}
	return client
}

// LookupFor implements service.LookupSource.
func (s *ClientSet) LookupFor(inbox *models.Inbox) service.ProviderLookup {
	client := s.Client(inbox)
	if client == nil {
		return nil
	}
	return client
}

// Reset drops every cached client.
func (s *ClientSet) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clients = make(map[int64]clientEntry)
}
