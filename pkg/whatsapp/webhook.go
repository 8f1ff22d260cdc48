package whatsapp

import (
	"context"
	"strings"
	"sync"

	"github.com/mariovalmir/chatwoot/internal/metrics"
	"github.com/mariovalmir/chatwoot/internal/models"
	"github.com/mariovalmir/chatwoot/internal/payload"
	"github.com/mariovalmir/chatwoot/internal/service"

	"github.com/sirupsen/logrus"
)

// sharedRoutes are the event names both gateways deliver.
var sharedRoutes = map[string]string{
	"messages.upsert":     service.HandlerUpsert,
	"send.message":        service.HandlerUpsert,
	"messages.update":     service.HandlerUpdate,
	"send.message.update": service.HandlerUpdate,
	"send.message_update": service.HandlerUpdate,
	"messages.edited":     service.HandlerUpdate,
	"messages.delete":     service.HandlerDelete,
	"contacts.update":     service.HandlerContacts,
	"contacts.upsert":     service.HandlerContacts,
	"chats.update":        service.HandlerChats,
	"chats.upsert":        service.HandlerChats,
	"groups.update":       service.HandlerGroups,
	"groups.upsert":       service.HandlerGroups,
	"qrcode.updated":      service.HandlerQRCode,
	"connection.update":   service.HandlerConnection,
}

var wahaRoutes = map[string]string{
	"messages.edited":  service.HandlerEdited,
	"session.status":   service.HandlerConnection,
	"session.qr":       service.HandlerQRCode,
	"message.any":      service.HandlerAny,
	"message":          service.HandlerMessage,
	"message.reaction": service.HandlerReaction,
	"message.edited":   service.HandlerEdited,
	"message.revoked":  service.HandlerRevoked,
	"message.ack":      service.HandlerAck,
}

// NormalizeEventName lowercases event and turns the SCREAMING_SNAKE form
// some Evolution builds send into the dotted one.
func NormalizeEventName(event string) string {
	e := strings.ToLower(strings.TrimSpace(event))
	if !strings.Contains(e, ".") {
		e = strings.ReplaceAll(e, "_", ".")
	}
	return e
}

// WebhookRouter dispatches webhook deliveries to named handlers. Each
// provider has its own table of event names.
type WebhookRouter struct {
	runner   Runner
	handlers map[string]service.HandlerFunc
	routes   map[models.Provider]map[string]string
	logger   *logrus.Logger
	mu       sync.RWMutex
}

// NewWebhookRouter creates a router with the default event tables and no
// handlers. Register handlers with RegisterHandler.
func NewWebhookRouter(runner Runner, logger *logrus.Logger) *WebhookRouter {
	if logger == nil {
		logger = logrus.New()
	}
	r := &WebhookRouter{
		runner:   runner,
		handlers: make(map[string]service.HandlerFunc),
		routes: map[models.Provider]map[string]string{
			models.ProviderEvolution: {},
			models.ProviderWAHA:      {},
		},
		logger: logger,
	}
	for event, name := range sharedRoutes {
		r.routes[models.ProviderEvolution][event] = name
		r.routes[models.ProviderWAHA][event] = name
	}
	for event, name := range wahaRoutes {
		r.routes[models.ProviderWAHA][event] = name
	}
	return r
}

// NewServiceRouter wires every handler of svc into a new router.
func NewServiceRouter(svc *service.Service, logger *logrus.Logger) *WebhookRouter {
	r := NewWebhookRouter(svc, logger)
	for name, h := range svc.Handlers() {
		r.RegisterHandler(name, h)
	}
	return r
}

func (r *WebhookRouter) RegisterHandler(name string, h service.HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[name] = h
}

// RegisterAlias routes event for provider to the handler called name.
func (r *WebhookRouter) RegisterAlias(provider models.Provider, event, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	table, ok := r.routes[provider]
	if !ok {
		table = make(map[string]string)
		r.routes[provider] = table
	}
	table[NormalizeEventName(event)] = name
}

// Route returns the handler name for an event, if one is registered.
func (r *WebhookRouter) Route(provider models.Provider, event string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.routes[provider][NormalizeEventName(event)]
	if !ok {
		return "", false
	}
	if _, registered := r.handlers[name]; !registered {
		return "", false
	}
	return name, true
}

// Dispatch runs one delivery. A list in data (or payload) is handled one
// element at a time in order, and a failing element never stops the rest.
func (r *WebhookRouter) Dispatch(ctx context.Context, inbox *models.Inbox, envelope payload.Payload) service.BatchReport {
	event := NormalizeEventName(envelope.Str("event"))
	provider := string(inbox.Provider)
	report := service.BatchReport{Event: event}
	metrics.EventReceived(provider, event)

	name, ok := r.Route(inbox.Provider, event)
	if !ok {
		r.logger.WithFields(logrus.Fields{
			service.LogFieldProvider: provider,
			service.LogFieldInbox:    inbox.ID,
			service.LogFieldEvent:    event,
		}).Warn("Dropping unknown webhook event")
		metrics.EventDropped(provider, "unknown_event")
		report.Add(service.Result{Outcome: service.OutcomeSkipped, Reason: "unknown event"})
		return report
	}
	report.Handler = name

	r.mu.RLock()
	h := r.handlers[name]
	r.mu.RUnlock()

	data := envelope.Get("data")
	if data == nil {
		data = envelope.Get("payload")
	}
	elements := payload.Wrap(data)
	if len(elements) == 0 {
		metrics.EventDropped(provider, "missing_data")
		report.Add(service.Result{Outcome: service.OutcomeSkipped, Reason: "missing data"})
		return report
	}

	for i, element := range elements {
		item := payload.AsMap(element)
		if item == nil {
			metrics.EventDropped(provider, "malformed_element")
			report.Add(service.Result{Outcome: service.OutcomeSkipped, Reason: "element is not an object"})
			continue
		}
		req := &service.Request{
			Inbox:    inbox,
			Event:    event,
			Data:     item,
			Envelope: envelope,
			Index:    i,
		}
		report.Add(r.runner.Run(ctx, name, h, req))
	}
	return report
}
