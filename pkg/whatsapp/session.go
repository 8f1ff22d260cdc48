package whatsapp

import (
	"context"

	"github.com/mariovalmir/chatwoot/internal/models"
	"github.com/mariovalmir/chatwoot/internal/payload"
	"github.com/mariovalmir/chatwoot/internal/service"

	"github.com/sirupsen/logrus"
)

// SessionEvent is the event name recorded for states read by SessionSyncer.
const SessionEvent = "session.sync"

// SessionSyncer reads each inbox's session state from its gateway and
// records it through the connection handler, so inboxes start with a known
// state instead of waiting for the next connection webhook.
type SessionSyncer struct {
	clients *ClientSet
	runner  Runner
	handler service.HandlerFunc
	logger  *logrus.Logger
}

func NewSessionSyncer(clients *ClientSet, svc *service.Service, logger *logrus.Logger) *SessionSyncer {
	if logger == nil {
		logger = logrus.New()
	}
	return &SessionSyncer{
		clients: clients,
		runner:  svc,
		handler: svc.Connection,
		logger:  logger,
	}
}

// Sync probes every inbox once. Gateways that cannot be reached are logged
// and reported as failed; their inboxes keep the stored state.
func (s *SessionSyncer) Sync(ctx context.Context, inboxes []*models.Inbox) service.BatchReport {
	report := service.BatchReport{Event: SessionEvent, Handler: service.HandlerConnection}
	for i, inbox := range inboxes {
		client := s.clients.Client(inbox)
		if client == nil {
			report.Add(service.Result{Outcome: service.OutcomeSkipped, Reason: "no gateway client"})
			continue
		}

		state, err := client.SessionStatus(ctx)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				service.LogFieldProvider: string(inbox.Provider),
				service.LogFieldInbox:    inbox.ID,
				"error":                  err,
			}).Warn("Failed to read gateway session state")
			report.Add(service.Result{Outcome: service.OutcomeFailed, Reason: "session status", Err: err})
			continue
		}
		if state == "" {
			report.Add(service.Result{Outcome: service.OutcomeSkipped, Reason: "session unknown"})
			continue
		}

		req := &service.Request{
			Inbox:    inbox,
			Event:    SessionEvent,
			Data:     payload.Payload{"status": state},
			Envelope: payload.Payload{"event": SessionEvent},
			Index:    i,
		}
		report.Add(s.runner.Run(ctx, service.HandlerConnection, s.handler, req))
	}
	return report
}
