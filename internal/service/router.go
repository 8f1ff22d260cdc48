package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mariovalmir/chatwoot/internal/metrics"
	"github.com/mariovalmir/chatwoot/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// HandlerFunc handles one element of a delivery.
type HandlerFunc func(ctx context.Context, req *Request) Result

// Handler names events are routed to.
const (
	HandlerUpsert     = "upsert"
	HandlerUpdate     = "update"
	HandlerDelete     = "delete"
	HandlerAck        = "ack"
	HandlerContacts   = "contacts"
	HandlerChats      = "chats"
	HandlerGroups     = "groups"
	HandlerConnection = "connection"
	HandlerQRCode     = "qrcode"
	HandlerAny        = "any"
	HandlerMessage    = "message"
	HandlerReaction   = "reaction"
	HandlerEdited     = "edited"
	HandlerRevoked    = "revoked"
)

// Handlers returns the service's handlers by name.
func (s *Service) Handlers() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		HandlerUpsert:     s.Upsert,
		HandlerUpdate:     s.Update,
		HandlerDelete:     s.Delete,
		HandlerAck:        s.Ack,
		HandlerContacts:   s.Contacts,
		HandlerChats:      s.Chats,
		HandlerGroups:     s.Groups,
		HandlerConnection: s.Connection,
		HandlerQRCode:     s.QRCode,
		HandlerAny:        s.Any,
		HandlerMessage:    s.Message,
		HandlerReaction:   s.Reaction,
		HandlerEdited:     s.Edited,
		HandlerRevoked:    s.Revoked,
	}
}

// Run invokes h for req inside a span, recovering panics into a failed
// result and recording the outcome.
func (s *Service) Run(ctx context.Context, name string, h HandlerFunc, req *Request) (res Result) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "service."+name,
		attribute.String("event", req.Event),
		attribute.Int("index", req.Index),
	)
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			res = failed("panic", fmt.Errorf("handler %s panicked: %v", name, rec))
		}
		metrics.ObserveHandler(name, string(res.Outcome), time.Since(start))
		span.SetAttributes(attribute.String("outcome", string(res.Outcome)), attribute.String("reason", res.Reason))

		entry := s.logEntry(req).WithFields(logrus.Fields{
			LogFieldHandler:  name,
			LogFieldOutcome:  res.Outcome,
			LogFieldReason:   res.Reason,
			LogFieldDuration: time.Since(start).Milliseconds(),
		})
		switch res.Outcome {
		case OutcomeFailed:
			span.SetStatus(codes.Error, res.Reason)
			if res.Err != nil {
				span.RecordError(res.Err)
			}
			s.errLogger.LogError(res.Err, "Webhook element failed", entry.Data)
		case OutcomeSkipped:
			entry.Debug("Webhook element skipped")
		}
	}()

	return h(ctx, req)
}
