// Package status maps gateway delivery hints onto the message delivery state
// and applies the legal transitions.
package status

import (
	"strings"

	"github.com/mariovalmir/chatwoot/internal/models"
	"github.com/mariovalmir/chatwoot/internal/payload"
)

var tokens = map[string]models.DeliveryStatus{
	"PENDING":      models.DeliveryStatusSent,
	"PENDING_ACK":  models.DeliveryStatusSent,
	"QUEUED":       models.DeliveryStatusSent,
	"SERVER_ACK":   models.DeliveryStatusSent,
	"SENT":         models.DeliveryStatusSent,
	"ACK":          models.DeliveryStatusSent,
	"ACCEPTED":     models.DeliveryStatusSent,
	"DELIVERY_ACK": models.DeliveryStatusDelivered,
	"DELIVERED":    models.DeliveryStatusDelivered,
	"DELIVERY":     models.DeliveryStatusDelivered,
	"READ":         models.DeliveryStatusRead,
	"READ_ACK":     models.DeliveryStatusRead,
	"SEEN":         models.DeliveryStatusRead,
	"VIEWED":       models.DeliveryStatusRead,
	"PLAYED":       models.DeliveryStatusRead,
	"ERROR":        models.DeliveryStatusFailed,
	"FAILED":       models.DeliveryStatusFailed,
	"FAIL":         models.DeliveryStatusFailed,
}

// Map converts a raw status hint. Numeric acks follow the WhatsApp ack
// levels; everything else is matched as an upper-cased token. The second
// result is false when the hint means "no change".
func Map(raw any) (models.DeliveryStatus, bool) {
	if !payload.Present(raw) {
		return models.DeliveryStatusUnknown, false
	}

	if n, ok := ackLevel(raw); ok {
		switch {
		case n == 0 || n == 1:
			return models.DeliveryStatusSent, true
		case n == 2:
			return models.DeliveryStatusDelivered, true
		case n >= 3 && n <= 5:
			return models.DeliveryStatusRead, true
		}
		return models.DeliveryStatusUnknown, false
	}

	s, ok := tokens[strings.ToUpper(payload.String(raw))]
	return s, ok
}

func ackLevel(raw any) (int64, bool) {
	switch t := raw.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" || strings.Trim(s, "0123456789") != "" {
			return 0, false
		}
		return payload.Int(s)
	case bool:
		return 0, false
	default:
		return payload.Int(t)
	}
}

var hintPaths = [][]string{
	{"status"}, {"ackName"}, {"ack"}, {"ackStatus"},
}

var nestedHintPaths = [][]string{
	{"message", "status"}, {"message", "ackName"}, {"message", "ack"},
}

// HintFrom returns the first present status hint of p, or nil.
func HintFrom(p payload.Payload) any {
	if p == nil {
		return nil
	}
	for _, path := range hintPaths {
		if v := p.Get(path...); payload.Present(v) {
			return v
		}
	}
	if p.Map("message") == nil {
		return nil
	}
	for _, path := range nestedHintPaths {
		if v := p.Get(path...); payload.Present(v) {
			return v
		}
	}
	return nil
}

// FromPayload maps the hint carried by p.
func FromPayload(p payload.Payload) (models.DeliveryStatus, bool) {
	return Map(HintFrom(p))
}

// CanTransition reports whether a message in state from may move to to.
// An unknown current state accepts anything; read and failed are final.
func CanTransition(from, to models.DeliveryStatus) bool {
	switch from {
	case models.DeliveryStatusSent:
		return to == models.DeliveryStatusDelivered || to == models.DeliveryStatusRead || to == models.DeliveryStatusFailed
	case models.DeliveryStatusDelivered:
		return to == models.DeliveryStatusRead
	case models.DeliveryStatusRead, models.DeliveryStatusFailed:
		return false
	default:
		return true
	}
}
