package service

import (
	"context"
	"strings"

	"github.com/mariovalmir/chatwoot/internal/constants"
	apperrors "github.com/mariovalmir/chatwoot/internal/errors"
	"github.com/mariovalmir/chatwoot/internal/models"
	"github.com/mariovalmir/chatwoot/internal/payload"

	"github.com/sirupsen/logrus"
)

var connectionPaths = [][]string{{"state"}, {"connection_status"}, {"connectionStatus"}, {"status"}}

// wahaSessionStates maps WAHA session statuses onto the connection states
// Evolution reports.
var wahaSessionStates = map[string]string{
	"WORKING":      constants.ConnectionOpen,
	"STARTING":     constants.ConnectionConnecting,
	"SCAN_QR_CODE": constants.ConnectionConnecting,
	"STOPPED":      constants.DefaultConnection,
	"FAILED":       constants.DefaultConnection,
}

// Connection records the inbox's connection state.
func (s *Service) Connection(ctx context.Context, req *Request) Result {
	if err := requireInbox(req); err != nil {
		return failed("no inbox", err)
	}
	state := connectionState(req.Data)
	if state == "" {
		state = constants.DefaultConnection
	}
	return s.setConnection(ctx, req, state)
}

func (s *Service) setConnection(ctx context.Context, req *Request, state string) Result {
	inbox := req.Inbox
	if inbox.Provider == models.ProviderWAHA {
		if mapped, ok := wahaSessionStates[strings.ToUpper(state)]; ok {
			state = mapped
		}
	}

	qr, errText := inbox.QRCode, inbox.Error
	if state == constants.ConnectionOpen {
		qr, errText = "", ""
	}
	if err := s.store.UpdateInboxConnection(ctx, inbox.ID, state, qr, errText); err != nil {
		return failed("update connection", apperrors.NewDatabaseError("update inbox connection", err))
	}
	inbox.ConnectionStatus, inbox.QRCode, inbox.Error = state, qr, errText

	if s.events != nil {
		if err := s.events.PublishConnection(ctx, inbox.ID, state); err != nil {
			s.errLogger.LogWarn(apperrors.NewCollaboratorError("inbox events", err), "Connection event not published", logrus.Fields{
				LogFieldInbox: inbox.ID,
			})
		}
	}
	s.logEntry(req).WithField(LogFieldStatus, state).Info("Connection updated")
	return processed("connection " + state)
}

// QRCode stores a pairing code as a PNG data URI.
func (s *Service) QRCode(ctx context.Context, req *Request) Result {
	if err := requireInbox(req); err != nil {
		return failed("no inbox", err)
	}
	inbox := req.Inbox
	code := req.Data.First(payload.P("qrcode", "base64"), payload.P("qr", "base64"), payload.P("base64"))
	if code == "" {
		return skipped("missing qr code")
	}
	uri := code
	if !strings.HasPrefix(uri, "data:image") {
		uri = constants.QRDataURIPrefix + uri
	}

	state := inbox.ConnectionStatus
	if state == "" || state == constants.DefaultConnection {
		state = constants.ConnectionConnecting
	}
	if err := s.store.UpdateInboxConnection(ctx, inbox.ID, state, uri, ""); err != nil {
		return failed("update connection", apperrors.NewDatabaseError("update inbox connection", err))
	}
	inbox.ConnectionStatus, inbox.QRCode, inbox.Error = state, uri, ""

	if s.events != nil {
		if err := s.events.PublishQRCode(ctx, inbox.ID, code); err != nil {
			s.errLogger.LogWarn(apperrors.NewCollaboratorError("inbox events", err), "QR code event not published", logrus.Fields{
				LogFieldInbox: inbox.ID,
			})
		}
	}
	return processed("qr code stored")
}

func connectionState(p payload.Payload) string {
	return p.First(connectionPaths...)
}
