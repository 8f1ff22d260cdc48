package service

import (
	"context"

	"github.com/mariovalmir/chatwoot/internal/constants"
	apperrors "github.com/mariovalmir/chatwoot/internal/errors"
	"github.com/mariovalmir/chatwoot/internal/metrics"
	"github.com/mariovalmir/chatwoot/internal/models"
	"github.com/mariovalmir/chatwoot/internal/payload"
	"github.com/mariovalmir/chatwoot/internal/reconcile"

	"github.com/sirupsen/logrus"
)

// Delete replaces a stored message with the deleted marker and drops its
// attachments. Deleting twice is a no-op.
func (s *Service) Delete(ctx context.Context, req *Request) Result {
	if err := requireInbox(req); err != nil {
		return failed("no inbox", err)
	}
	data := req.Data
	inbox := req.Inbox
	primary := reconcile.PrimaryID(data)

	msg, err := s.reconciler.Find(ctx, inbox.ID, primary, reconcile.LookupIDs(data, primary))
	if err != nil {
		return failed("find message", apperrors.NewDatabaseError("find message", err))
	}
	if msg == nil {
		metrics.EventDropped(string(inbox.Provider), "store_miss")
		s.errLogger.LogWarn(apperrors.NewStoreMissError(primary), "Message to delete not found", logrus.Fields{
			LogFieldEvent:     req.Event,
			LogFieldMessageID: maskMessageID(ctx, primary),
		})
		return skipped("message not found")
	}
	if deleted, _ := payload.Bool(msg.Attr("deleted")); deleted {
		return skipped("already deleted")
	}

	s.rememberIDs(ctx, msg, data)

	if err := s.store.DeleteAttachments(ctx, msg.ID); err != nil {
		return failed("delete attachments", apperrors.NewDatabaseError("delete attachments", err))
	}
	msg.Attachments = nil

	content := constants.DeletedMarker
	if s.showOriginalOnDelete(inbox) && msg.Content != "" {
		content += "\n" + msg.Content
	}
	msg.Content = content
	msg.ContentType = string(models.ContentText)
	msg.SetAttr("deleted", true)

	if err := s.store.UpdateMessageContent(ctx, msg); err != nil {
		return failed("update message", apperrors.NewDatabaseError("update message content", err))
	}

	s.logEntry(req).WithField(LogFieldMessageID, maskMessageID(ctx, msg.SourceID)).Info("Message deleted")
	return processed("deleted")
}
