package service

import (
	"context"

	"github.com/mariovalmir/chatwoot/internal/privacy"

	"github.com/sirupsen/logrus"
)

// ContextKey is a package-local type to prevent context key collisions
// See staticcheck SA1029 guidance
type ContextKey string

// VerboseContextKey carries the verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// WithVerbose marks ctx for unmasked identifiers in logs.
func WithVerbose(ctx context.Context, verbose bool) context.Context {
	return context.WithValue(ctx, VerboseContextKey, verbose)
}

func maskJID(ctx context.Context, v string) string {
	if IsVerboseLogging(ctx) {
		return v
	}
	return privacy.MaskJID(v)
}

func maskMessageID(ctx context.Context, v string) string {
	if IsVerboseLogging(ctx) {
		return v
	}
	return privacy.MaskMessageID(v)
}

// logEntry starts an entry carrying the request's provider, inbox and event.
func (s *Service) logEntry(req *Request) *logrus.Entry {
	fields := logrus.Fields{}
	if req != nil {
		fields[LogFieldEvent] = req.Event
		if req.Inbox != nil {
			fields[LogFieldProvider] = string(req.Inbox.Provider)
			fields[LogFieldInbox] = req.Inbox.ID
		}
	}
	return s.logger.WithFields(fields)
}
