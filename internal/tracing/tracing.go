package tracing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	startTimeKey contextKey = "start_time"
)

// RequestIDHeader is echoed back to webhook callers so gateway logs can be
// matched with ours.
const RequestIDHeader = "X-Request-ID"

// NewRequestID returns a fresh request id.
func NewRequestID() string {
	return uuid.NewString()
}

// WithRequest stores the request id and start time on ctx.
func WithRequest(ctx context.Context, requestID string, start time.Time) context.Context {
	ctx = context.WithValue(ctx, requestIDKey, requestID)
	return context.WithValue(ctx, startTimeKey, start)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Duration is the time elapsed since WithRequest, or zero.
func Duration(ctx context.Context) time.Duration {
	start, ok := ctx.Value(startTimeKey).(time.Time)
	if !ok || start.IsZero() {
		return 0
	}
	return time.Since(start)
}
