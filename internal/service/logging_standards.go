package service

// Logging standards for waingest
//
// Use these exact field names so log queries work across handlers.
const (
	// Core identifiers
	LogFieldProvider  = "provider"
	LogFieldInbox     = "inbox_id"
	LogFieldMessageID = "message_id"
	LogFieldChatID    = "chat_id"
	LogFieldContactID = "contact_id"

	// Event fields
	LogFieldEvent       = "event"
	LogFieldHandler     = "handler"
	LogFieldMessageType = "message_type"
	LogFieldDirection   = "direction" // "incoming" or "outgoing"
	LogFieldStatus      = "status"
	LogFieldOutcome     = "outcome"
	LogFieldReason      = "reason"

	// Performance
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"

	// HTTP
	LogFieldRequestID  = "request_id"
	LogFieldTraceID    = "trace_id"
	LogFieldMethod     = "method"
	LogFieldRoute      = "route"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"
	LogFieldSize       = "size_bytes"
)

// Log level usage
//
// DEBUG: skipped events and cache hits.
//
// INFO: messages created, bound, edited or deleted; connection changes.
//
// WARN: store misses, illegal transitions, failed lookups and queue
// publishes. The event is still acknowledged.
//
// ERROR: store failures that abort an element.
