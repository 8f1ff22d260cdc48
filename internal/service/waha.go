package service

import (
	"context"

	"github.com/mariovalmir/chatwoot/internal/metrics"
	"github.com/mariovalmir/chatwoot/internal/normalize"
)

// Any handles WAHA's catch-all message event: fromMe spellings are
// normalized and the payload's source becomes its origin label.
func (s *Service) Any(ctx context.Context, req *Request) Result {
	if err := requireInbox(req); err != nil {
		return failed("no inbox", err)
	}
	data := normalize.PrepareAny(req.Data)
	if src := data.Str("source"); src != "" {
		data.SetIfBlank(src, "origin")
	}
	return s.Message(ctx, req.with(data))
}

// Message routes a WAHA message by its protocol kind: edits and revokes go
// to their handlers, everything else is rebuilt and upserted.
func (s *Service) Message(ctx context.Context, req *Request) Result {
	if err := requireInbox(req); err != nil {
		return failed("no inbox", err)
	}
	switch normalize.ProtocolType(req.Data) {
	case normalize.ProtocolEdit:
		return s.Edited(ctx, req)
	case normalize.ProtocolRevoke:
		return s.Revoked(ctx, req)
	}

	data := normalize.BuildWAHAMessage(req.Data)
	if data == nil {
		metrics.EventDropped(string(req.provider()), "malformed_payload")
		return skipped("message without chat")
	}
	return s.Upsert(ctx, req.with(data))
}

func (s *Service) Reaction(ctx context.Context, req *Request) Result {
	if err := requireInbox(req); err != nil {
		return failed("no inbox", err)
	}
	data := normalize.BuildWAHAReaction(req.Data)
	if data == nil {
		metrics.EventDropped(string(req.provider()), "malformed_payload")
		return skipped("reaction without target")
	}
	return s.Upsert(ctx, req.with(data))
}

// Edited applies an edit. Deliveries that already carry an Evolution style
// data element are updates as they stand.
func (s *Service) Edited(ctx context.Context, req *Request) Result {
	if err := requireInbox(req); err != nil {
		return failed("no inbox", err)
	}
	if req.Envelope.Present("data") {
		return s.Update(ctx, req)
	}
	data := normalize.BuildWAHAEdit(req.Data)
	if data == nil {
		metrics.EventDropped(string(req.provider()), "malformed_payload")
		return skipped("edit without target")
	}
	return s.Update(ctx, req.with(data))
}

func (s *Service) Revoked(ctx context.Context, req *Request) Result {
	if err := requireInbox(req); err != nil {
		return failed("no inbox", err)
	}
	data := normalize.BuildWAHARevoke(req.Data)
	if data == nil {
		metrics.EventDropped(string(req.provider()), "malformed_payload")
		return skipped("revoke without target")
	}
	return s.Delete(ctx, req.with(data))
}
