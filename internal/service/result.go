package service

import (
	"github.com/mariovalmir/chatwoot/internal/models"
	"github.com/mariovalmir/chatwoot/internal/payload"
)

// Request is one element of a webhook delivery.
type Request struct {
	Inbox *models.Inbox
	// Event is the event name as delivered, lowercased.
	Event string
	// Data is the element being handled.
	Data payload.Payload
	// Envelope is the whole webhook body.
	Envelope payload.Payload
	// Index is the element's position in the delivery.
	Index int
}

// Origin is the label of the client that produced the event, when known.
func (r *Request) Origin() string {
	if r == nil {
		return ""
	}
	if v := r.Envelope.Str("origin"); v != "" {
		return v
	}
	return r.Data.Str("origin")
}

// with returns a copy of r carrying data.
func (r *Request) with(data payload.Payload) *Request {
	c := *r
	c.Data = data
	return &c
}

func (r *Request) provider() models.Provider {
	if r == nil || r.Inbox == nil {
		return ""
	}
	return r.Inbox.Provider
}

type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Result reports how one element was handled.
type Result struct {
	Outcome Outcome
	Reason  string
	Err     error
}

func processed(reason string) Result {
	return Result{Outcome: OutcomeProcessed, Reason: reason}
}

func skipped(reason string) Result {
	return Result{Outcome: OutcomeSkipped, Reason: reason}
}

func failed(reason string, err error) Result {
	return Result{Outcome: OutcomeFailed, Reason: reason, Err: err}
}

// BatchReport aggregates the results of every element of a delivery.
type BatchReport struct {
	Event   string
	Handler string
	Results []Result
}

func (b *BatchReport) Add(r Result) {
	b.Results = append(b.Results, r)
}

func (b *BatchReport) count(o Outcome) int {
	n := 0
	for _, r := range b.Results {
		if r.Outcome == o {
			n++
		}
	}
	return n
}

func (b *BatchReport) Processed() int { return b.count(OutcomeProcessed) }
func (b *BatchReport) Skipped() int   { return b.count(OutcomeSkipped) }
func (b *BatchReport) Failed() int    { return b.count(OutcomeFailed) }

// Errors returns the errors of failed elements.
func (b *BatchReport) Errors() []error {
	var errs []error
	for _, r := range b.Results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errs
}
