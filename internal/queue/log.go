package queue

import (
	"context"

	"github.com/mariovalmir/chatwoot/internal/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LogPublisher writes jobs to the log. It stands in for a broker in
// single-node setups and tests.
type LogPublisher struct {
	logger *logrus.Logger
}

func NewLogPublisher(logger *logrus.Logger) *LogPublisher {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, job Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	p.logger.WithFields(logrus.Fields{
		"job_id":          job.ID,
		"kind":            job.Kind,
		"inbox_id":        job.InboxID,
		"conversation_id": job.ConversationID,
		"contact_id":      job.ContactID,
		"status":          job.Status,
		"connection":      job.Connection,
	}).Info("Job scheduled")
	metrics.JobPublished(job.Kind, nil)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
