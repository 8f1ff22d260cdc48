package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mariovalmir/chatwoot/internal/constants"
	apperrors "github.com/mariovalmir/chatwoot/internal/errors"
	"github.com/mariovalmir/chatwoot/internal/metrics"
	"github.com/mariovalmir/chatwoot/internal/retry"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// ErrNotConfirmed is returned when the broker nacks a job.
var ErrNotConfirmed = errors.New("broker did not confirm the job")

// AMQPPublisher publishes jobs as persistent JSON messages on a topic
// exchange, keyed by job kind, and waits for publisher confirms.
type AMQPPublisher struct {
	conn     *amqp.Connection
	exchange string
	logger   *logrus.Logger

	mu sync.Mutex
	ch *amqp.Channel
}

// DialAMQP connects to the broker, retrying with the startup backoff, and
// declares the exchange.
func DialAMQP(ctx context.Context, url, exchange string, logger *logrus.Logger) (*AMQPPublisher, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if exchange == "" {
		exchange = constants.DefaultAMQPExchange
	}

	var conn *amqp.Connection
	err := retry.NewBackoff(retry.StartupBackoffConfig()).
		OnRetry(func(attempt int, delay time.Duration, err error) {
			logger.WithError(err).WithFields(logrus.Fields{
				"attempt":  attempt,
				"delay_ms": delay.Milliseconds(),
			}).Warn("Broker dial failed, retrying")
		}).
		Retry(ctx, func() error {
			var dialErr error
			conn, dialErr = amqp.Dial(url)
			return dialErr
		})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeNetworkError, "failed to connect to broker")
	}

	p := &AMQPPublisher{conn: conn, exchange: exchange, logger: logger}
	ch, err := p.channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	logger.WithField("exchange", exchange).Info("Job publisher connected")
	return p, nil
}

// channel returns the confirm-mode channel, reopening it after a channel
// level error closed it.
func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, apperrors.WrapRetryable(err, apperrors.ErrCodeNetworkError, "failed to open channel")
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to enable confirms: %w", err)
	}
	p.ch = ch
	return ch, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, job Job) (err error) {
	defer func() { metrics.JobPublished(job.Kind, err) }()

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, job.Kind, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Timestamp:    job.Timestamp,
		Type:         job.Kind,
		Body:         body,
	})
	if err != nil {
		return apperrors.WrapRetryable(err, apperrors.ErrCodeNetworkError, "failed to publish job")
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeTimeout, "waiting for confirm")
	}
	if !acked {
		return ErrNotConfirmed
	}

	p.logger.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"kind":     job.Kind,
		"exchange": p.exchange,
	}).Debug("Job published")
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	return p.conn.Close()
}
