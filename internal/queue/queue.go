// Package queue carries ingestion jobs over NATS JetStream with at-least-once
// delivery. Uploads publish a job per document; workers consume from a
// durable work queue, acknowledging only after ingestion reaches a terminal
// outcome. A worker crash mid-job leaves the message unacknowledged and
// JetStream redelivers it after the ack wait elapses.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	// StreamName is the JetStream stream holding ingestion jobs.
	StreamName = "INGEST"

	// Subject is the subject ingestion jobs are published on.
	Subject = "ingest.document"

	// ConsumerName is the durable queue group workers consume as. All
	// worker processes share it, so each job goes to exactly one worker
	// per delivery attempt.
	ConsumerName = "ingest-workers"
)

// nakDelay is the redelivery backoff requested when a handler reports a
// transient failure.
const nakDelay = 5 * time.Second

// Job is the wire payload of one ingestion job. The payload carries only the
// document ID; all state lives in the database, so a redelivered job always
// operates on current data.
type Job struct {
	DocumentID uuid.UUID `json:"document_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Handler processes one delivered job. A nil return acknowledges the
// message; ingestion reached a terminal outcome, including permanent
// failures recorded in the database. A non-nil return signals a transient
// failure and the message is redelivered after a delay.
type Handler func(ctx context.Context, job Job) error

// Config controls delivery behavior of the work queue.
type Config struct {
	// MaxDeliver caps delivery attempts per job before JetStream stops
	// redelivering it.
	MaxDeliver int

	// AckWait is how long a worker may hold a job before JetStream
	// considers it lost and redelivers.
	AckWait time.Duration
}

// Queue is a JetStream-backed ingestion job queue.
type Queue struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	cfg    Config
	logger *slog.Logger
}

// Connect dials NATS, ensures the ingestion stream exists, and returns the
// queue. A nil logger falls back to slog.Default().
func Connect(url string, cfg Config, logger *slog.Logger) (*Queue, error) {
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	// Work queue retention: a message is removed once one consumer
	// acknowledges it.
	if _, err := js.StreamInfo(StreamName); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      StreamName,
			Subjects:  []string{Subject},
			Retention: nats.WorkQueuePolicy,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to create stream %s: %w", StreamName, err)
		}
	}

	logger.Debug("connected to NATS", "url", url, "stream", StreamName)
	return &Queue{nc: nc, js: js, cfg: cfg, logger: logger}, nil
}

// Close drains the connection, letting in-flight messages finish.
func (q *Queue) Close() error {
	if err := q.nc.Drain(); err != nil {
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}

// Enqueue publishes an ingestion job for the document. The publish waits for
// JetStream's acknowledgment, so a nil return means the job is persisted.
func (q *Queue) Enqueue(ctx context.Context, documentID uuid.UUID) error {
	data, err := json.Marshal(Job{DocumentID: documentID, EnqueuedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if _, err := q.js.Publish(Subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish job for document %s: %w", documentID, err)
	}
	q.logger.Debug("enqueued ingestion job", "document_id", documentID)
	return nil
}

// Consume subscribes the durable worker group and dispatches jobs to the
// handler until the subscription is stopped. The returned stop function
// drains the subscription. Handlers run with ctx; once it is canceled,
// in-flight jobs fail as transient and are redelivered rather than
// completed, which at-least-once delivery already requires handlers to
// tolerate.
//
// Messages that fail to decode are terminated rather than redelivered;
// retrying a malformed payload can never succeed.
func (q *Queue) Consume(ctx context.Context, handler Handler) (stop func() error, err error) {
	sub, err := q.js.QueueSubscribe(Subject, ConsumerName, func(msg *nats.Msg) {
		var job Job
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			q.logger.Error("terminating malformed job payload", "error", err)
			if termErr := msg.Term(); termErr != nil {
				q.logger.Error("failed to terminate message", "error", termErr)
			}
			return
		}

		if err := handler(ctx, job); err != nil {
			q.logger.Warn("job failed, requesting redelivery",
				"document_id", job.DocumentID, "error", err)
			if nakErr := msg.NakWithDelay(nakDelay); nakErr != nil {
				q.logger.Error("failed to nak message", "error", nakErr)
			}
			return
		}

		if err := msg.Ack(); err != nil {
			// The job completed but the ack was lost; the message will be
			// redelivered and the handler must tolerate that.
			q.logger.Error("failed to ack message", "document_id", job.DocumentID, "error", err)
		}
	},
		nats.Durable(ConsumerName),
		nats.ManualAck(),
		nats.AckWait(q.cfg.AckWait),
		nats.MaxDeliver(q.cfg.MaxDeliver),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", Subject, err)
	}

	q.logger.Info("consuming ingestion jobs",
		"subject", Subject, "consumer", ConsumerName,
		"max_deliver", q.cfg.MaxDeliver, "ack_wait", q.cfg.AckWait)

	return func() error {
		if err := sub.Drain(); err != nil {
			return fmt.Errorf("failed to drain subscription: %w", err)
		}
		return nil
	}, nil
}
