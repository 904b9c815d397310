package queue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/contractsentinel/internal/metrics"
	"github.com/nats-io/nats.go/jetstream"
)

// Processor handles one decoded job. ProcessJob must not return until the
// job has reached a terminal status or been skipped.
type Processor interface {
	ProcessJob(ctx context.Context, jobID uuid.UUID, ref string)
}

type ackAction int

const (
	ackDone ackAction = iota
	ackTerm
	ackNak
)

func (a ackAction) String() string {
	switch a {
	case ackDone:
		return "acked"
	case ackTerm:
		return "terminated"
	default:
		return "nacked"
	}
}

// Consumer pulls job messages from a durable JetStream consumer.
type Consumer struct {
	conn      *Conn
	processor Processor
	metrics   *metrics.Recorder
}

// NewConsumer creates a Consumer. rec may be nil.
func NewConsumer(conn *Conn, p Processor, rec *metrics.Recorder) *Consumer {
	return &Consumer{conn: conn, processor: p, metrics: rec}
}

// Run consumes messages until ctx is cancelled. Messages are handled one at a
// time; the message in flight finishes before Run returns.
func (c *Consumer) Run(ctx context.Context) error {
	cfg := c.conn.cfg
	cons, err := c.conn.js.CreateOrUpdateConsumer(ctx, cfg.Stream, jetstream.ConsumerConfig{
		Durable:       cfg.Durable,
		FilterSubject: cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", cfg.Durable, err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		c.dispatch(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.Info("queue consumer started", "stream", cfg.Stream, "durable", cfg.Durable)
	<-ctx.Done()
	cc.Drain()
	<-cc.Closed()
	slog.Info("queue consumer stopped")
	return nil
}

func (c *Consumer) dispatch(ctx context.Context, msg jetstream.Msg) {
	action := handle(ctx, c.processor, msg.Data())

	var err error
	switch action {
	case ackDone:
		err = msg.Ack()
	case ackTerm:
		err = msg.Term()
	default:
		err = msg.Nak()
	}
	if err != nil {
		slog.Error("failed to settle message", "action", action.String(), "error", err)
	}
	c.metrics.IncQueueMessage(action.String())
}

// handle decodes one message and runs it. Invalid messages are terminated so
// they are never redelivered. A panic escaping the processor is nacked, as is
// a message delivered after ctx is done (buffered messages handed over while
// the subscription drains).
func handle(ctx context.Context, p Processor, data []byte) (action ackAction) {
	job, err := Decode(data)
	if err != nil {
		slog.Warn("rejecting invalid job message", "error", err)
		return ackTerm
	}

	if ctx.Err() != nil {
		slog.Info("worker stopping, returning job for redelivery", "job_id", job.ID)
		return ackNak
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("job processor panicked", "job_id", job.ID, "panic", r, "stack", string(debug.Stack()))
			action = ackNak
		}
	}()

	p.ProcessJob(ctx, job.ID, job.DocumentReference)
	return ackDone
}
