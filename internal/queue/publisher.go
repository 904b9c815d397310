package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/contractsentinel/internal/fault"
)

// Publisher enqueues newly created jobs.
type Publisher struct {
	conn    *Conn
	subject string
}

func NewPublisher(conn *Conn) *Publisher {
	return &Publisher{conn: conn, subject: conn.cfg.Subject}
}

// Publish sends a job message and waits for the stream acknowledgement.
func (p *Publisher) Publish(ctx context.Context, jobID uuid.UUID, ref string) error {
	data, err := Encode(jobID, ref)
	if err != nil {
		return fmt.Errorf("encode job message: %w", err)
	}
	if _, err := p.conn.js.Publish(ctx, p.subject, data); err != nil {
		return fault.Unavailable("publish job", err)
	}
	return nil
}
