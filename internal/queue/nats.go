package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/contractsentinel/internal/config"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Conn is a NATS connection with a JetStream context and the job stream in place.
type Conn struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	cfg config.NATSConfig
}

// Connect dials NATS and creates or updates the job stream.
func Connect(ctx context.Context, cfg config.NATSConfig) (*Conn, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("contractsentinel"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        cfg.Stream,
		Description: "Contract documents awaiting review",
		Subjects:    []string{cfg.Subject},
		Retention:   jetstream.WorkQueuePolicy,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", cfg.Stream, err)
	}

	slog.Info("nats connected", "url", cfg.URL, "stream", cfg.Stream, "subject", cfg.Subject)
	return &Conn{nc: nc, js: js, cfg: cfg}, nil
}

// Ping reports whether the underlying connection is up.
func (c *Conn) Ping(context.Context) error {
	if !c.nc.IsConnected() {
		return errors.New("nats: not connected")
	}
	return nil
}

// Close drains the connection.
func (c *Conn) Close() {
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
	}
}
