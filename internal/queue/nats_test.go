package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/contractsentinel/internal/config"
	"github.com/kiranshivaraju/contractsentinel/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type recordingProcessor struct {
	mu   sync.Mutex
	seen map[uuid.UUID]string
	done chan struct{}
}

func (r *recordingProcessor) ProcessJob(_ context.Context, id uuid.UUID, ref string) {
	r.mu.Lock()
	r.seen[id] = ref
	r.mu.Unlock()
	r.done <- struct{}{}
}

func setupNATS(t *testing.T) config.NATSConfig {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			Cmd:          []string{"-js"},
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222")
	require.NoError(t, err)

	return config.NATSConfig{
		URL:        "nats://" + host + ":" + port.Port(),
		Stream:     "CONTRACT_JOBS_TEST",
		Subject:    "contracts.test",
		Durable:    "worker-test",
		AckWait:    30 * time.Second,
		MaxDeliver: 3,
	}
}

func TestPublishConsume(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	cfg := setupNATS(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := queue.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	require.NoError(t, conn.Ping(ctx))

	id := uuid.New()
	require.NoError(t, queue.NewPublisher(conn).Publish(ctx, id, "file://msa.md"))

	proc := &recordingProcessor{seen: map[uuid.UUID]string{}, done: make(chan struct{}, 1)}
	runCtx, stop := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- queue.NewConsumer(conn, proc, nil).Run(runCtx) }()

	select {
	case <-proc.done:
	case <-ctx.Done():
		t.Fatal("message was not consumed")
	}
	stop()
	require.NoError(t, <-errCh)

	proc.mu.Lock()
	defer proc.mu.Unlock()
	assert.Equal(t, "file://msa.md", proc.seen[id])
}
