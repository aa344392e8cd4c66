package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdminh/storecore/internal/config"
	"github.com/tdminh/storecore/internal/repository"
	"github.com/tdminh/storecore/internal/repository/memory"
	"github.com/tdminh/storecore/internal/storage/mq"
)

type fakeProducer struct {
	mu       sync.Mutex
	produced []mq.ProduceMsg
	failFor  map[string]error
}

func (p *fakeProducer) Produce(_ context.Context, msg mq.ProduceMsg) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.failFor[msg.Topic]; err != nil {
		return err
	}
	p.produced = append(p.produced, msg)
	return nil
}

func newService(store *memory.Store, producer mq.Producer) *Service {
	return NewService(
		config.Relay{BatchSize: 100},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		memory.DB{},
		store.AuditRepo(),
		producer,
	)
}

func TestRelayBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("Should publish pending events exactly once", func(t *testing.T) {
		store := memory.NewStore()
		for i := 0; i < 3; i++ {
			require.NoError(t, store.CreateAuditEvent(ctx, repository.CreateAuditEventParams{
				Topic:   "storecore.audit.integrity_fix",
				Payload: []byte(`{}`),
			}))
		}

		producer := &fakeProducer{}
		svc := newService(store, producer)

		require.NoError(t, svc.relayBatch(ctx))
		assert.Len(t, producer.produced, 3)

		pending, err := store.ListUnpublished(ctx, 100)
		require.NoError(t, err)
		assert.Empty(t, pending)

		// Nothing left, second run is a no-op.
		require.NoError(t, svc.relayBatch(ctx))
		assert.Len(t, producer.produced, 3)
	})

	t.Run("Should record produce errors on the event row", func(t *testing.T) {
		store := memory.NewStore()
		require.NoError(t, store.CreateAuditEvent(ctx, repository.CreateAuditEventParams{
			Topic:   "storecore.audit.recovery",
			Payload: []byte(`{}`),
		}))

		producer := &fakeProducer{failFor: map[string]error{
			"storecore.audit.recovery": errors.New("broker unreachable"),
		}}
		svc := newService(store, producer)

		require.NoError(t, svc.relayBatch(ctx))
		assert.Empty(t, producer.produced)

		require.Len(t, store.AuditEvents, 1)
		require.NotNil(t, store.AuditEvents[0].Error)
		assert.Contains(t, *store.AuditEvents[0].Error, "broker unreachable")
	})
}
