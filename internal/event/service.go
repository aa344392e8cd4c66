package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tdminh/storecore/internal/coordinator"
	"github.com/tdminh/storecore/internal/storage/mq"
)

// Service bridges the broker into the in-process coordinator: a sync
// request published by another store instance becomes a local
// sync_requested coordination event.
type Service struct {
	logger      *slog.Logger
	mqConsumer  mq.Consumer
	coordinator *coordinator.Coordinator
}

// New creates a new event service.
func New(
	logger *slog.Logger,
	mqConsumer mq.Consumer,
	coord *coordinator.Coordinator,
) *Service {
	return &Service{
		logger:      logger.With(slog.String("service", "event")),
		mqConsumer:  mqConsumer,
		coordinator: coord,
	}
}

type CleanupFunc func()

func (s *Service) Run(ctx context.Context) (CleanupFunc, error) {
	if err := s.mqConsumer.RegisterHandler(
		TopicSyncRequested,
		func(ctx context.Context, topic string, payload []byte) error {
			var ev SyncRequestedEvent
			if err := json.Unmarshal(payload, &ev); err != nil {
				return fmt.Errorf("unmarshal sync requested event: %w", err)
			}

			s.handleSyncRequested(ctx, ev)
			return nil
		},
	); err != nil {
		return nil, fmt.Errorf("register sync requested handler: %w", err)
	}

	mqCleanup, err := s.mqConsumer.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("run mq consumer: %w", err)
	}

	cleanup := func() {
		mqCleanup()
	}

	return cleanup, nil
}

func (s *Service) handleSyncRequested(ctx context.Context, ev SyncRequestedEvent) {
	s.logger.InfoContext(ctx, "handling remote sync request",
		slog.String("module", ev.Module),
		slog.String("reason", ev.Reason),
	)

	s.coordinator.Notify(ctx, coordinator.Event{
		Kind:   coordinator.KindSyncRequested,
		Source: coordinator.Module(ev.Module),
		Data: map[string]any{
			"reason": ev.Reason,
		},
	})
}
