package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tdminh/storecore/internal/config"
	"github.com/tdminh/storecore/internal/repository"
	"github.com/tdminh/storecore/internal/storage/db"
	"github.com/tdminh/storecore/internal/storage/mq"
	"github.com/tdminh/storecore/pkg/ptr"
)

// Service drains unpublished audit events to the broker. Publication and
// bookkeeping share one transaction, so a crashed relay re-delivers
// instead of losing events; consumers must tolerate duplicates.
type Service struct {
	cfg        config.Relay
	logger     *slog.Logger
	db         db.DB
	auditRepo  repository.AuditEventRepository
	mqProducer mq.Producer

	stopChan chan struct{}
}

func NewService(
	cfg config.Relay,
	logger *slog.Logger,
	db db.DB,
	auditRepo repository.AuditEventRepository,
	mqProducer mq.Producer,
) *Service {
	return &Service{
		cfg:        cfg,
		logger:     logger.With(slog.String("service", "relay")),
		db:         db,
		auditRepo:  auditRepo,
		mqProducer: mqProducer,
		stopChan:   make(chan struct{}),
	}
}

type CleanupFunc func()

func (s *Service) Run(ctx context.Context) CleanupFunc {
	ctx, cancel := context.WithCancel(ctx)

	stoppedChan := make(chan struct{})
	go func() {
		defer close(stoppedChan)
		s.run(ctx)
	}()

	return func() {
		close(s.stopChan)
		select {
		case <-stoppedChan:
		case <-time.After(5 * time.Second):
			cancel()
		}
	}
}

func (s *Service) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-time.After(s.cfg.Interval):
			if err := s.relayBatch(ctx); err != nil {
				s.logger.ErrorContext(ctx, "error relaying audit events", slog.Any("error", err))
			}
		}
	}
}

func (s *Service) relayBatch(ctx context.Context) error {
	return s.db.WithTx(ctx, func(tx db.DB) error {
		//nolint:gosec
		events, err := s.auditRepo.WithDB(tx).ListUnpublished(ctx, int32(s.cfg.BatchSize))
		if err != nil {
			return fmt.Errorf("list unpublished audit events: %w", err)
		}

		if len(events) == 0 {
			return nil
		}

		s.logger.InfoContext(ctx, "relaying audit events", slog.Int("count", len(events)))

		items := make([]repository.MarkPublishedItem, 0, len(events))
		var (
			mu sync.Mutex
			wg sync.WaitGroup
		)

		for _, ev := range events {
			msg := ev
			wg.Go(func() {
				err := s.mqProducer.Produce(ctx, mq.ProduceMsg{
					Topic:        msg.Topic,
					Headers:      msg.Headers,
					Payload:      msg.Payload,
					PartitionKey: msg.PartitionKey,
				})
				if err != nil {
					s.logger.ErrorContext(ctx, "error producing audit event",
						slog.String("audit_event_id", msg.ID.String()),
						slog.String("topic", msg.Topic),
						slog.Any("error", err),
					)
				}

				item := repository.MarkPublishedItem{ID: msg.ID}
				if err != nil {
					item.Error = ptr.New(err.Error())
				}

				mu.Lock()
				items = append(items, item)
				mu.Unlock()
			})
		}

		wg.Wait()

		if err := s.auditRepo.WithDB(tx).MarkPublished(ctx, items); err != nil {
			return fmt.Errorf("mark audit events published: %w", err)
		}
		return nil
	})
}
