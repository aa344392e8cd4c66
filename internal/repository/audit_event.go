package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tdminh/storecore/internal/model"
	"github.com/tdminh/storecore/internal/storage/db"
)

type CreateAuditEventParams struct {
	Topic        string
	Headers      map[string]string
	Payload      json.RawMessage
	PartitionKey *string
}

type MarkPublishedItem struct {
	ID    uuid.UUID
	Error *string
}

type AuditEventRepository interface {
	WithDB(db db.DB) AuditEventRepository
	CreateAuditEvent(ctx context.Context, params CreateAuditEventParams) error
	ListUnpublished(ctx context.Context, batchSize int32) ([]model.AuditEvent, error)
	MarkPublished(ctx context.Context, items []MarkPublishedItem) error
}

type auditEventRepository struct {
	db db.DB
}

func NewAuditEventRepository(db db.DB) AuditEventRepository {
	return &auditEventRepository{db: db}
}

func (r auditEventRepository) WithDB(db db.DB) AuditEventRepository {
	return &auditEventRepository{db: db}
}

func (r auditEventRepository) CreateAuditEvent(ctx context.Context, params CreateAuditEventParams) error {
	headersBytes, err := json.Marshal(params.Headers)
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}

	if _, err := r.db.Exec(ctx, `
		INSERT INTO audit_events (topic, headers, payload, partition_key, created_at)
		VALUES (@topic, @headers, @payload, @partition_key, @created_at)
	`, pgx.NamedArgs{
		"topic":         params.Topic,
		"headers":       headersBytes,
		"payload":       []byte(params.Payload),
		"partition_key": params.PartitionKey,
		"created_at":    time.Now(),
	}); err != nil {
		return fmt.Errorf("create audit event: %w", err)
	}
	return nil
}

func (r auditEventRepository) ListUnpublished(ctx context.Context, batchSize int32) ([]model.AuditEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, topic, headers, payload, partition_key, created_at, published_at, error
		FROM audit_events
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT @batch_size
	`, pgx.NamedArgs{"batch_size": batchSize})
	if err != nil {
		return nil, fmt.Errorf("list unpublished audit events: %w", err)
	}
	defer rows.Close()

	var events []model.AuditEvent
	for rows.Next() {
		var (
			ev      model.AuditEvent
			headers []byte
			payload []byte
		)
		if err := rows.Scan(
			&ev.ID, &ev.Topic, &headers, &payload, &ev.PartitionKey,
			&ev.CreatedAt, &ev.PublishedAt, &ev.Error,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		if len(headers) > 0 {
			if err := json.Unmarshal(headers, &ev.Headers); err != nil {
				return nil, fmt.Errorf("unmarshal headers: %w", err)
			}
		}
		ev.Payload = json.RawMessage(payload)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func (r auditEventRepository) MarkPublished(ctx context.Context, items []MarkPublishedItem) error {
	if len(items) == 0 {
		return nil
	}

	ids := make([]string, 0, len(items))
	errs := make([]*string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID.String())
		errs = append(errs, item.Error)
	}

	if _, err := r.db.Exec(ctx, `
		UPDATE audit_events AS a
		SET
			published_at = NOW(),
			error        = e.error
		FROM (
			SELECT UNNEST(@ids::uuid[])    AS id,
				   UNNEST(@errors::text[]) AS error
		) AS e
		WHERE a.id = e.id
	`, pgx.NamedArgs{
		"ids":    ids,
		"errors": errs,
	}); err != nil {
		return fmt.Errorf("mark audit events published: %w", err)
	}
	return nil
}
