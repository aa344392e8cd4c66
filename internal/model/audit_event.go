package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditEvent is one outbox row. Repair and barcode mutations write audit
// events in the same transaction as the mutation; the relay publishes
// unpublished rows to the broker and stamps PublishedAt.
type AuditEvent struct {
	ID           uuid.UUID       `json:"id"`
	Topic        string          `json:"topic"`
	Headers      map[string]string `json:"headers,omitempty"`
	Payload      json.RawMessage `json:"payload"`
	PartitionKey *string         `json:"partition_key,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	PublishedAt  *time.Time      `json:"published_at,omitempty"`
	Error        *string         `json:"error,omitempty"`
}
