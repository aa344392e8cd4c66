package event

import "github.com/google/uuid"

// Broker topics. Audit topics carry outbox rows published by the relay;
// the sync topic is consumed from other store instances.
const (
	TopicAuditBarcodeGenerated = "storecore.audit.barcode_generated"
	TopicAuditIntegrityFix     = "storecore.audit.integrity_fix"
	TopicAuditRecovery         = "storecore.audit.recovery"
	TopicSyncRequested         = "storecore.sync.requested"
)

// BarcodeGeneratedAudit records one successful barcode assignment.
type BarcodeGeneratedAudit struct {
	Barcode    string    `json:"barcode"`
	EntityType string    `json:"entity_type"`
	EntityID   uuid.UUID `json:"entity_id"`
	Source     string    `json:"source"`
}

// IntegrityFixAudit records one repair-engine fix batch. Destructive marks
// fixes that removed rows, so downstream audit can tell data loss from
// data repair.
type IntegrityFixAudit struct {
	FixType       string `json:"fix_type"`
	Description   string `json:"description"`
	AffectedCount int    `json:"affected_count"`
	ErrorCount    int    `json:"error_count"`
	Destructive   bool   `json:"destructive"`
}

// RecoveryAudit records one orphaned-unit recovery transaction.
type RecoveryAudit struct {
	TransactionID  uuid.UUID `json:"transaction_id"`
	SupplierID     uuid.UUID `json:"supplier_id"`
	RequestedUnits int       `json:"requested_units"`
	LinkedUnits    int       `json:"linked_units"`
	TotalAmount    float64   `json:"total_amount"`
}

// SyncRequestedEvent asks a store instance to refresh its cached views.
type SyncRequestedEvent struct {
	Module string `json:"module"`
	Reason string `json:"reason"`
}
