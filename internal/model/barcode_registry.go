package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EntityType names the kind of record a registry entry points at.
type EntityType string

const (
	EntityTypeProduct     EntityType = "product"
	EntityTypeProductUnit EntityType = "product_unit"
)

func (t EntityType) Validate() error {
	switch t {
	case EntityTypeProduct, EntityTypeProductUnit:
		return nil
	default:
		return fmt.Errorf("unknown entity type: %s", t)
	}
}

// BarcodeType distinguishes unit-level from product-level barcodes.
type BarcodeType string

const (
	BarcodeTypeUnit    BarcodeType = "unit"
	BarcodeTypeProduct BarcodeType = "product"
)

func (t BarcodeType) Validate() error {
	switch t {
	case BarcodeTypeUnit, BarcodeTypeProduct:
		return nil
	default:
		return fmt.Errorf("unknown barcode type: %s", t)
	}
}

// BarcodeRegistryEntry maps a barcode value to the entity it identifies.
// Entries are weak references: they must never outlive their target entity,
// and barcode values are globally unique across the registry.
type BarcodeRegistryEntry struct {
	ID          uuid.UUID   `json:"id"`
	Barcode     string      `json:"barcode"`
	EntityType  EntityType  `json:"entity_type"`
	EntityID    uuid.UUID   `json:"entity_id"`
	BarcodeType BarcodeType `json:"barcode_type"`
	Source      string      `json:"source"`
	GeneratedAt time.Time   `json:"generated_at"`
}
