package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UnitStatus is the lifecycle state of a serialized unit.
type UnitStatus string

const (
	UnitStatusAvailable UnitStatus = "available"
	UnitStatusReserved  UnitStatus = "reserved"
	UnitStatusSold      UnitStatus = "sold"
	UnitStatusReturned  UnitStatus = "returned"
	UnitStatusDefective UnitStatus = "defective"
)

func (s UnitStatus) Validate() error {
	switch s {
	case UnitStatusAvailable, UnitStatusReserved, UnitStatusSold,
		UnitStatusReturned, UnitStatusDefective:
		return nil
	default:
		return fmt.Errorf("unknown unit status: %s", s)
	}
}

// Active reports whether the unit counts toward sellable or sold stock.
// Active units are the ones a missing barcode is an error for.
func (s UnitStatus) Active() bool {
	return s == UnitStatusAvailable || s == UnitStatusReserved || s == UnitStatusSold
}

// ProductUnit is one serialized stock item. Barcode stays nil until the
// barcode authority assigns one; SupplierID/SupplierTransactionID stay nil
// for units that lost their intake linkage and are subject to recovery.
type ProductUnit struct {
	ID                    uuid.UUID  `json:"id"`
	ProductID             uuid.UUID  `json:"product_id"`
	SerialNumber          string     `json:"serial_number"`
	Barcode               *string    `json:"barcode,omitempty"`
	BatteryLevel          *int       `json:"battery_level,omitempty"`
	Color                 string     `json:"color"`
	Storage               string     `json:"storage"`
	RAM                   string     `json:"ram"`
	PurchasePrice         float64    `json:"purchase_price"`
	MinPrice              float64    `json:"min_price"`
	MaxPrice              float64    `json:"max_price"`
	Status                UnitStatus `json:"status"`
	SupplierID            *uuid.UUID `json:"supplier_id,omitempty"`
	SupplierTransactionID *uuid.UUID `json:"supplier_transaction_id,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// HasBarcode reports whether the unit carries a non-empty barcode.
func (u ProductUnit) HasBarcode() bool {
	return u.Barcode != nil && *u.Barcode != ""
}
