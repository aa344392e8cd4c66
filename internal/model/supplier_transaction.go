package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TransactionTypePurchase TransactionType = "purchase"
	TransactionTypePayment  TransactionType = "payment"
	TransactionTypeReturn   TransactionType = "return"
)

func (t TransactionType) Validate() error {
	switch t {
	case TransactionTypePurchase, TransactionTypePayment, TransactionTypeReturn:
		return nil
	default:
		return fmt.Errorf("unknown transaction type: %s", t)
	}
}

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

func (s TransactionStatus) Validate() error {
	switch s {
	case TransactionStatusPending, TransactionStatusCompleted, TransactionStatusCancelled:
		return nil
	default:
		return fmt.Errorf("unknown transaction status: %s", s)
	}
}

// SupplierTransaction records intake from (or payment/return to) one
// supplier. TotalAmount must stay within rounding tolerance of the sum of
// its item total costs; a transaction with no items is orphaned.
type SupplierTransaction struct {
	ID          uuid.UUID         `json:"id"`
	SupplierID  uuid.UUID         `json:"supplier_id"`
	Type        TransactionType   `json:"type"`
	Status      TransactionStatus `json:"status"`
	TotalAmount float64           `json:"total_amount"`
	Date        time.Time         `json:"date"`
	Notes       string            `json:"notes"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// SupplierTransactionItem is one product line on a transaction. For a
// serialized product, ProductUnitIDs lists the exact units covered and its
// length must equal Quantity.
type SupplierTransactionItem struct {
	ID             uuid.UUID   `json:"id"`
	TransactionID  uuid.UUID   `json:"transaction_id"`
	ProductID      uuid.UUID   `json:"product_id"`
	Quantity       int         `json:"quantity"`
	UnitCost       float64     `json:"unit_cost"`
	TotalCost      float64     `json:"total_cost"`
	ProductUnitIDs []uuid.UUID `json:"product_unit_ids"`
	CreatedAt      time.Time   `json:"created_at"`
}

// TotalAmountTolerance is the rounding slack allowed between a stored
// transaction total and the recomputed sum of its item costs.
const TotalAmountTolerance = 0.01
