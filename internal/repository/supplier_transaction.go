package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tdminh/storecore/internal/model"
	"github.com/tdminh/storecore/internal/storage/db"
)

type SupplierTransactionRepository interface {
	WithDB(db db.DB) SupplierTransactionRepository
	CreateTransaction(ctx context.Context, tx model.SupplierTransaction) error
	CreateItem(ctx context.Context, item model.SupplierTransactionItem) error
	GetTransaction(ctx context.Context, id uuid.UUID) (model.SupplierTransaction, error)
	ListTransactions(ctx context.Context) ([]model.SupplierTransaction, error)
	ListItemsByTransaction(ctx context.Context, transactionID uuid.UUID) ([]model.SupplierTransactionItem, error)
	SetTotalAmount(ctx context.Context, id uuid.UUID, totalAmount float64) error
	// DeleteTransactionIfEmpty removes the transaction only when it still has
	// no items, re-checked inside the delete statement so a concurrently
	// added item keeps the transaction alive.
	DeleteTransactionIfEmpty(ctx context.Context, id uuid.UUID) (bool, error)
}

type supplierTransactionRepository struct {
	db db.DB
}

func NewSupplierTransactionRepository(db db.DB) SupplierTransactionRepository {
	return &supplierTransactionRepository{db: db}
}

func (r supplierTransactionRepository) WithDB(db db.DB) SupplierTransactionRepository {
	return &supplierTransactionRepository{db: db}
}

const transactionColumns = `id, supplier_id, type, status, total_amount, date, notes, created_at, updated_at`

func (r supplierTransactionRepository) CreateTransaction(ctx context.Context, tx model.SupplierTransaction) error {
	if _, err := r.db.Exec(ctx, `
		INSERT INTO supplier_transactions (id, supplier_id, type, status, total_amount, date, notes, created_at, updated_at)
		VALUES (@id, @supplier_id, @type, @status, @total_amount, @date, @notes, @created_at, @updated_at)
	`, pgx.NamedArgs{
		"id":           tx.ID,
		"supplier_id":  tx.SupplierID,
		"type":         tx.Type,
		"status":       tx.Status,
		"total_amount": tx.TotalAmount,
		"date":         tx.Date,
		"notes":        tx.Notes,
		"created_at":   tx.CreatedAt,
		"updated_at":   tx.UpdatedAt,
	}); err != nil {
		return fmt.Errorf("create supplier transaction: %w", err)
	}
	return nil
}

func (r supplierTransactionRepository) CreateItem(ctx context.Context, item model.SupplierTransactionItem) error {
	if _, err := r.db.Exec(ctx, `
		INSERT INTO supplier_transaction_items (id, transaction_id, product_id, quantity, unit_cost, total_cost, product_unit_ids, created_at)
		VALUES (@id, @transaction_id, @product_id, @quantity, @unit_cost, @total_cost, @product_unit_ids::uuid[], @created_at)
	`, pgx.NamedArgs{
		"id":               item.ID,
		"transaction_id":   item.TransactionID,
		"product_id":       item.ProductID,
		"quantity":         item.Quantity,
		"unit_cost":        item.UnitCost,
		"total_cost":       item.TotalCost,
		"product_unit_ids": uuidsToStrings(item.ProductUnitIDs),
		"created_at":       item.CreatedAt,
	}); err != nil {
		return fmt.Errorf("create supplier transaction item: %w", err)
	}
	return nil
}

func (r supplierTransactionRepository) GetTransaction(ctx context.Context, id uuid.UUID) (model.SupplierTransaction, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+transactionColumns+`
		FROM supplier_transactions
		WHERE id = @id
	`, pgx.NamedArgs{"id": id})

	tx, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.SupplierTransaction{}, ErrNotFound
	}
	if err != nil {
		return model.SupplierTransaction{}, fmt.Errorf("get supplier transaction: %w", err)
	}
	return tx, nil
}

func (r supplierTransactionRepository) ListTransactions(ctx context.Context) ([]model.SupplierTransaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM supplier_transactions
		ORDER BY date, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list supplier transactions: %w", err)
	}
	defer rows.Close()

	var transactions []model.SupplierTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan supplier transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate supplier transactions: %w", err)
	}
	return transactions, nil
}

func (r supplierTransactionRepository) ListItemsByTransaction(ctx context.Context, transactionID uuid.UUID) ([]model.SupplierTransactionItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, transaction_id, product_id, quantity, unit_cost, total_cost, product_unit_ids::text[], created_at
		FROM supplier_transaction_items
		WHERE transaction_id = @transaction_id
		ORDER BY created_at, id
	`, pgx.NamedArgs{"transaction_id": transactionID})
	if err != nil {
		return nil, fmt.Errorf("list transaction items: %w", err)
	}
	defer rows.Close()

	var items []model.SupplierTransactionItem
	for rows.Next() {
		var (
			item    model.SupplierTransactionItem
			unitIDs []string
		)
		if err := rows.Scan(
			&item.ID, &item.TransactionID, &item.ProductID, &item.Quantity,
			&item.UnitCost, &item.TotalCost, &unitIDs, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan transaction item: %w", err)
		}

		item.ProductUnitIDs, err = stringsToUUIDs(unitIDs)
		if err != nil {
			return nil, fmt.Errorf("parse product unit ids: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction items: %w", err)
	}
	return items, nil
}

func (r supplierTransactionRepository) SetTotalAmount(ctx context.Context, id uuid.UUID, totalAmount float64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE supplier_transactions
		SET total_amount = @total_amount, updated_at = NOW()
		WHERE id = @id
	`, pgx.NamedArgs{"id": id, "total_amount": totalAmount})
	if err != nil {
		return fmt.Errorf("set total amount: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r supplierTransactionRepository) DeleteTransactionIfEmpty(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM supplier_transactions t
		WHERE t.id = @id
		  AND NOT EXISTS (
			SELECT 1 FROM supplier_transaction_items i WHERE i.transaction_id = t.id
		  )
	`, pgx.NamedArgs{"id": id})
	if err != nil {
		return false, fmt.Errorf("delete empty transaction: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanTransaction(row pgx.Row) (model.SupplierTransaction, error) {
	var t model.SupplierTransaction
	err := row.Scan(
		&t.ID, &t.SupplierID, &t.Type, &t.Status, &t.TotalAmount,
		&t.Date, &t.Notes, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

func uuidsToStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func stringsToUUIDs(values []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
