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

type ProductUnitRepository interface {
	WithDB(db db.DB) ProductUnitRepository
	GetUnit(ctx context.Context, id uuid.UUID) (model.ProductUnit, error)
	UnitExists(ctx context.Context, id uuid.UUID) (bool, error)
	ListUnitsMissingBarcode(ctx context.Context) ([]model.ProductUnit, error)
	ListOrphanedUnits(ctx context.Context) ([]model.ProductUnit, error)
	SetUnitBarcode(ctx context.Context, id uuid.UUID, barcode string) error
	LinkUnitToTransaction(ctx context.Context, unitID, supplierID, transactionID uuid.UUID) error
}

type productUnitRepository struct {
	db db.DB
}

func NewProductUnitRepository(db db.DB) ProductUnitRepository {
	return &productUnitRepository{db: db}
}

func (r productUnitRepository) WithDB(db db.DB) ProductUnitRepository {
	return &productUnitRepository{db: db}
}

const unitColumns = `id, product_id, serial_number, barcode, battery_level, color,
	storage, ram, purchase_price, min_price, max_price, status,
	supplier_id, supplier_transaction_id, created_at, updated_at`

func (r productUnitRepository) GetUnit(ctx context.Context, id uuid.UUID) (model.ProductUnit, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+unitColumns+`
		FROM product_units
		WHERE id = @id
	`, pgx.NamedArgs{"id": id})

	unit, err := scanUnit(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ProductUnit{}, ErrNotFound
	}
	if err != nil {
		return model.ProductUnit{}, fmt.Errorf("get unit: %w", err)
	}

	return unit, nil
}

func (r productUnitRepository) UnitExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM product_units WHERE id = @id)
	`, pgx.NamedArgs{"id": id}).Scan(&exists); err != nil {
		return false, fmt.Errorf("unit exists: %w", err)
	}
	return exists, nil
}

func (r productUnitRepository) ListUnitsMissingBarcode(ctx context.Context) ([]model.ProductUnit, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+unitColumns+`
		FROM product_units
		WHERE barcode IS NULL OR barcode = ''
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list units missing barcode: %w", err)
	}
	defer rows.Close()

	return collectUnits(rows)
}

func (r productUnitRepository) ListOrphanedUnits(ctx context.Context) ([]model.ProductUnit, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+unitColumns+`
		FROM product_units
		WHERE supplier_id IS NULL OR supplier_transaction_id IS NULL
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list orphaned units: %w", err)
	}
	defer rows.Close()

	return collectUnits(rows)
}

// SetUnitBarcode assigns a barcode to a unit that does not have one yet.
// Existing barcodes are never overwritten; attempting to do so returns
// ErrNotFound so callers can tell a lost race from success.
func (r productUnitRepository) SetUnitBarcode(ctx context.Context, id uuid.UUID, barcode string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE product_units
		SET barcode = @barcode, updated_at = NOW()
		WHERE id = @id AND (barcode IS NULL OR barcode = '')
	`, pgx.NamedArgs{"id": id, "barcode": barcode})
	if err != nil {
		return fmt.Errorf("set unit barcode: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r productUnitRepository) LinkUnitToTransaction(ctx context.Context, unitID, supplierID, transactionID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE product_units
		SET supplier_id = @supplier_id,
			supplier_transaction_id = @transaction_id,
			updated_at = NOW()
		WHERE id = @id
	`, pgx.NamedArgs{
		"id":             unitID,
		"supplier_id":    supplierID,
		"transaction_id": transactionID,
	})
	if err != nil {
		return fmt.Errorf("link unit to transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUnit(row pgx.Row) (model.ProductUnit, error) {
	var u model.ProductUnit
	err := row.Scan(
		&u.ID, &u.ProductID, &u.SerialNumber, &u.Barcode, &u.BatteryLevel,
		&u.Color, &u.Storage, &u.RAM, &u.PurchasePrice, &u.MinPrice,
		&u.MaxPrice, &u.Status, &u.SupplierID, &u.SupplierTransactionID,
		&u.CreatedAt, &u.UpdatedAt,
	)
	return u, err
}

func collectUnits(rows pgx.Rows) ([]model.ProductUnit, error) {
	var units []model.ProductUnit
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		units = append(units, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate units: %w", err)
	}
	return units, nil
}
