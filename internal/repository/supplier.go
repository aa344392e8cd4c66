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

type SupplierRepository interface {
	WithDB(db db.DB) SupplierRepository
	GetSupplier(ctx context.Context, id uuid.UUID) (model.Supplier, error)
	SupplierExists(ctx context.Context, id uuid.UUID) (bool, error)
}

type supplierRepository struct {
	db db.DB
}

func NewSupplierRepository(db db.DB) SupplierRepository {
	return &supplierRepository{db: db}
}

func (r supplierRepository) WithDB(db db.DB) SupplierRepository {
	return &supplierRepository{db: db}
}

func (r supplierRepository) GetSupplier(ctx context.Context, id uuid.UUID) (model.Supplier, error) {
	var s model.Supplier
	err := r.db.QueryRow(ctx, `
		SELECT id, name, phone, email, created_at, updated_at
		FROM suppliers
		WHERE id = @id
	`, pgx.NamedArgs{"id": id}).Scan(
		&s.ID, &s.Name, &s.Phone, &s.Email, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Supplier{}, ErrNotFound
	}
	if err != nil {
		return model.Supplier{}, fmt.Errorf("get supplier: %w", err)
	}
	return s, nil
}

func (r supplierRepository) SupplierExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM suppliers WHERE id = @id)
	`, pgx.NamedArgs{"id": id}).Scan(&exists); err != nil {
		return false, fmt.Errorf("supplier exists: %w", err)
	}
	return exists, nil
}
