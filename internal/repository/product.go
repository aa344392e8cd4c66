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

type ProductRepository interface {
	WithDB(db db.DB) ProductRepository
	GetProduct(ctx context.Context, id uuid.UUID) (model.Product, error)
	ProductExists(ctx context.Context, id uuid.UUID) (bool, error)
	SetProductBarcode(ctx context.Context, id uuid.UUID, barcode string) error
}

type productRepository struct {
	db db.DB
}

func NewProductRepository(db db.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r productRepository) WithDB(db db.DB) ProductRepository {
	return &productRepository{db: db}
}

const productColumns = `id, brand, model, category, barcode, default_price, min_price,
	max_price, stock, min_stock, has_serial, created_at, updated_at`

func (r productRepository) GetProduct(ctx context.Context, id uuid.UUID) (model.Product, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = @id
	`, pgx.NamedArgs{"id": id})

	product, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Product{}, ErrNotFound
	}
	if err != nil {
		return model.Product{}, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

func (r productRepository) ProductExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM products WHERE id = @id)
	`, pgx.NamedArgs{"id": id}).Scan(&exists); err != nil {
		return false, fmt.Errorf("product exists: %w", err)
	}
	return exists, nil
}

func (r productRepository) SetProductBarcode(ctx context.Context, id uuid.UUID, barcode string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE products
		SET barcode = @barcode, updated_at = NOW()
		WHERE id = @id
	`, pgx.NamedArgs{"id": id, "barcode": barcode})
	if err != nil {
		return fmt.Errorf("set product barcode: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.Row) (model.Product, error) {
	var p model.Product
	err := row.Scan(
		&p.ID, &p.Brand, &p.Model, &p.Category, &p.Barcode, &p.DefaultPrice,
		&p.MinPrice, &p.MaxPrice, &p.Stock, &p.MinStock, &p.HasSerial,
		&p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}
