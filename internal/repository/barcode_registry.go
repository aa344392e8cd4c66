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

// DuplicateBarcode is one barcode value that appears on more than one
// registry row, detected store-side with a group-by.
type DuplicateBarcode struct {
	Barcode string
	Count   int
}

type BarcodeRegistryRepository interface {
	WithDB(db db.DB) BarcodeRegistryRepository
	CreateEntry(ctx context.Context, entry model.BarcodeRegistryEntry) error
	GetByBarcode(ctx context.Context, barcode string) (model.BarcodeRegistryEntry, error)
	GetByEntity(ctx context.Context, entityType model.EntityType, entityID uuid.UUID) (model.BarcodeRegistryEntry, error)
	BarcodeExists(ctx context.Context, barcode string) (bool, error)
	ListOrphanedEntries(ctx context.Context) ([]model.BarcodeRegistryEntry, error)
	ListDuplicateBarcodes(ctx context.Context) ([]DuplicateBarcode, error)
	// DeleteEntryIfOrphaned deletes the entry only when its target entity is
	// still missing, re-checked inside the delete statement itself so
	// concurrent re-creation of the entity cannot lose its barcode.
	DeleteEntryIfOrphaned(ctx context.Context, id uuid.UUID) (bool, error)
}

type barcodeRegistryRepository struct {
	db db.DB
}

func NewBarcodeRegistryRepository(db db.DB) BarcodeRegistryRepository {
	return &barcodeRegistryRepository{db: db}
}

func (r barcodeRegistryRepository) WithDB(db db.DB) BarcodeRegistryRepository {
	return &barcodeRegistryRepository{db: db}
}

const registryColumns = `id, barcode, entity_type, entity_id, barcode_type, source, generated_at`

func (r barcodeRegistryRepository) CreateEntry(ctx context.Context, entry model.BarcodeRegistryEntry) error {
	if _, err := r.db.Exec(ctx, `
		INSERT INTO barcode_registry (id, barcode, entity_type, entity_id, barcode_type, source, generated_at)
		VALUES (@id, @barcode, @entity_type, @entity_id, @barcode_type, @source, @generated_at)
	`, pgx.NamedArgs{
		"id":           entry.ID,
		"barcode":      entry.Barcode,
		"entity_type":  entry.EntityType,
		"entity_id":    entry.EntityID,
		"barcode_type": entry.BarcodeType,
		"source":       entry.Source,
		"generated_at": entry.GeneratedAt,
	}); err != nil {
		return fmt.Errorf("create registry entry: %w", err)
	}
	return nil
}

func (r barcodeRegistryRepository) GetByBarcode(ctx context.Context, barcode string) (model.BarcodeRegistryEntry, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+registryColumns+`
		FROM barcode_registry
		WHERE barcode = @barcode
	`, pgx.NamedArgs{"barcode": barcode})

	entry, err := scanRegistryEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.BarcodeRegistryEntry{}, ErrNotFound
	}
	if err != nil {
		return model.BarcodeRegistryEntry{}, fmt.Errorf("get registry entry by barcode: %w", err)
	}
	return entry, nil
}

func (r barcodeRegistryRepository) GetByEntity(ctx context.Context, entityType model.EntityType, entityID uuid.UUID) (model.BarcodeRegistryEntry, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+registryColumns+`
		FROM barcode_registry
		WHERE entity_type = @entity_type AND entity_id = @entity_id
		ORDER BY generated_at
		LIMIT 1
	`, pgx.NamedArgs{"entity_type": entityType, "entity_id": entityID})

	entry, err := scanRegistryEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.BarcodeRegistryEntry{}, ErrNotFound
	}
	if err != nil {
		return model.BarcodeRegistryEntry{}, fmt.Errorf("get registry entry by entity: %w", err)
	}
	return entry, nil
}

func (r barcodeRegistryRepository) BarcodeExists(ctx context.Context, barcode string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM barcode_registry WHERE barcode = @barcode)
	`, pgx.NamedArgs{"barcode": barcode}).Scan(&exists); err != nil {
		return false, fmt.Errorf("barcode exists: %w", err)
	}
	return exists, nil
}

func (r barcodeRegistryRepository) ListOrphanedEntries(ctx context.Context) ([]model.BarcodeRegistryEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+registryColumns+`
		FROM barcode_registry br
		WHERE (br.entity_type = 'product_unit'
				AND NOT EXISTS (SELECT 1 FROM product_units u WHERE u.id = br.entity_id))
		   OR (br.entity_type = 'product'
				AND NOT EXISTS (SELECT 1 FROM products p WHERE p.id = br.entity_id))
		ORDER BY br.generated_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list orphaned registry entries: %w", err)
	}
	defer rows.Close()

	var entries []model.BarcodeRegistryEntry
	for rows.Next() {
		entry, err := scanRegistryEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registry entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registry entries: %w", err)
	}
	return entries, nil
}

func (r barcodeRegistryRepository) ListDuplicateBarcodes(ctx context.Context) ([]DuplicateBarcode, error) {
	rows, err := r.db.Query(ctx, `
		SELECT barcode, COUNT(*) AS cnt
		FROM barcode_registry
		GROUP BY barcode
		HAVING COUNT(*) > 1
		ORDER BY barcode
	`)
	if err != nil {
		return nil, fmt.Errorf("list duplicate barcodes: %w", err)
	}
	defer rows.Close()

	var duplicates []DuplicateBarcode
	for rows.Next() {
		var d DuplicateBarcode
		if err := rows.Scan(&d.Barcode, &d.Count); err != nil {
			return nil, fmt.Errorf("scan duplicate barcode: %w", err)
		}
		duplicates = append(duplicates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate duplicate barcodes: %w", err)
	}
	return duplicates, nil
}

func (r barcodeRegistryRepository) DeleteEntryIfOrphaned(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM barcode_registry br
		WHERE br.id = @id
		  AND ((br.entity_type = 'product_unit'
				AND NOT EXISTS (SELECT 1 FROM product_units u WHERE u.id = br.entity_id))
			OR (br.entity_type = 'product'
				AND NOT EXISTS (SELECT 1 FROM products p WHERE p.id = br.entity_id)))
	`, pgx.NamedArgs{"id": id})
	if err != nil {
		return false, fmt.Errorf("delete orphaned registry entry: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanRegistryEntry(row pgx.Row) (model.BarcodeRegistryEntry, error) {
	var e model.BarcodeRegistryEntry
	err := row.Scan(
		&e.ID, &e.Barcode, &e.EntityType, &e.EntityID, &e.BarcodeType,
		&e.Source, &e.GeneratedAt,
	)
	return e, err
}
