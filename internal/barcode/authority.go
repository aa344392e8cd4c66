// Package barcode is the single source of truth for barcode values. Every
// barcode handed out by this package is backed by exactly one registry row,
// and no two registry rows ever share a value.
package barcode

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tdminh/storecore/internal/config"
	"github.com/tdminh/storecore/internal/coordinator"
	"github.com/tdminh/storecore/internal/event"
	"github.com/tdminh/storecore/internal/model"
	"github.com/tdminh/storecore/internal/repository"
	"github.com/tdminh/storecore/internal/storage/db"
	"github.com/tdminh/storecore/pkg/zerror"
)

var (
	// ErrGenerationConflict means the uniqueness retry budget ran out.
	ErrGenerationConflict = zerror.NewConflict(
		"BARCODE_GENERATION_CONFLICT",
		"barcode uniqueness could not be established within retry budget",
	)

	// ErrBarcodeAlreadyAssigned means the target entity already carries a
	// barcode; existing barcodes are never overwritten.
	ErrBarcodeAlreadyAssigned = zerror.NewConflict(
		"BARCODE_ALREADY_ASSIGNED",
		"entity already has a barcode",
	)

	errUnitNotFound    = zerror.NewNotFound("PRODUCT_UNIT_NOT_FOUND", "product unit not found")
	errProductNotFound = zerror.NewNotFound("PRODUCT_NOT_FOUND", "product not found")
)

// GenerateOptions tunes a single generation call.
type GenerateOptions struct {
	// Source is recorded as generation metadata on the registry row,
	// e.g. "intake" or "backfill". Defaults to "authority".
	Source string
}

// EntityRef identifies the entity a barcode is expected to belong to.
type EntityRef struct {
	Type model.EntityType
	ID   uuid.UUID
}

// Authority owns barcode generation, validation, and resolution. Construct
// one per process and inject it wherever barcodes are needed.
type Authority struct {
	logger      *slog.Logger
	db          db.DB
	units       repository.ProductUnitRepository
	products    repository.ProductRepository
	registry    repository.BarcodeRegistryRepository
	audit       repository.AuditEventRepository
	coordinator *coordinator.Coordinator
	maxAttempts int
}

func NewAuthority(
	cfg config.Barcode,
	logger *slog.Logger,
	database db.DB,
	units repository.ProductUnitRepository,
	products repository.ProductRepository,
	registry repository.BarcodeRegistryRepository,
	audit repository.AuditEventRepository,
	coord *coordinator.Coordinator,
) *Authority {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	return &Authority{
		logger:      logger.With(slog.String("service", "barcode_authority")),
		db:          database,
		units:       units,
		products:    products,
		registry:    registry,
		audit:       audit,
		coordinator: coord,
		maxAttempts: maxAttempts,
	}
}

// GenerateUnitBarcode produces a unique barcode for a serialized unit,
// persists the registry entry, stamps the unit, and emits a
// barcode_generated coordination event. The unit must not already carry a
// barcode.
func (a *Authority) GenerateUnitBarcode(ctx context.Context, unitID uuid.UUID, opts *GenerateOptions) (string, error) {
	unit, err := a.units.GetUnit(ctx, unitID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", errUnitNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get unit: %w", err)
	}

	if unit.HasBarcode() {
		return "", ErrBarcodeAlreadyAssigned
	}

	barcode, err := a.generate(ctx, generateParams{
		entityType:  model.EntityTypeProductUnit,
		entityID:    unit.ID,
		barcodeType: model.BarcodeTypeUnit,
		seed:        unit.SerialNumber,
		prefix:      "U",
		source:      sourceOf(opts),
		stamp: func(ctx context.Context, tx db.DB, value string) error {
			return a.units.WithDB(tx).SetUnitBarcode(ctx, unit.ID, value)
		},
	})
	if err != nil {
		return "", err
	}

	a.coordinator.Notify(ctx, coordinator.Event{
		Kind:     coordinator.KindBarcodeGenerated,
		Source:   coordinator.ModuleInventory,
		EntityID: unit.ID,
		Data:     map[string]any{"barcode": barcode},
	})

	return barcode, nil
}

// GenerateProductBarcode is the product-level counterpart for
// non-serialized products.
func (a *Authority) GenerateProductBarcode(ctx context.Context, productID uuid.UUID, opts *GenerateOptions) (string, error) {
	product, err := a.products.GetProduct(ctx, productID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", errProductNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get product: %w", err)
	}

	if product.Barcode != nil && *product.Barcode != "" {
		return "", ErrBarcodeAlreadyAssigned
	}

	barcode, err := a.generate(ctx, generateParams{
		entityType:  model.EntityTypeProduct,
		entityID:    product.ID,
		barcodeType: model.BarcodeTypeProduct,
		seed:        product.ID.String()[:8],
		prefix:      "P",
		source:      sourceOf(opts),
		stamp: func(ctx context.Context, tx db.DB, value string) error {
			return a.products.WithDB(tx).SetProductBarcode(ctx, product.ID, value)
		},
	})
	if err != nil {
		return "", err
	}

	a.coordinator.Notify(ctx, coordinator.Event{
		Kind:     coordinator.KindBarcodeGenerated,
		Source:   coordinator.ModuleInventory,
		EntityID: product.ID,
		Data:     map[string]any{"barcode": barcode},
	})

	return barcode, nil
}

// GetOrGenerateBarcode resolves the entity's existing registry entry first
// and only generates on miss. Callers must use this instead of the generate
// calls whenever the entity may already have a barcode; unconditional
// generation would produce duplicate registry rows for the same entity.
func (a *Authority) GetOrGenerateBarcode(ctx context.Context, entityType model.EntityType, entityID uuid.UUID, barcodeType model.BarcodeType) (string, error) {
	if err := entityType.Validate(); err != nil {
		return "", zerror.NewValidationFailed("INVALID_ENTITY_TYPE", err.Error())
	}
	if err := barcodeType.Validate(); err != nil {
		return "", zerror.NewValidationFailed("INVALID_BARCODE_TYPE", err.Error())
	}

	entry, err := a.registry.GetByEntity(ctx, entityType, entityID)
	if err == nil {
		return entry.Barcode, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return "", fmt.Errorf("lookup registry entry: %w", err)
	}

	if entityType == model.EntityTypeProductUnit {
		return a.GenerateUnitBarcode(ctx, entityID, nil)
	}
	return a.GenerateProductBarcode(ctx, entityID, nil)
}

// VerifyBarcodeIntegrity confirms the barcode resolves to a registry entry
// whose target entity still exists, and, when expected is given, that the
// entry points at that exact entity. Detects tampering and accidental
// reuse.
func (a *Authority) VerifyBarcodeIntegrity(ctx context.Context, barcode string, expected *EntityRef) (bool, error) {
	entry, err := a.registry.GetByBarcode(ctx, barcode)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup barcode: %w", err)
	}

	if expected != nil && (entry.EntityType != expected.Type || entry.EntityID != expected.ID) {
		return false, nil
	}

	switch entry.EntityType {
	case model.EntityTypeProductUnit:
		exists, err := a.units.UnitExists(ctx, entry.EntityID)
		if err != nil {
			return false, fmt.Errorf("check unit exists: %w", err)
		}
		return exists, nil
	case model.EntityTypeProduct:
		exists, err := a.products.ProductExists(ctx, entry.EntityID)
		if err != nil {
			return false, fmt.Errorf("check product exists: %w", err)
		}
		return exists, nil
	default:
		return false, nil
	}
}

type generateParams struct {
	entityType  model.EntityType
	entityID    uuid.UUID
	barcodeType model.BarcodeType
	seed        string
	prefix      string
	source      string
	stamp       func(ctx context.Context, tx db.DB, value string) error
}

func (a *Authority) generate(ctx context.Context, params generateParams) (string, error) {
	var lastErr error

	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		candidate := buildBarcode(params.prefix, params.seed)

		exists, err := a.registry.BarcodeExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check barcode exists: %w", err)
		}
		if exists {
			lastErr = fmt.Errorf("candidate %s already registered", candidate)
			continue
		}

		err = a.db.WithTx(ctx, func(tx db.DB) error {
			registry := a.registry.WithDB(tx)

			// Re-check inside the transaction: the pre-check above can lose
			// a race with a concurrent generation.
			exists, err := registry.BarcodeExists(ctx, candidate)
			if err != nil {
				return fmt.Errorf("recheck barcode exists: %w", err)
			}
			if exists {
				return errCandidateTaken
			}

			if err := registry.CreateEntry(ctx, model.BarcodeRegistryEntry{
				ID:          uuid.New(),
				Barcode:     candidate,
				EntityType:  params.entityType,
				EntityID:    params.entityID,
				BarcodeType: params.barcodeType,
				Source:      params.source,
				GeneratedAt: time.Now(),
			}); err != nil {
				return fmt.Errorf("create registry entry: %w", err)
			}

			if err := params.stamp(ctx, tx, candidate); err != nil {
				return fmt.Errorf("stamp entity barcode: %w", err)
			}

			return a.writeAudit(ctx, tx, candidate, params)
		})
		if errors.Is(err, errCandidateTaken) {
			lastErr = err
			continue
		}
		if err != nil {
			return "", err
		}

		return candidate, nil
	}

	a.logger.WarnContext(ctx, "barcode generation retry budget exhausted",
		slog.String("entity_type", string(params.entityType)),
		slog.String("entity_id", params.entityID.String()),
		slog.Int("attempts", a.maxAttempts),
	)

	return "", ErrGenerationConflict.WrapParent(lastErr)
}

func (a *Authority) writeAudit(ctx context.Context, tx db.DB, barcode string, params generateParams) error {
	payload, err := json.Marshal(event.BarcodeGeneratedAudit{
		Barcode:    barcode,
		EntityType: string(params.entityType),
		EntityID:   params.entityID,
		Source:     params.source,
	})
	if err != nil {
		return fmt.Errorf("marshal barcode audit: %w", err)
	}

	if err := a.audit.WithDB(tx).CreateAuditEvent(ctx, repository.CreateAuditEventParams{
		Topic:   event.TopicAuditBarcodeGenerated,
		Payload: payload,
	}); err != nil {
		return fmt.Errorf("write barcode audit: %w", err)
	}
	return nil
}

var errCandidateTaken = errors.New("barcode candidate taken")

// buildBarcode derives a CODE128-compatible value from the entity seed plus
// a random uniqueness suffix, e.g. "U-SN123ABC-9F41D2".
func buildBarcode(prefix, seed string) string {
	suffix := make([]byte, 3)
	// rand.Read never fails on supported platforms
	_, _ = rand.Read(suffix)

	return fmt.Sprintf("%s-%s-%s", prefix, sanitizeSeed(seed), strings.ToUpper(hex.EncodeToString(suffix)))
}

// sanitizeSeed keeps barcode bodies in the uppercase alphanumeric range so
// the result scans cleanly as CODE128.
func sanitizeSeed(seed string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(seed) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "X"
	}
	s := b.String()
	if len(s) > 20 {
		s = s[:20]
	}
	return s
}

func sourceOf(opts *GenerateOptions) string {
	if opts != nil && opts.Source != "" {
		return opts.Source
	}
	return "authority"
}
