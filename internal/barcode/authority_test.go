package barcode_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdminh/storecore/internal/barcode"
	"github.com/tdminh/storecore/internal/config"
	"github.com/tdminh/storecore/internal/coordinator"
	"github.com/tdminh/storecore/internal/event"
	"github.com/tdminh/storecore/internal/model"
	"github.com/tdminh/storecore/internal/repository"
	"github.com/tdminh/storecore/internal/repository/memory"
	"github.com/tdminh/storecore/pkg/zerror"
)

type fixture struct {
	store     *memory.Store
	coord     *coordinator.Coordinator
	authority *barcode.Authority
	events    *[]coordinator.Event
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	coord := coordinator.New(logger)

	events := &[]coordinator.Event{}
	coord.Subscribe(func(_ context.Context, ev coordinator.Event) {
		*events = append(*events, ev)
	})

	authority := barcode.NewAuthority(
		config.Barcode{MaxAttempts: 5},
		logger,
		memory.DB{},
		store.UnitRepo(),
		store.ProductRepo(),
		store.RegistryRepo(),
		store.AuditRepo(),
		coord,
	)

	return fixture{store: store, coord: coord, authority: authority, events: events}
}

func seedSerializedProduct(store *memory.Store) model.Product {
	product := model.Product{
		ID:        uuid.New(),
		Brand:     "Widget",
		Model:     "Phone",
		HasSerial: true,
		CreatedAt: time.Now(),
	}
	store.Products[product.ID] = product
	return product
}

func seedUnit(store *memory.Store, productID uuid.UUID, serial string) model.ProductUnit {
	unit := model.ProductUnit{
		ID:           uuid.New(),
		ProductID:    productID,
		SerialNumber: serial,
		Status:       model.UnitStatusAvailable,
		CreatedAt:    time.Now(),
	}
	store.Units[unit.ID] = unit
	return unit
}

func TestGenerateUnitBarcode(t *testing.T) {
	ctx := context.Background()

	t.Run("Should generate unique barcodes with registry rows", func(t *testing.T) {
		f := newFixture(t)
		product := seedSerializedProduct(f.store)

		seen := make(map[string]struct{})
		for i := 0; i < 20; i++ {
			unit := seedUnit(f.store, product.ID, "SN-100")
			value, err := f.authority.GenerateUnitBarcode(ctx, unit.ID, nil)
			require.NoError(t, err)

			_, dup := seen[value]
			require.False(t, dup, "duplicate barcode %s", value)
			seen[value] = struct{}{}

			entry, err := f.store.GetByBarcode(ctx, value)
			require.NoError(t, err)
			assert.Equal(t, model.EntityTypeProductUnit, entry.EntityType)
			assert.Equal(t, unit.ID, entry.EntityID)

			stamped := f.store.Units[unit.ID]
			require.NotNil(t, stamped.Barcode)
			assert.Equal(t, value, *stamped.Barcode)
		}

		assert.Len(t, f.store.Registry, 20)
	})

	t.Run("Should emit barcode_generated event and audit row", func(t *testing.T) {
		f := newFixture(t)
		product := seedSerializedProduct(f.store)
		unit := seedUnit(f.store, product.ID, "SN-200")

		value, err := f.authority.GenerateUnitBarcode(ctx, unit.ID, &barcode.GenerateOptions{Source: "backfill"})
		require.NoError(t, err)

		require.Len(t, *f.events, 1)
		ev := (*f.events)[0]
		assert.Equal(t, coordinator.KindBarcodeGenerated, ev.Kind)
		assert.Equal(t, unit.ID, ev.EntityID)
		assert.Equal(t, value, ev.Data["barcode"])

		require.Len(t, f.store.AuditEvents, 1)
		assert.Equal(t, event.TopicAuditBarcodeGenerated, f.store.AuditEvents[0].Topic)
	})

	t.Run("Should refuse to overwrite an existing barcode", func(t *testing.T) {
		f := newFixture(t)
		product := seedSerializedProduct(f.store)
		unit := seedUnit(f.store, product.ID, "SN-300")

		_, err := f.authority.GenerateUnitBarcode(ctx, unit.ID, nil)
		require.NoError(t, err)

		_, err = f.authority.GenerateUnitBarcode(ctx, unit.ID, nil)
		zerr, ok := zerror.As(err)
		require.True(t, ok)
		assert.Equal(t, "BARCODE_ALREADY_ASSIGNED", zerr.Code())
	})

	t.Run("Should report missing unit", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.authority.GenerateUnitBarcode(ctx, uuid.New(), nil)
		zerr, ok := zerror.As(err)
		require.True(t, ok)
		assert.Equal(t, zerror.StatusNotFound, zerr.Status())
	})

	t.Run("Should surface generation conflict when budget exhausted", func(t *testing.T) {
		f := newFixture(t)
		product := seedSerializedProduct(f.store)
		unit := seedUnit(f.store, product.ID, "SN-400")

		authority := barcode.NewAuthority(
			config.Barcode{MaxAttempts: 3},
			slog.New(slog.NewTextHandler(io.Discard, nil)),
			memory.DB{},
			f.store.UnitRepo(),
			f.store.ProductRepo(),
			saturatedRegistry{f.store.RegistryRepo()},
			f.store.AuditRepo(),
			f.coord,
		)

		_, err := authority.GenerateUnitBarcode(ctx, unit.ID, nil)
		zerr, ok := zerror.As(err)
		require.True(t, ok)
		assert.Equal(t, "BARCODE_GENERATION_CONFLICT", zerr.Code())
	})
}

func TestGenerateProductBarcode(t *testing.T) {
	ctx := context.Background()

	t.Run("Should stamp product-level barcode", func(t *testing.T) {
		f := newFixture(t)
		product := model.Product{ID: uuid.New(), Brand: "Acme", Model: "Charger"}
		f.store.Products[product.ID] = product

		value, err := f.authority.GenerateProductBarcode(ctx, product.ID, nil)
		require.NoError(t, err)

		entry, err := f.store.GetByBarcode(ctx, value)
		require.NoError(t, err)
		assert.Equal(t, model.EntityTypeProduct, entry.EntityType)

		stamped := f.store.Products[product.ID]
		require.NotNil(t, stamped.Barcode)
		assert.Equal(t, value, *stamped.Barcode)
	})
}

func TestGetOrGenerateBarcode(t *testing.T) {
	ctx := context.Background()

	t.Run("Should return same barcode on repeat calls with one registry row", func(t *testing.T) {
		f := newFixture(t)
		product := seedSerializedProduct(f.store)
		unit := seedUnit(f.store, product.ID, "SN-500")

		first, err := f.authority.GetOrGenerateBarcode(ctx, model.EntityTypeProductUnit, unit.ID, model.BarcodeTypeUnit)
		require.NoError(t, err)

		second, err := f.authority.GetOrGenerateBarcode(ctx, model.EntityTypeProductUnit, unit.ID, model.BarcodeTypeUnit)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Len(t, f.store.Registry, 1)
	})

	t.Run("Should reject unknown entity type", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.authority.GetOrGenerateBarcode(ctx, model.EntityType("warehouse"), uuid.New(), model.BarcodeTypeUnit)
		zerr, ok := zerror.As(err)
		require.True(t, ok)
		assert.Equal(t, zerror.StatusValidationFailed, zerr.Status())
	})
}

func TestVerifyBarcodeIntegrity(t *testing.T) {
	ctx := context.Background()

	t.Run("Should verify generated barcode against its unit", func(t *testing.T) {
		f := newFixture(t)
		product := seedSerializedProduct(f.store)
		unit := seedUnit(f.store, product.ID, "SN-600")

		value, err := f.authority.GenerateUnitBarcode(ctx, unit.ID, nil)
		require.NoError(t, err)

		ok, err := f.authority.VerifyBarcodeIntegrity(ctx, value, &barcode.EntityRef{
			Type: model.EntityTypeProductUnit,
			ID:   unit.ID,
		})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Should fail for mismatched expected entity", func(t *testing.T) {
		f := newFixture(t)
		product := seedSerializedProduct(f.store)
		unit := seedUnit(f.store, product.ID, "SN-700")

		value, err := f.authority.GenerateUnitBarcode(ctx, unit.ID, nil)
		require.NoError(t, err)

		ok, err := f.authority.VerifyBarcodeIntegrity(ctx, value, &barcode.EntityRef{
			Type: model.EntityTypeProductUnit,
			ID:   uuid.New(),
		})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Should fail once the target entity is gone", func(t *testing.T) {
		f := newFixture(t)
		product := seedSerializedProduct(f.store)
		unit := seedUnit(f.store, product.ID, "SN-800")

		value, err := f.authority.GenerateUnitBarcode(ctx, unit.ID, nil)
		require.NoError(t, err)

		delete(f.store.Units, unit.ID)

		ok, err := f.authority.VerifyBarcodeIntegrity(ctx, value, nil)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Should fail for unknown barcode", func(t *testing.T) {
		f := newFixture(t)

		ok, err := f.authority.VerifyBarcodeIntegrity(ctx, "U-NOPE-FFFFFF", nil)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestValidateBarcode(t *testing.T) {
	t.Run("Should accept generated format", func(t *testing.T) {
		res := barcode.ValidateBarcode("U-SN100-9F41D2")
		assert.True(t, res.IsValid)
		assert.Empty(t, res.Errors)
	})

	t.Run("Should reject empty and short values", func(t *testing.T) {
		assert.False(t, barcode.ValidateBarcode("").IsValid)
		assert.False(t, barcode.ValidateBarcode("AB1").IsValid)
	})

	t.Run("Should reject non-printable characters", func(t *testing.T) {
		res := barcode.ValidateBarcode("U-SN\x01100")
		assert.False(t, res.IsValid)
	})

	t.Run("Should validate GTIN-13 check digit", func(t *testing.T) {
		assert.True(t, barcode.ValidateBarcode("4006381333931").IsValid)

		res := barcode.ValidateBarcode("4006381333932")
		assert.False(t, res.IsValid)
		assert.Contains(t, res.Errors, "invalid GTIN-13 check digit")
	})
}

// saturatedRegistry reports every candidate as taken to drain the retry
// budget.
type saturatedRegistry struct {
	repository.BarcodeRegistryRepository
}

func (saturatedRegistry) BarcodeExists(_ context.Context, _ string) (bool, error) {
	return true, nil
}
