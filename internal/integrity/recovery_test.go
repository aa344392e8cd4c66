package integrity_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdminh/storecore/internal/coordinator"
	"github.com/tdminh/storecore/internal/event"
	"github.com/tdminh/storecore/internal/integrity"
	"github.com/tdminh/storecore/internal/model"
	"github.com/tdminh/storecore/pkg/zerror"
)

func seedOrphanedUnits(f fixture, productID uuid.UUID, n int) []uuid.UUID {
	ids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		unit := seedUnit(f.store, productID, model.UnitStatusAvailable, "U-ORPH-"+uuid.NewString()[:6])
		ids = append(ids, unit.ID)
	}
	return ids
}

func TestFindOrphanedUnits(t *testing.T) {
	ctx := context.Background()

	t.Run("Should classify orphans by missing linkage", func(t *testing.T) {
		f := newFixture(t)
		supplier := seedSupplier(f.store)
		product := seedProduct(f.store, true)
		tx := seedTransaction(f.store, supplier.ID, 100)

		noSupplier := seedUnit(f.store, product.ID, model.UnitStatusAvailable, "U-A-000001")

		noTransaction := seedUnit(f.store, product.ID, model.UnitStatusAvailable, "U-B-000001")
		noTransaction.SupplierID = &supplier.ID
		f.store.Units[noTransaction.ID] = noTransaction

		seedLinkedUnit(f.store, product.ID, supplier.ID, tx.ID)

		orphans, err := f.recovery.FindOrphanedUnits(ctx)
		require.NoError(t, err)
		require.Len(t, orphans, 2)

		typeByID := map[uuid.UUID]integrity.OrphanType{}
		for _, o := range orphans {
			typeByID[o.ID] = o.OrphanType
		}
		assert.Equal(t, integrity.OrphanTypeNoSupplier, typeByID[noSupplier.ID])
		assert.Equal(t, integrity.OrphanTypeNoTransaction, typeByID[noTransaction.ID])
	})

	t.Run("Should return empty slice when everything is linked", func(t *testing.T) {
		f := newFixture(t)
		supplier := seedSupplier(f.store)
		product := seedProduct(f.store, true)
		tx := seedTransaction(f.store, supplier.ID, 100)
		seedLinkedUnit(f.store, product.ID, supplier.ID, tx.ID)

		orphans, err := f.recovery.FindOrphanedUnits(ctx)
		require.NoError(t, err)
		assert.Empty(t, orphans)
	})
}

func TestCreateRecoveryTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("Should link all units under one priced transaction", func(t *testing.T) {
		f := newFixture(t)
		supplier := seedSupplier(f.store)
		product := seedProduct(f.store, true)
		unitIDs := seedOrphanedUnits(f, product.ID, 5)

		result, err := f.recovery.CreateRecoveryTransaction(ctx, integrity.CreateRecoveryTransactionParams{
			SupplierID:             supplier.ID,
			UnitIDs:                unitIDs,
			EstimatedPurchasePrice: 10.00,
		})
		require.NoError(t, err)
		assert.Equal(t, 5, result.LinkedUnits)
		assert.InDelta(t, 50.00, result.TotalAmount, 0.001)
		assert.Empty(t, result.Errors)

		tx, err := f.store.GetTransaction(ctx, result.TransactionID)
		require.NoError(t, err)
		assert.Equal(t, model.TransactionTypePurchase, tx.Type)
		assert.Equal(t, model.TransactionStatusCompleted, tx.Status)
		assert.InDelta(t, 50.00, tx.TotalAmount, 0.001)

		items, err := f.store.ListItemsByTransaction(ctx, result.TransactionID)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, 5, items[0].Quantity)
		assert.Len(t, items[0].ProductUnitIDs, 5)
		assert.InDelta(t, 10.00, items[0].UnitCost, 0.001)

		for _, unitID := range unitIDs {
			unit := f.store.Units[unitID]
			require.NotNil(t, unit.SupplierTransactionID)
			assert.Equal(t, result.TransactionID, *unit.SupplierTransactionID)
			assert.Equal(t, supplier.ID, *unit.SupplierID)
		}
	})

	t.Run("Should group items per product", func(t *testing.T) {
		f := newFixture(t)
		supplier := seedSupplier(f.store)
		phones := seedProduct(f.store, true)
		tablets := seedProduct(f.store, true)
		unitIDs := append(seedOrphanedUnits(f, phones.ID, 3), seedOrphanedUnits(f, tablets.ID, 2)...)

		result, err := f.recovery.CreateRecoveryTransaction(ctx, integrity.CreateRecoveryTransactionParams{
			SupplierID:             supplier.ID,
			UnitIDs:                unitIDs,
			EstimatedPurchasePrice: 20.00,
		})
		require.NoError(t, err)
		assert.Equal(t, 5, result.LinkedUnits)

		items, err := f.store.ListItemsByTransaction(ctx, result.TransactionID)
		require.NoError(t, err)
		require.Len(t, items, 2)
		for _, item := range items {
			assert.Equal(t, len(item.ProductUnitIDs), item.Quantity)
			assert.InDelta(t, 20.00*float64(item.Quantity), item.TotalCost, 0.001)
		}
	})

	t.Run("Should report link failures per unit and keep the rest", func(t *testing.T) {
		f := newFixture(t)
		supplier := seedSupplier(f.store)
		product := seedProduct(f.store, true)
		unitIDs := seedOrphanedUnits(f, product.ID, 3)
		f.store.LinkUnitErr[unitIDs[1]] = errors.New("row locked")
		missing := uuid.New()
		unitIDs = append(unitIDs, missing)

		result, err := f.recovery.CreateRecoveryTransaction(ctx, integrity.CreateRecoveryTransactionParams{
			SupplierID:             supplier.ID,
			UnitIDs:                unitIDs,
			EstimatedPurchasePrice: 10.00,
		})
		require.NoError(t, err)
		assert.Equal(t, 2, result.LinkedUnits)
		require.Len(t, result.Errors, 2)

		failedIDs := []uuid.UUID{result.Errors[0].UnitID, result.Errors[1].UnitID}
		assert.Contains(t, failedIDs, unitIDs[1])
		assert.Contains(t, failedIDs, missing)
	})

	t.Run("Should fail when no unit links", func(t *testing.T) {
		f := newFixture(t)
		supplier := seedSupplier(f.store)

		_, err := f.recovery.CreateRecoveryTransaction(ctx, integrity.CreateRecoveryTransactionParams{
			SupplierID:             supplier.ID,
			UnitIDs:                []uuid.UUID{uuid.New(), uuid.New()},
			EstimatedPurchasePrice: 10.00,
		})
		zerr, ok := zerror.As(err)
		require.True(t, ok)
		assert.Equal(t, "RECOVERY_NO_UNITS_LINKED", zerr.Code())
	})

	t.Run("Should validate input before touching the store", func(t *testing.T) {
		f := newFixture(t)
		supplier := seedSupplier(f.store)

		cases := []integrity.CreateRecoveryTransactionParams{
			{UnitIDs: []uuid.UUID{uuid.New()}, EstimatedPurchasePrice: 10},
			{SupplierID: supplier.ID, EstimatedPurchasePrice: 10},
			{SupplierID: supplier.ID, UnitIDs: []uuid.UUID{uuid.New()}},
			{SupplierID: supplier.ID, UnitIDs: []uuid.UUID{uuid.New()}, EstimatedPurchasePrice: -5},
		}
		for _, params := range cases {
			_, err := f.recovery.CreateRecoveryTransaction(ctx, params)
			zerr, ok := zerror.As(err)
			require.True(t, ok)
			assert.Equal(t, zerror.StatusValidationFailed, zerr.Status())
			assert.Empty(t, f.store.Transactions)
		}
	})

	t.Run("Should reject unknown supplier", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.recovery.CreateRecoveryTransaction(ctx, integrity.CreateRecoveryTransactionParams{
			SupplierID:             uuid.New(),
			UnitIDs:                []uuid.UUID{uuid.New()},
			EstimatedPurchasePrice: 10.00,
		})
		zerr, ok := zerror.As(err)
		require.True(t, ok)
		assert.Equal(t, "SUPPLIER_NOT_FOUND", zerr.Code())
	})

	t.Run("Should emit unit_updated events and a recovery audit row", func(t *testing.T) {
		f := newFixture(t)
		supplier := seedSupplier(f.store)
		product := seedProduct(f.store, true)
		unitIDs := seedOrphanedUnits(f, product.ID, 2)

		result, err := f.recovery.CreateRecoveryTransaction(ctx, integrity.CreateRecoveryTransactionParams{
			SupplierID:             supplier.ID,
			UnitIDs:                unitIDs,
			EstimatedPurchasePrice: 15.00,
		})
		require.NoError(t, err)

		var updated int
		for _, ev := range *f.events {
			if ev.Kind == coordinator.KindUnitUpdated && ev.Source == coordinator.ModuleIntegrity {
				updated++
				assert.Equal(t, result.TransactionID, ev.Data["transaction_id"])
			}
		}
		assert.Equal(t, 2, updated)

		var topics []string
		for _, audit := range f.store.AuditEvents {
			topics = append(topics, audit.Topic)
		}
		assert.Contains(t, topics, event.TopicAuditRecovery)
	})
}
