package integrity_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdminh/storecore/internal/event"
	"github.com/tdminh/storecore/internal/integrity"
	"github.com/tdminh/storecore/internal/model"
)

func fixByType(report integrity.ConsistencyReport, fixType string) integrity.FixRecord {
	for _, fix := range report.Fixes {
		if fix.Type == fixType {
			return fix
		}
	}
	return integrity.FixRecord{}
}

func TestBackfillMissingBarcodes(t *testing.T) {
	ctx := context.Background()

	t.Run("Should backfill only units without barcodes", func(t *testing.T) {
		f := newFixture(t)
		product := seedProduct(f.store, true)
		bare1 := seedUnit(f.store, product.ID, model.UnitStatusAvailable, "")
		bare2 := seedUnit(f.store, product.ID, model.UnitStatusAvailable, "")
		stamped := seedUnit(f.store, product.ID, model.UnitStatusAvailable, "U-KEEP-000001")
		seedRegistryEntry(f.store, "U-KEEP-000001", model.EntityTypeProductUnit, stamped.ID)

		record, err := f.repairer.BackfillMissingBarcodes(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, record.AffectedCount)
		assert.Equal(t, 0, record.ErrorCount)
		assert.False(t, record.Destructive)

		assert.True(t, f.store.Units[bare1.ID].HasBarcode())
		assert.True(t, f.store.Units[bare2.ID].HasBarcode())
		assert.Equal(t, "U-KEEP-000001", *f.store.Units[stamped.ID].Barcode)
		assert.Len(t, f.store.Registry, 3)

		report, err := f.checker.Run(ctx)
		require.NoError(t, err)
		assert.Empty(t, issuesByCheck(report, integrity.CheckMissingBarcode))
	})

	t.Run("Should count per-unit failures without aborting", func(t *testing.T) {
		f := newFixture(t)
		product := seedProduct(f.store, true)
		broken := seedUnit(f.store, product.ID, model.UnitStatusAvailable, "")
		healthy := seedUnit(f.store, product.ID, model.UnitStatusAvailable, "")
		f.store.SetUnitBarcodeErr[broken.ID] = errors.New("constraint violation")

		record, err := f.repairer.BackfillMissingBarcodes(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, record.AffectedCount)
		assert.Equal(t, 1, record.ErrorCount)
		assert.True(t, f.store.Units[healthy.ID].HasBarcode())
		assert.False(t, f.store.Units[broken.ID].HasBarcode())
	})
}

func TestRemoveOrphanedRegistryEntries(t *testing.T) {
	ctx := context.Background()

	t.Run("Should delete entries for missing entities and keep live ones", func(t *testing.T) {
		f := newFixture(t)
		product := seedProduct(f.store, true)
		unit := seedUnit(f.store, product.ID, model.UnitStatusAvailable, "U-LIVE-000001")
		live := seedRegistryEntry(f.store, "U-LIVE-000001", model.EntityTypeProductUnit, unit.ID)
		seedRegistryEntry(f.store, "U-DEAD-000001", model.EntityTypeProductUnit, uuid.New())
		seedRegistryEntry(f.store, "P-DEAD-000001", model.EntityTypeProduct, uuid.New())

		record, err := f.repairer.RemoveOrphanedRegistryEntries(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, record.AffectedCount)
		assert.True(t, record.Destructive)

		require.Len(t, f.store.Registry, 1)
		assert.Contains(t, f.store.Registry, live.ID)
	})
}

func TestRecomputeTransactionTotals(t *testing.T) {
	ctx := context.Background()

	t.Run("Should reset drifted totals from item costs", func(t *testing.T) {
		f := newFixture(t)
		supplier := seedSupplier(f.store)
		product := seedProduct(f.store, false)
		tx := seedTransaction(f.store, supplier.ID, 0)
		seedItem(f.store, tx.ID, product.ID, 1, 150, nil)

		record, checked, valid, err := f.repairer.RecomputeTransactionTotals(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, record.AffectedCount)
		assert.Equal(t, 1, checked)
		assert.Equal(t, 0, valid)
		assert.InDelta(t, 150.0, f.store.Transactions[tx.ID].TotalAmount, 0.001)
	})

	t.Run("Should leave zero-sum and in-tolerance transactions alone", func(t *testing.T) {
		f := newFixture(t)
		supplier := seedSupplier(f.store)
		product := seedProduct(f.store, false)

		empty := seedTransaction(f.store, supplier.ID, 99)
		matched := seedTransaction(f.store, supplier.ID, 100)
		seedItem(f.store, matched.ID, product.ID, 1, 100, nil)

		record, checked, valid, err := f.repairer.RecomputeTransactionTotals(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, record.AffectedCount)
		assert.Equal(t, 2, checked)
		assert.Equal(t, 2, valid)
		assert.InDelta(t, 99.0, f.store.Transactions[empty.ID].TotalAmount, 0.001)
	})
}

func TestCleanupOrphanedTransactions(t *testing.T) {
	ctx := context.Background()

	t.Run("Should delete only transactions without items", func(t *testing.T) {
		f := newFixture(t)
		supplier := seedSupplier(f.store)
		product := seedProduct(f.store, false)

		orphaned := seedTransaction(f.store, supplier.ID, 0)
		kept := seedTransaction(f.store, supplier.ID, 50)
		seedItem(f.store, kept.ID, product.ID, 1, 50, nil)

		record, err := f.repairer.CleanupOrphanedTransactions(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, record.AffectedCount)
		assert.True(t, record.Destructive)

		assert.NotContains(t, f.store.Transactions, orphaned.ID)
		assert.Contains(t, f.store.Transactions, kept.ID)
	})
}

func TestFixAll(t *testing.T) {
	ctx := context.Background()

	t.Run("Should resolve every drift category in one run", func(t *testing.T) {
		f := newFixture(t)
		supplier := seedSupplier(f.store)
		serialized := seedProduct(f.store, true)
		accessory := seedProduct(f.store, false)

		seedUnit(f.store, serialized.ID, model.UnitStatusAvailable, "")
		seedRegistryEntry(f.store, "U-DEAD-000002", model.EntityTypeProductUnit, uuid.New())

		drifted := seedTransaction(f.store, supplier.ID, 0)
		seedItem(f.store, drifted.ID, accessory.ID, 1, 150, nil)
		seedTransaction(f.store, supplier.ID, 0)

		report, err := f.repairer.FixAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, report.TransactionsChecked)
		assert.Equal(t, 1, fixByType(report, integrity.CheckMissingBarcode).AffectedCount)
		assert.Equal(t, 1, fixByType(report, integrity.CheckOrphanedRegistry).AffectedCount)
		assert.Equal(t, 1, fixByType(report, integrity.CheckTotalAmountMismatch).AffectedCount)
		assert.Equal(t, 1, fixByType(report, integrity.CheckOrphanedTransaction).AffectedCount)

		check, err := f.checker.Run(ctx)
		require.NoError(t, err)
		assert.True(t, check.Valid)
	})

	t.Run("Should be a no-op on a clean store", func(t *testing.T) {
		f := newFixture(t)
		supplier := seedSupplier(f.store)
		product := seedProduct(f.store, true)
		tx := seedTransaction(f.store, supplier.ID, 100)
		unit := seedLinkedUnit(f.store, product.ID, supplier.ID, tx.ID)
		seedRegistryEntry(f.store, *unit.Barcode, model.EntityTypeProductUnit, unit.ID)
		seedItem(f.store, tx.ID, product.ID, 1, 100, []uuid.UUID{unit.ID})

		first, err := f.repairer.FixAll(ctx)
		require.NoError(t, err)
		second, err := f.repairer.FixAll(ctx)
		require.NoError(t, err)

		for _, report := range []integrity.ConsistencyReport{first, second} {
			for _, fix := range report.Fixes {
				assert.Zero(t, fix.AffectedCount, "fix %s touched a clean store", fix.Type)
				assert.Zero(t, fix.ErrorCount)
			}
			assert.Equal(t, 1, report.TransactionsValid)
		}
	})

	t.Run("Should write integrity fix audit events", func(t *testing.T) {
		f := newFixture(t)
		supplier := seedSupplier(f.store)
		seedTransaction(f.store, supplier.ID, 0)

		_, err := f.repairer.FixAll(ctx)
		require.NoError(t, err)

		var topics []string
		for _, ev := range f.store.AuditEvents {
			topics = append(topics, ev.Topic)
		}
		assert.Contains(t, topics, event.TopicAuditIntegrityFix)
	})
}
