package integrity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/tdminh/storecore/internal/barcode"
	"github.com/tdminh/storecore/internal/coordinator"
	"github.com/tdminh/storecore/internal/event"
	"github.com/tdminh/storecore/internal/model"
	"github.com/tdminh/storecore/internal/repository"
)

// FixRecord reports one repair category. Destructive marks fixes that
// removed rows rather than correcting them.
type FixRecord struct {
	Type          string `json:"type"`
	Description   string `json:"description"`
	AffectedCount int    `json:"affected_count"`
	ErrorCount    int    `json:"error_count"`
	Destructive   bool   `json:"destructive"`
}

// ConsistencyReport is the repair-engine output: transaction totals seen
// during the run plus one record per fix category that was applied.
type ConsistencyReport struct {
	TransactionsChecked int         `json:"transactions_checked"`
	TransactionsValid   int         `json:"transactions_valid"`
	Fixes               []FixRecord `json:"fixes"`
}

// Repairer applies deterministic, idempotent fixes for each drift category
// the Checker reports. Fixes run in dependency order: barcodes are
// backfilled before registry cleanup, totals are recomputed before empty
// transactions are deleted. A failure on one entity never aborts the batch.
type Repairer struct {
	logger       *slog.Logger
	authority    *barcode.Authority
	units        repository.ProductUnitRepository
	registry     repository.BarcodeRegistryRepository
	transactions repository.SupplierTransactionRepository
	audit        repository.AuditEventRepository
	coordinator  *coordinator.Coordinator
}

func NewRepairer(
	logger *slog.Logger,
	authority *barcode.Authority,
	units repository.ProductUnitRepository,
	registry repository.BarcodeRegistryRepository,
	transactions repository.SupplierTransactionRepository,
	audit repository.AuditEventRepository,
	coord *coordinator.Coordinator,
) *Repairer {
	return &Repairer{
		logger:       logger.With(slog.String("service", "integrity_repairer")),
		authority:    authority,
		units:        units,
		registry:     registry,
		transactions: transactions,
		audit:        audit,
		coordinator:  coord,
	}
}

// FixAll runs every fix category in order and aggregates the records.
func (r *Repairer) FixAll(ctx context.Context) (ConsistencyReport, error) {
	report := ConsistencyReport{}

	backfill, err := r.BackfillMissingBarcodes(ctx)
	if err != nil {
		return ConsistencyReport{}, err
	}
	report.Fixes = append(report.Fixes, backfill)

	orphanedRegistry, err := r.RemoveOrphanedRegistryEntries(ctx)
	if err != nil {
		return ConsistencyReport{}, err
	}
	report.Fixes = append(report.Fixes, orphanedRegistry)

	totals, checked, valid, err := r.RecomputeTransactionTotals(ctx)
	if err != nil {
		return ConsistencyReport{}, err
	}
	report.TransactionsChecked = checked
	report.TransactionsValid = valid
	report.Fixes = append(report.Fixes, totals)

	orphanedTx, err := r.CleanupOrphanedTransactions(ctx)
	if err != nil {
		return ConsistencyReport{}, err
	}
	report.Fixes = append(report.Fixes, orphanedTx)

	r.logger.InfoContext(ctx, "repair run finished",
		slog.Int("transactions_checked", report.TransactionsChecked),
		slog.Int("transactions_valid", report.TransactionsValid),
	)
	return report, nil
}

// BackfillMissingBarcodes generates a barcode for every unit that lacks
// one. Existing barcodes are never overwritten; a unit that gained a
// barcode between listing and stamping is skipped, not counted as an
// error.
func (r *Repairer) BackfillMissingBarcodes(ctx context.Context) (FixRecord, error) {
	record := FixRecord{
		Type:        CheckMissingBarcode,
		Description: "backfilled missing unit barcodes",
	}

	units, err := r.units.ListUnitsMissingBarcode(ctx)
	if err != nil {
		return FixRecord{}, fmt.Errorf("list units missing barcode: %w", err)
	}

	for _, unit := range units {
		_, err := r.authority.GenerateUnitBarcode(ctx, unit.ID, &barcode.GenerateOptions{Source: "backfill"})
		if errors.Is(err, barcode.ErrBarcodeAlreadyAssigned) {
			continue
		}
		if err != nil {
			record.ErrorCount++
			r.logger.WarnContext(ctx, "barcode backfill failed for unit",
				slog.String("unit_id", unit.ID.String()),
				slog.Any("error", err),
			)
			continue
		}
		record.AffectedCount++
	}

	r.recordFix(ctx, record)
	return record, nil
}

// RemoveOrphanedRegistryEntries deletes registry rows whose target entity
// no longer exists. Existence is re-checked inside the delete statement,
// so an entity recreated concurrently keeps its barcode.
func (r *Repairer) RemoveOrphanedRegistryEntries(ctx context.Context) (FixRecord, error) {
	record := FixRecord{
		Type:        CheckOrphanedRegistry,
		Description: "removed registry entries pointing at missing entities",
		Destructive: true,
	}

	entries, err := r.registry.ListOrphanedEntries(ctx)
	if err != nil {
		return FixRecord{}, fmt.Errorf("list orphaned registry entries: %w", err)
	}

	for _, entry := range entries {
		deleted, err := r.registry.DeleteEntryIfOrphaned(ctx, entry.ID)
		if err != nil {
			record.ErrorCount++
			r.logger.WarnContext(ctx, "orphaned registry delete failed",
				slog.String("entry_id", entry.ID.String()),
				slog.Any("error", err),
			)
			continue
		}
		if deleted {
			record.AffectedCount++
		}
	}

	r.recordFix(ctx, record)
	return record, nil
}

// RecomputeTransactionTotals resets each transaction total to the sum of
// its item costs when they drift beyond tolerance. Transactions whose
// items also sum to zero are left alone: there is nothing to recover the
// total from. Returns the fix record plus checked/valid counts for the
// report.
func (r *Repairer) RecomputeTransactionTotals(ctx context.Context) (FixRecord, int, int, error) {
	record := FixRecord{
		Type:        CheckTotalAmountMismatch,
		Description: "recomputed transaction totals from item costs",
	}

	transactions, err := r.transactions.ListTransactions(ctx)
	if err != nil {
		return FixRecord{}, 0, 0, fmt.Errorf("list transactions: %w", err)
	}

	var checked, valid int
	for _, tx := range transactions {
		items, err := r.transactions.ListItemsByTransaction(ctx, tx.ID)
		if err != nil {
			record.ErrorCount++
			r.logger.WarnContext(ctx, "listing items failed during total recompute",
				slog.String("transaction_id", tx.ID.String()),
				slog.Any("error", err),
			)
			continue
		}
		checked++

		var calculated float64
		for _, item := range items {
			calculated += item.TotalCost
		}

		if calculated == 0 || math.Abs(calculated-tx.TotalAmount) <= model.TotalAmountTolerance {
			valid++
			continue
		}

		if err := r.transactions.SetTotalAmount(ctx, tx.ID, calculated); err != nil {
			record.ErrorCount++
			r.logger.WarnContext(ctx, "total recompute failed",
				slog.String("transaction_id", tx.ID.String()),
				slog.Any("error", err),
			)
			continue
		}
		record.AffectedCount++
	}

	r.recordFix(ctx, record)
	return record, checked, valid, nil
}

// CleanupOrphanedTransactions deletes transactions that have no items.
// The emptiness is re-checked inside the delete, so a transaction gaining
// an item concurrently survives. This is the only destructive transaction
// fix and is reported as such.
func (r *Repairer) CleanupOrphanedTransactions(ctx context.Context) (FixRecord, error) {
	record := FixRecord{
		Type:        CheckOrphanedTransaction,
		Description: "deleted transactions without items",
		Destructive: true,
	}

	transactions, err := r.transactions.ListTransactions(ctx)
	if err != nil {
		return FixRecord{}, fmt.Errorf("list transactions: %w", err)
	}

	for _, tx := range transactions {
		items, err := r.transactions.ListItemsByTransaction(ctx, tx.ID)
		if err != nil {
			record.ErrorCount++
			continue
		}
		if len(items) > 0 {
			continue
		}

		deleted, err := r.transactions.DeleteTransactionIfEmpty(ctx, tx.ID)
		if err != nil {
			record.ErrorCount++
			r.logger.WarnContext(ctx, "orphaned transaction delete failed",
				slog.String("transaction_id", tx.ID.String()),
				slog.Any("error", err),
			)
			continue
		}
		if deleted {
			record.AffectedCount++
		}
	}

	r.recordFix(ctx, record)
	return record, nil
}

// recordFix writes an audit row and emits a coordination event for one fix
// category. Categories that touched nothing stay silent. Audit failures
// are logged, not returned: the fix itself already happened.
func (r *Repairer) recordFix(ctx context.Context, record FixRecord) {
	if record.AffectedCount == 0 && record.ErrorCount == 0 {
		return
	}

	payload, err := json.Marshal(event.IntegrityFixAudit{
		FixType:       record.Type,
		Description:   record.Description,
		AffectedCount: record.AffectedCount,
		ErrorCount:    record.ErrorCount,
		Destructive:   record.Destructive,
	})
	if err != nil {
		r.logger.WarnContext(ctx, "marshal fix audit failed", slog.Any("error", err))
		return
	}

	if err := r.audit.CreateAuditEvent(ctx, repository.CreateAuditEventParams{
		Topic:   event.TopicAuditIntegrityFix,
		Payload: payload,
	}); err != nil {
		r.logger.WarnContext(ctx, "write fix audit failed",
			slog.String("fix_type", record.Type),
			slog.Any("error", err),
		)
	}

	r.coordinator.Notify(ctx, coordinator.Event{
		Kind:   coordinator.KindUnitUpdated,
		Source: coordinator.ModuleIntegrity,
		Data: map[string]any{
			"fix_type":       record.Type,
			"affected_count": record.AffectedCount,
		},
	})
}
