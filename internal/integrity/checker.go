package integrity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/tdminh/storecore/internal/model"
	"github.com/tdminh/storecore/internal/repository"
	"github.com/tdminh/storecore/pkg/ptr"
)

// Severity grades a finding. A report is valid iff it carries no
// error-level issues; warnings alone keep it valid.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Check categories, used as Issue.Check and as repair fix types.
const (
	CheckMissingBarcode      = "missing_barcode"
	CheckOrphanedRegistry    = "orphaned_registry_entry"
	CheckDuplicateBarcode    = "duplicate_barcode"
	CheckZeroTotal           = "zero_total_transaction"
	CheckOrphanedTransaction = "orphaned_transaction"
	CheckUnitCountMismatch   = "unit_count_mismatch"
	CheckTotalAmountMismatch = "total_amount_mismatch"
)

// Issue is one finding. Findings are data, never errors: a dirty store is
// an expected state for the checker, not a failure of the check itself.
type Issue struct {
	Severity      Severity       `json:"severity"`
	Check         string         `json:"check"`
	Message       string         `json:"message"`
	EntityID      *uuid.UUID     `json:"entity_id,omitempty"`
	TransactionID *uuid.UUID     `json:"transaction_id,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
}

// Report is the checker output. Two runs with no intervening writes
// produce identical reports.
type Report struct {
	Valid     bool      `json:"valid"`
	CheckedAt time.Time `json:"checked_at"`
	Issues    []Issue   `json:"issues"`
}

func (r Report) countBySeverity(s Severity) int {
	var n int
	for _, issue := range r.Issues {
		if issue.Severity == s {
			n++
		}
	}
	return n
}

// ErrorCount returns the number of error-level issues.
func (r Report) ErrorCount() int { return r.countBySeverity(SeverityError) }

// WarningCount returns the number of warning-level issues.
func (r Report) WarningCount() int { return r.countBySeverity(SeverityWarning) }

// Checker scans units, the barcode registry, and supplier transactions for
// drift. It only reads; repairs live in Repairer.
type Checker struct {
	logger       *slog.Logger
	products     repository.ProductRepository
	units        repository.ProductUnitRepository
	registry     repository.BarcodeRegistryRepository
	transactions repository.SupplierTransactionRepository
}

func NewChecker(
	logger *slog.Logger,
	products repository.ProductRepository,
	units repository.ProductUnitRepository,
	registry repository.BarcodeRegistryRepository,
	transactions repository.SupplierTransactionRepository,
) *Checker {
	return &Checker{
		logger:       logger.With(slog.String("service", "integrity_checker")),
		products:     products,
		units:        units,
		registry:     registry,
		transactions: transactions,
	}
}

// Run executes every check and aggregates the findings. The checks are
// independent; a store-level failure in any of them aborts the run.
func (c *Checker) Run(ctx context.Context) (Report, error) {
	report := Report{CheckedAt: time.Now()}

	checks := []func(context.Context, *Report) error{
		c.checkMissingBarcodes,
		c.checkOrphanedRegistryEntries,
		c.checkDuplicateBarcodes,
		c.checkTransactions,
	}
	for _, check := range checks {
		if err := check(ctx, &report); err != nil {
			return Report{}, err
		}
	}

	report.Valid = report.ErrorCount() == 0

	c.logger.InfoContext(ctx, "integrity check finished",
		slog.Bool("valid", report.Valid),
		slog.Int("errors", report.ErrorCount()),
		slog.Int("warnings", report.WarningCount()),
	)
	return report, nil
}

func (c *Checker) checkMissingBarcodes(ctx context.Context, report *Report) error {
	units, err := c.units.ListUnitsMissingBarcode(ctx)
	if err != nil {
		return fmt.Errorf("list units missing barcode: %w", err)
	}

	for _, unit := range units {
		severity := SeverityWarning
		if unit.Status.Active() {
			severity = SeverityError
		}
		report.Issues = append(report.Issues, Issue{
			Severity: severity,
			Check:    CheckMissingBarcode,
			Message:  fmt.Sprintf("unit %s (serial %s) has no barcode", unit.ID, unit.SerialNumber),
			EntityID: ptr.New(unit.ID),
			Data: map[string]any{
				"product_id": unit.ProductID,
				"status":     unit.Status,
			},
		})
	}
	return nil
}

func (c *Checker) checkOrphanedRegistryEntries(ctx context.Context, report *Report) error {
	entries, err := c.registry.ListOrphanedEntries(ctx)
	if err != nil {
		return fmt.Errorf("list orphaned registry entries: %w", err)
	}

	for _, entry := range entries {
		report.Issues = append(report.Issues, Issue{
			Severity: SeverityError,
			Check:    CheckOrphanedRegistry,
			Message:  fmt.Sprintf("registry entry %s points at missing %s %s", entry.Barcode, entry.EntityType, entry.EntityID),
			EntityID: ptr.New(entry.ID),
			Data: map[string]any{
				"barcode":     entry.Barcode,
				"entity_type": entry.EntityType,
				"entity_id":   entry.EntityID,
			},
		})
	}
	return nil
}

func (c *Checker) checkDuplicateBarcodes(ctx context.Context, report *Report) error {
	duplicates, err := c.registry.ListDuplicateBarcodes(ctx)
	if err != nil {
		return fmt.Errorf("list duplicate barcodes: %w", err)
	}

	for _, dup := range duplicates {
		report.Issues = append(report.Issues, Issue{
			Severity: SeverityError,
			Check:    CheckDuplicateBarcode,
			Message:  fmt.Sprintf("barcode %s registered %d times", dup.Barcode, dup.Count),
			Data: map[string]any{
				"barcode": dup.Barcode,
				"count":   dup.Count,
			},
		})
	}
	return nil
}

// checkTransactions walks every transaction once and applies the four
// transaction-level checks to it.
func (c *Checker) checkTransactions(ctx context.Context, report *Report) error {
	transactions, err := c.transactions.ListTransactions(ctx)
	if err != nil {
		return fmt.Errorf("list transactions: %w", err)
	}

	serialized := map[uuid.UUID]bool{}

	for _, tx := range transactions {
		items, err := c.transactions.ListItemsByTransaction(ctx, tx.ID)
		if err != nil {
			return fmt.Errorf("list items for transaction %s: %w", tx.ID, err)
		}

		if len(items) == 0 {
			report.Issues = append(report.Issues, Issue{
				Severity:      SeverityWarning,
				Check:         CheckOrphanedTransaction,
				Message:       fmt.Sprintf("transaction %s has no items", tx.ID),
				TransactionID: ptr.New(tx.ID),
			})
			continue
		}

		var (
			calculated  float64
			hasUnitRefs bool
		)
		for _, item := range items {
			calculated += item.TotalCost
			if len(item.ProductUnitIDs) > 0 {
				hasUnitRefs = true
			}

			isSerial, ok := serialized[item.ProductID]
			if !ok {
				product, err := c.products.GetProduct(ctx, item.ProductID)
				if err != nil && !errors.Is(err, repository.ErrNotFound) {
					return fmt.Errorf("get product %s: %w", item.ProductID, err)
				}
				isSerial = err == nil && product.HasSerial
				serialized[item.ProductID] = isSerial
			}
			if isSerial && len(item.ProductUnitIDs) != item.Quantity {
				severity := SeverityWarning
				if len(item.ProductUnitIDs) == 0 {
					severity = SeverityError
				}
				report.Issues = append(report.Issues, Issue{
					Severity:      severity,
					Check:         CheckUnitCountMismatch,
					Message:       fmt.Sprintf("item %s links %d units but declares quantity %d", item.ID, len(item.ProductUnitIDs), item.Quantity),
					EntityID:      ptr.New(item.ID),
					TransactionID: ptr.New(tx.ID),
					Data: map[string]any{
						"product_id":   item.ProductID,
						"quantity":     item.Quantity,
						"linked_units": len(item.ProductUnitIDs),
					},
				})
			}
		}

		if tx.TotalAmount == 0 && hasUnitRefs {
			report.Issues = append(report.Issues, Issue{
				Severity:      SeverityError,
				Check:         CheckZeroTotal,
				Message:       fmt.Sprintf("transaction %s has unit-linked items but zero total", tx.ID),
				TransactionID: ptr.New(tx.ID),
				Data: map[string]any{
					"calculated_total": calculated,
				},
			})
		}

		if math.Abs(calculated-tx.TotalAmount) > model.TotalAmountTolerance {
			report.Issues = append(report.Issues, Issue{
				Severity:      SeverityError,
				Check:         CheckTotalAmountMismatch,
				Message:       fmt.Sprintf("transaction %s stores total %.2f but items sum to %.2f", tx.ID, tx.TotalAmount, calculated),
				TransactionID: ptr.New(tx.ID),
				Data: map[string]any{
					"stored_total":     tx.TotalAmount,
					"calculated_total": calculated,
				},
			})
		}
	}
	return nil
}
