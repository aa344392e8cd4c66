package integrity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tdminh/storecore/internal/coordinator"
	"github.com/tdminh/storecore/internal/event"
	"github.com/tdminh/storecore/internal/model"
	"github.com/tdminh/storecore/internal/repository"
	"github.com/tdminh/storecore/internal/storage/db"
	"github.com/tdminh/storecore/pkg/validator"
	"github.com/tdminh/storecore/pkg/zerror"
)

// OrphanType classifies why a unit has no intake linkage.
type OrphanType string

const (
	OrphanTypeNoSupplier    OrphanType = "no_supplier"
	OrphanTypeNoTransaction OrphanType = "no_transaction"
)

// OrphanedUnit is a unit that lost its supplier or transaction linkage.
type OrphanedUnit struct {
	model.ProductUnit
	OrphanType OrphanType `json:"orphan_type"`
}

// CreateRecoveryTransactionParams selects the orphaned units to attach and
// the supplier to attach them to.
type CreateRecoveryTransactionParams struct {
	SupplierID             uuid.UUID   `validate:"required"`
	UnitIDs                []uuid.UUID `validate:"required,min=1"`
	EstimatedPurchasePrice float64     `validate:"required,gt=0"`
	Notes                  string      `validate:"max=500"`
}

// UnitError reports one unit that could not be linked.
type UnitError struct {
	UnitID uuid.UUID `json:"unit_id"`
	Error  string    `json:"error"`
}

// RecoveryResult is the outcome of one recovery transaction. Errors lists
// per-unit link failures; the transaction still succeeds as long as at
// least one unit linked.
type RecoveryResult struct {
	TransactionID uuid.UUID   `json:"transaction_id"`
	LinkedUnits   int         `json:"linked_units"`
	TotalAmount   float64     `json:"total_amount"`
	Errors        []UnitError `json:"errors,omitempty"`
}

var errNoUnitsLinked = zerror.NewUnprocessableEntity(
	"RECOVERY_NO_UNITS_LINKED",
	"none of the selected units could be linked",
)

// Recovery finds units without supplier/transaction linkage and attaches
// them in bulk to a chosen supplier through one synthetic purchase
// transaction.
type Recovery struct {
	logger       *slog.Logger
	db           db.DB
	validator    validator.Validator
	units        repository.ProductUnitRepository
	suppliers    repository.SupplierRepository
	transactions repository.SupplierTransactionRepository
	audit        repository.AuditEventRepository
	coordinator  *coordinator.Coordinator
}

func NewRecovery(
	logger *slog.Logger,
	database db.DB,
	v validator.Validator,
	units repository.ProductUnitRepository,
	suppliers repository.SupplierRepository,
	transactions repository.SupplierTransactionRepository,
	audit repository.AuditEventRepository,
	coord *coordinator.Coordinator,
) *Recovery {
	return &Recovery{
		logger:       logger.With(slog.String("service", "orphan_recovery")),
		db:           database,
		validator:    v,
		units:        units,
		suppliers:    suppliers,
		transactions: transactions,
		audit:        audit,
		coordinator:  coord,
	}
}

// FindOrphanedUnits lists units with a missing supplier or transaction
// reference, classified by which linkage is absent. A unit missing both is
// reported as no_supplier.
func (r *Recovery) FindOrphanedUnits(ctx context.Context) ([]OrphanedUnit, error) {
	units, err := r.units.ListOrphanedUnits(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orphaned units: %w", err)
	}

	orphans := make([]OrphanedUnit, 0, len(units))
	for _, unit := range units {
		orphanType := OrphanTypeNoTransaction
		if unit.SupplierID == nil {
			orphanType = OrphanTypeNoSupplier
		}
		orphans = append(orphans, OrphanedUnit{ProductUnit: unit, OrphanType: orphanType})
	}
	return orphans, nil
}

// CreateRecoveryTransaction attaches the selected units to the supplier by
// creating one completed purchase transaction. The transaction total is
// estimated_purchase_price times the number of requested units, and one
// item per product covers exactly the units that linked. Units that fail
// to link are reported individually; the whole transaction rolls back only
// when no unit links at all.
func (r *Recovery) CreateRecoveryTransaction(ctx context.Context, params CreateRecoveryTransactionParams) (RecoveryResult, error) {
	if err := r.validator.Validate(params); err != nil {
		return RecoveryResult{}, zerror.NewValidationFailed("INVALID_RECOVERY_PARAMS", err.Error()).WrapParent(err)
	}

	exists, err := r.suppliers.SupplierExists(ctx, params.SupplierID)
	if err != nil {
		return RecoveryResult{}, fmt.Errorf("check supplier: %w", err)
	}
	if !exists {
		return RecoveryResult{}, zerror.NewNotFound("SUPPLIER_NOT_FOUND", "supplier not found")
	}

	now := time.Now()
	result := RecoveryResult{
		TransactionID: uuid.New(),
		TotalAmount:   params.EstimatedPurchasePrice * float64(len(params.UnitIDs)),
	}

	var linkedUnitIDs []uuid.UUID
	err = r.db.WithTx(ctx, func(tx db.DB) error {
		transactions := r.transactions.WithDB(tx)
		units := r.units.WithDB(tx)

		notes := params.Notes
		if notes == "" {
			notes = fmt.Sprintf("recovery of %d orphaned units", len(params.UnitIDs))
		}

		if err := transactions.CreateTransaction(ctx, model.SupplierTransaction{
			ID:          result.TransactionID,
			SupplierID:  params.SupplierID,
			Type:        model.TransactionTypePurchase,
			Status:      model.TransactionStatusCompleted,
			TotalAmount: result.TotalAmount,
			Date:        now,
			Notes:       notes,
			CreatedAt:   now,
			UpdatedAt:   now,
		}); err != nil {
			return fmt.Errorf("create recovery transaction: %w", err)
		}

		// Link unit by unit; one bad unit must not sink the batch.
		linkedByProduct := map[uuid.UUID][]uuid.UUID{}
		for _, unitID := range params.UnitIDs {
			unit, err := units.GetUnit(ctx, unitID)
			if errors.Is(err, repository.ErrNotFound) {
				result.Errors = append(result.Errors, UnitError{UnitID: unitID, Error: "unit not found"})
				continue
			}
			if err != nil {
				return fmt.Errorf("get unit %s: %w", unitID, err)
			}

			if err := units.LinkUnitToTransaction(ctx, unitID, params.SupplierID, result.TransactionID); err != nil {
				result.Errors = append(result.Errors, UnitError{UnitID: unitID, Error: err.Error()})
				r.logger.WarnContext(ctx, "unit link failed",
					slog.String("unit_id", unitID.String()),
					slog.Any("error", err),
				)
				continue
			}
			linkedByProduct[unit.ProductID] = append(linkedByProduct[unit.ProductID], unitID)
			linkedUnitIDs = append(linkedUnitIDs, unitID)
			result.LinkedUnits++
		}

		if result.LinkedUnits == 0 {
			return errNoUnitsLinked
		}

		for productID, unitIDs := range linkedByProduct {
			if err := transactions.CreateItem(ctx, model.SupplierTransactionItem{
				ID:             uuid.New(),
				TransactionID:  result.TransactionID,
				ProductID:      productID,
				Quantity:       len(unitIDs),
				UnitCost:       params.EstimatedPurchasePrice,
				TotalCost:      params.EstimatedPurchasePrice * float64(len(unitIDs)),
				ProductUnitIDs: unitIDs,
				CreatedAt:      now,
			}); err != nil {
				return fmt.Errorf("create recovery item for product %s: %w", productID, err)
			}
		}

		return r.writeAudit(ctx, tx, params, result)
	})
	if err != nil {
		return RecoveryResult{}, err
	}

	for _, unitID := range linkedUnitIDs {
		r.coordinator.Notify(ctx, coordinator.Event{
			Kind:     coordinator.KindUnitUpdated,
			Source:   coordinator.ModuleIntegrity,
			EntityID: unitID,
			Data: map[string]any{
				"transaction_id": result.TransactionID,
				"supplier_id":    params.SupplierID,
			},
		})
	}

	r.logger.InfoContext(ctx, "recovery transaction created",
		slog.String("transaction_id", result.TransactionID.String()),
		slog.Int("linked_units", result.LinkedUnits),
		slog.Int("failed_units", len(result.Errors)),
	)
	return result, nil
}

func (r *Recovery) writeAudit(ctx context.Context, tx db.DB, params CreateRecoveryTransactionParams, result RecoveryResult) error {
	payload, err := json.Marshal(event.RecoveryAudit{
		TransactionID:  result.TransactionID,
		SupplierID:     params.SupplierID,
		RequestedUnits: len(params.UnitIDs),
		LinkedUnits:    result.LinkedUnits,
		TotalAmount:    result.TotalAmount,
	})
	if err != nil {
		return fmt.Errorf("marshal recovery audit: %w", err)
	}

	if err := r.audit.WithDB(tx).CreateAuditEvent(ctx, repository.CreateAuditEventParams{
		Topic:   event.TopicAuditRecovery,
		Payload: payload,
	}); err != nil {
		return fmt.Errorf("write recovery audit: %w", err)
	}
	return nil
}
