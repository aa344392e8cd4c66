package http

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tdminh/storecore/internal/integrity"
)

type createRecoveryTransactionRequest struct {
	SupplierID             uuid.UUID   `json:"supplier_id"`
	UnitIDs                []uuid.UUID `json:"unit_ids"`
	EstimatedPurchasePrice float64     `json:"estimated_purchase_price"`
	Notes                  string      `json:"notes"`
}

func (s *Service) handleListOrphanedUnits(w http.ResponseWriter, r *http.Request) {
	orphans, err := s.recovery.FindOrphanedUnits(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if orphans == nil {
		orphans = []integrity.OrphanedUnit{}
	}
	s.writeJSON(w, r, http.StatusOK, orphans)
}

func (s *Service) handleCreateRecoveryTransaction(w http.ResponseWriter, r *http.Request) {
	var req createRecoveryTransactionRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.recovery.CreateRecoveryTransaction(r.Context(), integrity.CreateRecoveryTransactionParams{
		SupplierID:             req.SupplierID,
		UnitIDs:                req.UnitIDs,
		EstimatedPurchasePrice: req.EstimatedPurchasePrice,
		Notes:                  req.Notes,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusCreated, result)
}
