package http

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tdminh/storecore/internal/barcode"
	"github.com/tdminh/storecore/internal/model"
)

type generateBarcodeRequest struct {
	EntityType  model.EntityType  `json:"entity_type"`
	EntityID    uuid.UUID         `json:"entity_id"`
	BarcodeType model.BarcodeType `json:"barcode_type"`
}

type barcodeResponse struct {
	Barcode string `json:"barcode"`
}

type validateBarcodeRequest struct {
	Barcode string `json:"barcode"`
}

func (s *Service) handleGetOrGenerateBarcode(w http.ResponseWriter, r *http.Request) {
	var req generateBarcodeRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	value, err := s.authority.GetOrGenerateBarcode(r.Context(), req.EntityType, req.EntityID, req.BarcodeType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, barcodeResponse{Barcode: value})
}

func (s *Service) handleValidateBarcode(w http.ResponseWriter, r *http.Request) {
	var req validateBarcodeRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, barcode.ValidateBarcode(req.Barcode))
}
