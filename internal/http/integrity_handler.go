package http

import (
	"net/http"
)

func (s *Service) handleIntegrityCheck(w http.ResponseWriter, r *http.Request) {
	report, err := s.checker.Run(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, report)
}

func (s *Service) handleIntegrityFix(w http.ResponseWriter, r *http.Request) {
	report, err := s.repairer.FixAll(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, report)
}

func (s *Service) handleBarcodeBackfill(w http.ResponseWriter, r *http.Request) {
	record, err := s.repairer.BackfillMissingBarcodes(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, record)
}
