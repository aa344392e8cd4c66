package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdminh/storecore/internal/barcode"
	"github.com/tdminh/storecore/internal/config"
	"github.com/tdminh/storecore/internal/coordinator"
	internalhttp "github.com/tdminh/storecore/internal/http"
	"github.com/tdminh/storecore/internal/integrity"
	"github.com/tdminh/storecore/internal/model"
	"github.com/tdminh/storecore/internal/repository/memory"
	"github.com/tdminh/storecore/pkg/validator"
)

type staticHealth struct{ healthy bool }

func (h staticHealth) IsHealthy(_ context.Context) (bool, error) { return h.healthy, nil }

type testServer struct {
	store  *memory.Store
	router *chi.Mux
}

func newTestServer(t *testing.T, healthy bool) testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	coord := coordinator.New(logger)

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
	checker := integrity.NewChecker(logger, store.ProductRepo(), store.UnitRepo(), store.RegistryRepo(), store.TransactionRepo())
	repairer := integrity.NewRepairer(logger, authority, store.UnitRepo(), store.RegistryRepo(), store.TransactionRepo(), store.AuditRepo(), coord)

	v, err := validator.NewDefaultValidator()
	require.NoError(t, err)
	recovery := integrity.NewRecovery(logger, memory.DB{}, v, store.UnitRepo(), store.SupplierRepo(), store.TransactionRepo(), store.AuditRepo(), coord)

	svc := internalhttp.New(config.HTTP{Port: 0}, logger, authority, checker, repairer, recovery, staticHealth{healthy})

	router := chi.NewRouter()
	svc.RegisterHandlers(router)

	return testServer{store: store, router: router}
}

func (s testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	resp := httptest.NewRecorder()
	s.router.ServeHTTP(resp, req)
	return resp
}

func decodeBody[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	t.Run("Should report ok when the store is reachable", func(t *testing.T) {
		s := newTestServer(t, true)
		resp := s.do(t, http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusOK, resp.Code)
	})

	t.Run("Should report unavailable otherwise", func(t *testing.T) {
		s := newTestServer(t, false)
		resp := s.do(t, http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	})
}

func TestIntegrityEndpoints(t *testing.T) {
	t.Run("Should run check and return report", func(t *testing.T) {
		s := newTestServer(t, true)
		product := model.Product{ID: uuid.New(), Brand: "Widget", Model: "Phone", HasSerial: true}
		s.store.Products[product.ID] = product
		unitID := uuid.New()
		s.store.Units[unitID] = model.ProductUnit{
			ID:        unitID,
			ProductID: product.ID,
			Status:    model.UnitStatusAvailable,
		}

		resp := s.do(t, http.MethodPost, "/api/v1/integrity/check", nil)
		require.Equal(t, http.StatusOK, resp.Code)

		report := decodeBody[integrity.Report](t, resp)
		assert.False(t, report.Valid)
		require.Len(t, report.Issues, 1)
		assert.Equal(t, integrity.CheckMissingBarcode, report.Issues[0].Check)
	})

	t.Run("Should apply fixes and return consistency report", func(t *testing.T) {
		s := newTestServer(t, true)
		supplier := model.Supplier{ID: uuid.New(), Name: "Acme"}
		s.store.Suppliers[supplier.ID] = supplier
		tx := model.SupplierTransaction{
			ID:         uuid.New(),
			SupplierID: supplier.ID,
			Type:       model.TransactionTypePurchase,
			Status:     model.TransactionStatusCompleted,
			Date:       time.Now(),
		}
		s.store.Transactions[tx.ID] = tx

		resp := s.do(t, http.MethodPost, "/api/v1/integrity/fix", nil)
		require.Equal(t, http.StatusOK, resp.Code)

		report := decodeBody[integrity.ConsistencyReport](t, resp)
		assert.Len(t, report.Fixes, 4)
		assert.Empty(t, s.store.Transactions)
	})

	t.Run("Should backfill barcodes", func(t *testing.T) {
		s := newTestServer(t, true)
		product := model.Product{ID: uuid.New(), Brand: "Widget", Model: "Phone", HasSerial: true}
		s.store.Products[product.ID] = product
		unitID := uuid.New()
		s.store.Units[unitID] = model.ProductUnit{
			ID:        unitID,
			ProductID: product.ID,
			Status:    model.UnitStatusAvailable,
		}

		resp := s.do(t, http.MethodPost, "/api/v1/integrity/barcodes/backfill", nil)
		require.Equal(t, http.StatusOK, resp.Code)

		record := decodeBody[integrity.FixRecord](t, resp)
		assert.Equal(t, 1, record.AffectedCount)
		assert.True(t, s.store.Units[unitID].HasBarcode())
	})
}

func TestRecoveryEndpoints(t *testing.T) {
	t.Run("Should list orphaned units", func(t *testing.T) {
		s := newTestServer(t, true)
		product := model.Product{ID: uuid.New(), Brand: "Widget", Model: "Phone", HasSerial: true}
		s.store.Products[product.ID] = product
		unitID := uuid.New()
		s.store.Units[unitID] = model.ProductUnit{
			ID:        unitID,
			ProductID: product.ID,
			Status:    model.UnitStatusAvailable,
		}

		resp := s.do(t, http.MethodGet, "/api/v1/recovery/orphaned-units", nil)
		require.Equal(t, http.StatusOK, resp.Code)

		orphans := decodeBody[[]integrity.OrphanedUnit](t, resp)
		require.Len(t, orphans, 1)
		assert.Equal(t, integrity.OrphanTypeNoSupplier, orphans[0].OrphanType)
	})

	t.Run("Should create recovery transaction", func(t *testing.T) {
		s := newTestServer(t, true)
		supplier := model.Supplier{ID: uuid.New(), Name: "Acme"}
		s.store.Suppliers[supplier.ID] = supplier
		product := model.Product{ID: uuid.New(), Brand: "Widget", Model: "Phone", HasSerial: true}
		s.store.Products[product.ID] = product

		unitIDs := make([]uuid.UUID, 0, 2)
		for i := 0; i < 2; i++ {
			id := uuid.New()
			s.store.Units[id] = model.ProductUnit{
				ID:        id,
				ProductID: product.ID,
				Status:    model.UnitStatusAvailable,
			}
			unitIDs = append(unitIDs, id)
		}

		resp := s.do(t, http.MethodPost, "/api/v1/recovery/transactions", map[string]any{
			"supplier_id":              supplier.ID,
			"unit_ids":                 unitIDs,
			"estimated_purchase_price": 25.0,
		})
		require.Equal(t, http.StatusCreated, resp.Code)

		result := decodeBody[integrity.RecoveryResult](t, resp)
		assert.Equal(t, 2, result.LinkedUnits)
		assert.InDelta(t, 50.0, result.TotalAmount, 0.001)
	})

	t.Run("Should reject invalid recovery params", func(t *testing.T) {
		s := newTestServer(t, true)

		resp := s.do(t, http.MethodPost, "/api/v1/recovery/transactions", map[string]any{
			"unit_ids":                 []uuid.UUID{},
			"estimated_purchase_price": 0,
		})
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})
}

func TestBarcodeEndpoints(t *testing.T) {
	t.Run("Should get or generate a barcode", func(t *testing.T) {
		s := newTestServer(t, true)
		product := model.Product{ID: uuid.New(), Brand: "Widget", Model: "Phone", HasSerial: true}
		s.store.Products[product.ID] = product
		unitID := uuid.New()
		s.store.Units[unitID] = model.ProductUnit{
			ID:           unitID,
			ProductID:    product.ID,
			SerialNumber: "SN-900",
			Status:       model.UnitStatusAvailable,
		}

		body := map[string]any{
			"entity_type":  "product_unit",
			"entity_id":    unitID,
			"barcode_type": "unit",
		}

		first := s.do(t, http.MethodPost, "/api/v1/barcodes", body)
		require.Equal(t, http.StatusOK, first.Code)
		second := s.do(t, http.MethodPost, "/api/v1/barcodes", body)
		require.Equal(t, http.StatusOK, second.Code)

		assert.JSONEq(t, first.Body.String(), second.Body.String())
	})

	t.Run("Should reject unknown entity type", func(t *testing.T) {
		s := newTestServer(t, true)

		resp := s.do(t, http.MethodPost, "/api/v1/barcodes", map[string]any{
			"entity_type":  "warehouse",
			"entity_id":    uuid.New(),
			"barcode_type": "unit",
		})
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("Should validate barcode structure", func(t *testing.T) {
		s := newTestServer(t, true)

		resp := s.do(t, http.MethodPost, "/api/v1/barcodes/validate", map[string]any{
			"barcode": "4006381333931",
		})
		require.Equal(t, http.StatusOK, resp.Code)

		result := decodeBody[barcode.ValidationResult](t, resp)
		assert.True(t, result.IsValid)
	})

	t.Run("Should return malformed body error", func(t *testing.T) {
		s := newTestServer(t, true)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/barcodes/validate", bytes.NewReader([]byte("{")))
		resp := httptest.NewRecorder()
		s.router.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})
}
