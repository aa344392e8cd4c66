// Package memory provides an in-memory implementation of the repository
// interfaces for unit tests and single-process experiments. Behavior mirrors
// the postgres implementations, including the re-check-before-delete
// semantics the repair engine relies on.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tdminh/storecore/internal/model"
	"github.com/tdminh/storecore/internal/repository"
	"github.com/tdminh/storecore/internal/storage/db"
)

// Store backs every repository interface with maps. The zero value is not
// usable; construct with NewStore.
type Store struct {
	mu sync.Mutex

	Products     map[uuid.UUID]model.Product
	Units        map[uuid.UUID]model.ProductUnit
	Registry     map[uuid.UUID]model.BarcodeRegistryEntry
	Suppliers    map[uuid.UUID]model.Supplier
	Transactions map[uuid.UUID]model.SupplierTransaction
	Items        map[uuid.UUID]model.SupplierTransactionItem
	AuditEvents  []model.AuditEvent

	// Per-entity error injection for exercising partial-failure paths.
	SetUnitBarcodeErr map[uuid.UUID]error
	LinkUnitErr       map[uuid.UUID]error
}

func NewStore() *Store {
	return &Store{
		Products:          make(map[uuid.UUID]model.Product),
		Units:             make(map[uuid.UUID]model.ProductUnit),
		Registry:          make(map[uuid.UUID]model.BarcodeRegistryEntry),
		Suppliers:         make(map[uuid.UUID]model.Supplier),
		Transactions:      make(map[uuid.UUID]model.SupplierTransaction),
		Items:             make(map[uuid.UUID]model.SupplierTransactionItem),
		SetUnitBarcodeErr: make(map[uuid.UUID]error),
		LinkUnitErr:       make(map[uuid.UUID]error),
	}
}

// Each repository interface declares WithDB with its own return type, so the
// store exposes one thin accessor per interface. WithDB returns the wrapper
// itself: there is no transaction layer to rebind onto.
var (
	_ repository.ProductRepository             = productRepo{}
	_ repository.ProductUnitRepository         = unitRepo{}
	_ repository.BarcodeRegistryRepository     = registryRepo{}
	_ repository.SupplierRepository            = supplierRepo{}
	_ repository.SupplierTransactionRepository = transactionRepo{}
	_ repository.AuditEventRepository          = auditRepo{}
)

// Product repository

func (s *Store) ProductRepo() repository.ProductRepository { return productRepo{s} }

type productRepo struct{ *Store }

func (r productRepo) WithDB(_ db.DB) repository.ProductRepository { return r }

func (s *Store) GetProduct(_ context.Context, id uuid.UUID) (model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.Products[id]
	if !ok {
		return model.Product{}, repository.ErrNotFound
	}
	return p, nil
}

func (s *Store) ProductExists(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.Products[id]
	return ok, nil
}

func (s *Store) SetProductBarcode(_ context.Context, id uuid.UUID, barcode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.Products[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Barcode = &barcode
	p.UpdatedAt = time.Now()
	s.Products[id] = p
	return nil
}

// ProductUnit repository

func (s *Store) UnitRepo() repository.ProductUnitRepository { return unitRepo{s} }

type unitRepo struct{ *Store }

func (r unitRepo) WithDB(_ db.DB) repository.ProductUnitRepository { return r }

func (s *Store) GetUnit(_ context.Context, id uuid.UUID) (model.ProductUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.Units[id]
	if !ok {
		return model.ProductUnit{}, repository.ErrNotFound
	}
	return u, nil
}

func (s *Store) UnitExists(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.Units[id]
	return ok, nil
}

func (s *Store) ListUnitsMissingBarcode(_ context.Context) ([]model.ProductUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var units []model.ProductUnit
	for _, u := range s.Units {
		if !u.HasBarcode() {
			units = append(units, u)
		}
	}
	sortUnits(units)
	return units, nil
}

func (s *Store) ListOrphanedUnits(_ context.Context) ([]model.ProductUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var units []model.ProductUnit
	for _, u := range s.Units {
		if u.SupplierID == nil || u.SupplierTransactionID == nil {
			units = append(units, u)
		}
	}
	sortUnits(units)
	return units, nil
}

func (s *Store) SetUnitBarcode(_ context.Context, id uuid.UUID, barcode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.SetUnitBarcodeErr[id]; err != nil {
		return err
	}

	u, ok := s.Units[id]
	if !ok || u.HasBarcode() {
		return repository.ErrNotFound
	}
	u.Barcode = &barcode
	u.UpdatedAt = time.Now()
	s.Units[id] = u
	return nil
}

func (s *Store) LinkUnitToTransaction(_ context.Context, unitID, supplierID, transactionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.LinkUnitErr[unitID]; err != nil {
		return err
	}

	u, ok := s.Units[unitID]
	if !ok {
		return repository.ErrNotFound
	}
	u.SupplierID = &supplierID
	u.SupplierTransactionID = &transactionID
	u.UpdatedAt = time.Now()
	s.Units[unitID] = u
	return nil
}

// BarcodeRegistry repository

func (s *Store) RegistryRepo() repository.BarcodeRegistryRepository { return registryRepo{s} }

type registryRepo struct{ *Store }

func (r registryRepo) WithDB(_ db.DB) repository.BarcodeRegistryRepository { return r }

func (s *Store) CreateEntry(_ context.Context, entry model.BarcodeRegistryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Registry[entry.ID] = entry
	return nil
}

func (s *Store) GetByBarcode(_ context.Context, barcode string) (model.BarcodeRegistryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.Registry {
		if e.Barcode == barcode {
			return e, nil
		}
	}
	return model.BarcodeRegistryEntry{}, repository.ErrNotFound
}

func (s *Store) GetByEntity(_ context.Context, entityType model.EntityType, entityID uuid.UUID) (model.BarcodeRegistryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		found bool
		best  model.BarcodeRegistryEntry
	)
	for _, e := range s.Registry {
		if e.EntityType != entityType || e.EntityID != entityID {
			continue
		}
		if !found || e.GeneratedAt.Before(best.GeneratedAt) {
			best = e
			found = true
		}
	}
	if !found {
		return model.BarcodeRegistryEntry{}, repository.ErrNotFound
	}
	return best, nil
}

func (s *Store) BarcodeExists(_ context.Context, barcode string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.Registry {
		if e.Barcode == barcode {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListOrphanedEntries(_ context.Context) ([]model.BarcodeRegistryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []model.BarcodeRegistryEntry
	for _, e := range s.Registry {
		if s.entryOrphanedLocked(e) {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].GeneratedAt.Before(entries[j].GeneratedAt)
	})
	return entries, nil
}

func (s *Store) ListDuplicateBarcodes(_ context.Context) ([]repository.DuplicateBarcode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int)
	for _, e := range s.Registry {
		counts[e.Barcode]++
	}

	var duplicates []repository.DuplicateBarcode
	for barcode, count := range counts {
		if count > 1 {
			duplicates = append(duplicates, repository.DuplicateBarcode{
				Barcode: barcode,
				Count:   count,
			})
		}
	}
	sort.Slice(duplicates, func(i, j int) bool {
		return duplicates[i].Barcode < duplicates[j].Barcode
	})
	return duplicates, nil
}

func (s *Store) DeleteEntryIfOrphaned(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.Registry[id]
	if !ok || !s.entryOrphanedLocked(e) {
		return false, nil
	}
	delete(s.Registry, id)
	return true, nil
}

func (s *Store) entryOrphanedLocked(e model.BarcodeRegistryEntry) bool {
	switch e.EntityType {
	case model.EntityTypeProductUnit:
		_, ok := s.Units[e.EntityID]
		return !ok
	case model.EntityTypeProduct:
		_, ok := s.Products[e.EntityID]
		return !ok
	default:
		return false
	}
}

// Supplier repository

func (s *Store) SupplierRepo() repository.SupplierRepository { return supplierRepo{s} }

type supplierRepo struct{ *Store }

func (r supplierRepo) WithDB(_ db.DB) repository.SupplierRepository { return r }

func (s *Store) GetSupplier(_ context.Context, id uuid.UUID) (model.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sup, ok := s.Suppliers[id]
	if !ok {
		return model.Supplier{}, repository.ErrNotFound
	}
	return sup, nil
}

func (s *Store) SupplierExists(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.Suppliers[id]
	return ok, nil
}

// SupplierTransaction repository

func (s *Store) TransactionRepo() repository.SupplierTransactionRepository { return transactionRepo{s} }

type transactionRepo struct{ *Store }

func (r transactionRepo) WithDB(_ db.DB) repository.SupplierTransactionRepository { return r }

func (s *Store) CreateTransaction(_ context.Context, tx model.SupplierTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Transactions[tx.ID] = tx
	return nil
}

func (s *Store) CreateItem(_ context.Context, item model.SupplierTransactionItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Items[item.ID] = item
	return nil
}

func (s *Store) GetTransaction(_ context.Context, id uuid.UUID) (model.SupplierTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.Transactions[id]
	if !ok {
		return model.SupplierTransaction{}, repository.ErrNotFound
	}
	return tx, nil
}

func (s *Store) ListTransactions(_ context.Context) ([]model.SupplierTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	transactions := make([]model.SupplierTransaction, 0, len(s.Transactions))
	for _, tx := range s.Transactions {
		transactions = append(transactions, tx)
	}
	sort.Slice(transactions, func(i, j int) bool {
		if !transactions[i].Date.Equal(transactions[j].Date) {
			return transactions[i].Date.Before(transactions[j].Date)
		}
		return transactions[i].ID.String() < transactions[j].ID.String()
	})
	return transactions, nil
}

func (s *Store) ListItemsByTransaction(_ context.Context, transactionID uuid.UUID) ([]model.SupplierTransactionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var items []model.SupplierTransactionItem
	for _, item := range s.Items {
		if item.TransactionID == transactionID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID.String() < items[j].ID.String()
	})
	return items, nil
}

func (s *Store) SetTotalAmount(_ context.Context, id uuid.UUID, totalAmount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.Transactions[id]
	if !ok {
		return repository.ErrNotFound
	}
	tx.TotalAmount = totalAmount
	tx.UpdatedAt = time.Now()
	s.Transactions[id] = tx
	return nil
}

func (s *Store) DeleteTransactionIfEmpty(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.Transactions[id]; !ok {
		return false, nil
	}
	for _, item := range s.Items {
		if item.TransactionID == id {
			return false, nil
		}
	}
	delete(s.Transactions, id)
	return true, nil
}

// AuditEvent repository

func (s *Store) AuditRepo() repository.AuditEventRepository { return auditRepo{s} }

type auditRepo struct{ *Store }

func (r auditRepo) WithDB(_ db.DB) repository.AuditEventRepository { return r }

func (s *Store) CreateAuditEvent(_ context.Context, params repository.CreateAuditEventParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.AuditEvents = append(s.AuditEvents, model.AuditEvent{
		ID:           uuid.New(),
		Topic:        params.Topic,
		Headers:      params.Headers,
		Payload:      append(json.RawMessage(nil), params.Payload...),
		PartitionKey: params.PartitionKey,
		CreatedAt:    time.Now(),
	})
	return nil
}

func (s *Store) ListUnpublished(_ context.Context, batchSize int32) ([]model.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []model.AuditEvent
	for _, ev := range s.AuditEvents {
		if ev.PublishedAt == nil {
			events = append(events, ev)
			if int32(len(events)) >= batchSize {
				break
			}
		}
	}
	return events, nil
}

func (s *Store) MarkPublished(_ context.Context, items []repository.MarkPublishedItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, item := range items {
		for i := range s.AuditEvents {
			if s.AuditEvents[i].ID == item.ID {
				s.AuditEvents[i].PublishedAt = &now
				s.AuditEvents[i].Error = item.Error
			}
		}
	}
	return nil
}

func sortUnits(units []model.ProductUnit) {
	sort.Slice(units, func(i, j int) bool {
		if !units[i].CreatedAt.Equal(units[j].CreatedAt) {
			return units[i].CreatedAt.Before(units[j].CreatedAt)
		}
		return units[i].ID.String() < units[j].ID.String()
	})
}
