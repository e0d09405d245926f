package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arkava/warehouse-ledger-service/internal/catalog"
	"github.com/arkava/warehouse-ledger-service/internal/ledger"
	"github.com/arkava/warehouse-ledger-service/internal/ledger/capacity"
	"github.com/arkava/warehouse-ledger-service/internal/ledger/dto"
	"github.com/arkava/warehouse-ledger-service/internal/model"
)

// memStore is an in-memory ledger.Repository with the same transition rules
// as the Postgres store, so use-case tests can exercise full operation
// sequences without a database. The mutex stands in for row locks.
type memStore struct {
	mu        sync.Mutex
	balances  map[string]*model.InventoryBalance
	movements []model.StockMovement
	byKey     map[string]*model.StockMovement
	locations map[string]*model.Location
}

func newMemStore(locations ...*model.Location) *memStore {
	s := &memStore{
		balances:  map[string]*model.InventoryBalance{},
		byKey:     map[string]*model.StockMovement{},
		locations: map[string]*model.Location{},
	}
	for _, l := range locations {
		s.locations[l.ID] = l
	}
	return s
}

func balKey(batchID, locID string) string { return batchID + "|" + locID }

func (s *memStore) FindMovementByKey(_ context.Context, key string) (*model.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.byKey[key]; ok {
		copied := *m
		return &copied, nil
	}
	return nil, nil
}

func (s *memStore) FindBalance(_ context.Context, batchID, locID string) (*model.InventoryBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.balances[balKey(batchID, locID)]; ok && b.DeletedAt == nil {
		copied := *b
		return &copied, nil
	}
	return nil, nil
}

func (s *memStore) insert(m *model.StockMovement) error {
	if m.IdempotencyKey != nil {
		if _, exists := s.byKey[*m.IdempotencyKey]; exists {
			return ledger.ErrDuplicateKey
		}
	}
	s.movements = append(s.movements, *m)
	if m.IdempotencyKey != nil {
		s.byKey[*m.IdempotencyKey] = m
	}
	return nil
}

func (s *memStore) guard(locID string, incoming int64) error {
	loc, ok := s.locations[locID]
	if !ok {
		return &ledger.NotFoundError{Kind: "Location", ID: locID}
	}
	var stored int64
	for _, b := range s.balances {
		if b.LocationID == locID && b.DeletedAt == nil {
			stored += b.TotalQty()
		}
	}
	return capacity.Check(locID, loc.Capacity, stored, incoming)
}

func (s *memStore) upsertAdd(batchID, locID string, qty int64) *model.InventoryBalance {
	key := balKey(batchID, locID)
	b, ok := s.balances[key]
	if !ok {
		b = &model.InventoryBalance{
			ID:             uuid.New().String(),
			ProductBatchID: batchID,
			LocationID:     locID,
		}
		s.balances[key] = b
	}
	b.AvailableQty += qty
	b.DeletedAt = nil
	b.UpdatedAt = time.Now().UTC()
	copied := *b
	return &copied
}

func (s *memStore) ReceiveTx(_ context.Context, in *dto.ReceiveInput) (*model.InventoryBalance, *model.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(in.LocationID, in.Quantity); err != nil {
		return nil, nil, err
	}
	movement := &model.StockMovement{
		ID:             uuid.New().String(),
		ProductBatchID: in.ProductBatchID,
		ToLocationID:   &in.LocationID,
		Quantity:       in.Quantity,
		MovementType:   model.MovementReceipt,
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.insert(movement); err != nil {
		return nil, nil, err
	}
	bal := s.upsertAdd(in.ProductBatchID, in.LocationID, in.Quantity)
	return bal, movement, nil
}

func (s *memStore) DispatchTx(_ context.Context, in *dto.DispatchInput) (*model.InventoryBalance, *model.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.balances[balKey(in.ProductBatchID, in.LocationID)]
	if in.ConsumeReservation {
		if b == nil || b.ReservedQty < in.Quantity {
			return nil, nil, ledger.ErrNotEnoughReserved
		}
		if b.AvailableQty < 0 || b.TotalQty() < in.Quantity {
			return nil, nil, ledger.ErrReservedNegative
		}
		b.ReservedQty -= in.Quantity
	} else {
		if b == nil || b.AvailableQty < in.Quantity {
			return nil, nil, ledger.ErrNotEnoughAvailable
		}
		b.AvailableQty -= in.Quantity
	}
	movement := &model.StockMovement{
		ID:             uuid.New().String(),
		ProductBatchID: in.ProductBatchID,
		FromLocationID: &in.LocationID,
		Quantity:       in.Quantity,
		MovementType:   model.MovementDispatch,
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.insert(movement); err != nil {
		return nil, nil, err
	}
	copied := *b
	return &copied, movement, nil
}

func (s *memStore) AdjustTx(_ context.Context, in *dto.AdjustInput) (*model.InventoryBalance, *model.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if in.AdjustmentQuantity > 0 {
		if err := s.guard(in.LocationID, in.AdjustmentQuantity); err != nil {
			return nil, nil, err
		}
	}
	b := s.balances[balKey(in.ProductBatchID, in.LocationID)]
	if b == nil {
		if in.AdjustmentQuantity < 0 {
			return nil, nil, ledger.ErrNotEnoughAvailable
		}
	} else if b.AvailableQty+in.AdjustmentQuantity < 0 {
		return nil, nil, ledger.ErrNotEnoughAvailable
	}
	movement := &model.StockMovement{
		ID:             uuid.New().String(),
		ProductBatchID: in.ProductBatchID,
		ToLocationID:   &in.LocationID,
		Quantity:       in.AdjustmentQuantity,
		MovementType:   model.MovementAdjustment,
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.insert(movement); err != nil {
		return nil, nil, err
	}
	bal := s.upsertAdd(in.ProductBatchID, in.LocationID, in.AdjustmentQuantity)
	return bal, movement, nil
}

func (s *memStore) TransferTx(_ context.Context, in *dto.TransferInput) (*ledger.TransferRecords, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(in.ToLocationID, in.Quantity); err != nil {
		return nil, err
	}
	src := s.balances[balKey(in.ProductBatchID, in.FromLocationID)]
	if src == nil || src.AvailableQty < in.Quantity {
		return nil, ledger.ErrNotEnoughAvailable
	}

	groupID := uuid.New().String()
	now := time.Now().UTC()
	out := &model.StockMovement{
		ID:              uuid.New().String(),
		ProductBatchID:  in.ProductBatchID,
		FromLocationID:  &in.FromLocationID,
		Quantity:        in.Quantity,
		MovementType:    model.MovementTransferOut,
		IdempotencyKey:  in.IdempotencyKey,
		TransferGroupID: &groupID,
		CreatedAt:       now,
	}
	if err := s.insert(out); err != nil {
		return nil, err
	}
	inMov := &model.StockMovement{
		ID:              uuid.New().String(),
		ProductBatchID:  in.ProductBatchID,
		ToLocationID:    &in.ToLocationID,
		Quantity:        in.Quantity,
		MovementType:    model.MovementTransferIn,
		TransferGroupID: &groupID,
		CreatedAt:       now,
	}
	if err := s.insert(inMov); err != nil {
		return nil, err
	}

	src.AvailableQty -= in.Quantity
	fromCopy := *src
	toBal := s.upsertAdd(in.ProductBatchID, in.ToLocationID, in.Quantity)
	return &ledger.TransferRecords{
		FromInventory: &fromCopy,
		ToInventory:   toBal,
		TransferOut:   out,
		TransferIn:    inMov,
	}, nil
}

func (s *memStore) ReserveTx(_ context.Context, in *dto.ReserveInput) (*model.InventoryBalance, *model.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.balances[balKey(in.ProductBatchID, in.LocationID)]
	if b == nil || b.AvailableQty < in.Quantity {
		return nil, nil, ledger.ErrNotEnoughAvailable
	}
	movement := &model.StockMovement{
		ID:             uuid.New().String(),
		ProductBatchID: in.ProductBatchID,
		ToLocationID:   &in.LocationID,
		Quantity:       in.Quantity,
		MovementType:   model.MovementReservation,
		Reference:      &in.OrderID,
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.insert(movement); err != nil {
		return nil, nil, err
	}
	b.AvailableQty -= in.Quantity
	b.ReservedQty += in.Quantity
	copied := *b
	return &copied, movement, nil
}

func (s *memStore) ReleaseTx(_ context.Context, in *dto.ReleaseInput) (*model.InventoryBalance, *model.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.balances[balKey(in.ProductBatchID, in.LocationID)]
	if b == nil {
		return nil, nil, ledger.ErrBalanceNotFound
	}
	qty := b.ReservedQty
	if in.Quantity != nil {
		qty = *in.Quantity
	}
	if b.ReservedQty < qty {
		return nil, nil, ledger.ErrNotEnoughReserved
	}
	movement := &model.StockMovement{
		ID:             uuid.New().String(),
		ProductBatchID: in.ProductBatchID,
		FromLocationID: &in.LocationID,
		Quantity:       qty,
		MovementType:   model.MovementRelease,
		Reference:      &in.OrderID,
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.insert(movement); err != nil {
		return nil, nil, err
	}
	b.AvailableQty += qty
	b.ReservedQty -= qty
	copied := *b
	return &copied, movement, nil
}

func (s *memStore) ListBalancesByLocation(_ context.Context, locID string, q dto.PageQuery) ([]dto.BalanceRow, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := []dto.BalanceRow{}
	for _, b := range s.balances {
		if b.LocationID == locID && b.DeletedAt == nil {
			rows = append(rows, dto.BalanceRow{InventoryBalance: *b})
		}
	}
	return rows, len(rows), nil
}

func (s *memStore) ListBalancesByBatch(_ context.Context, batchID string, q dto.PageQuery) ([]dto.BalanceRow, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := []dto.BalanceRow{}
	for _, b := range s.balances {
		if b.ProductBatchID == batchID && b.DeletedAt == nil {
			rows = append(rows, dto.BalanceRow{InventoryBalance: *b})
		}
	}
	return rows, len(rows), nil
}

func (s *memStore) GetProductStock(_ context.Context, productID string) (*model.ProductStock, error) {
	return &model.ProductStock{ProductID: productID}, nil
}

func (s *memStore) ListLowStock(_ context.Context, threshold int64, q dto.PageQuery) ([]dto.BalanceRow, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := []dto.BalanceRow{}
	for _, b := range s.balances {
		if b.TotalQty() <= threshold && b.DeletedAt == nil {
			rows = append(rows, dto.BalanceRow{InventoryBalance: *b})
		}
	}
	return rows, len(rows), nil
}

func (s *memStore) ListExpiringStock(_ context.Context, within time.Duration, q dto.PageQuery) ([]dto.BalanceRow, int, error) {
	return []dto.BalanceRow{}, 0, nil
}

func (s *memStore) ListFEFOCandidates(_ context.Context, productID string) ([]model.FEFOCandidate, error) {
	return []model.FEFOCandidate{}, nil
}

func (s *memStore) ListMovements(_ context.Context, f *dto.MovementFilters) ([]model.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.StockMovement{}
	for _, m := range s.movements {
		if f.ProductBatchID != "" && m.ProductBatchID != f.ProductBatchID {
			continue
		}
		if f.MovementType != "" {
			if f.MovementType == model.MovementTransfer {
				if m.MovementType != model.MovementTransferOut && m.MovementType != model.MovementTransferIn {
					continue
				}
			} else if m.MovementType != f.MovementType {
				continue
			}
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *memStore) AverageUnitCost(_ context.Context, productID string) (float64, error) {
	return 0, nil
}

// memCatalog backs the existence checks with fixed entities.
type memCatalog struct {
	batches   map[string]*model.ProductBatch
	locations map[string]*model.Location
	users     map[string]*model.User
}

func (c *memCatalog) FindProductBatch(_ context.Context, id string) (*model.ProductBatch, error) {
	if b, ok := c.batches[id]; ok {
		return b, nil
	}
	return nil, &ledger.NotFoundError{Kind: "ProductBatch", ID: id}
}

func (c *memCatalog) FindLocation(_ context.Context, id string) (*model.Location, error) {
	if l, ok := c.locations[id]; ok {
		return l, nil
	}
	return nil, &ledger.NotFoundError{Kind: "Location", ID: id}
}

func (c *memCatalog) FindUser(_ context.Context, id string) (*model.User, error) {
	if u, ok := c.users[id]; ok {
		return u, nil
	}
	return nil, &ledger.NotFoundError{Kind: "User", ID: id}
}

var _ catalog.Repository = (*memCatalog)(nil)
var _ ledger.Repository = (*memStore)(nil)

// passCache always misses and never stores.
type passCache struct{}

func (passCache) GetOrSet(_ context.Context, _ string, _ time.Duration, _ interface{}, load func() error) error {
	return load()
}
func (passCache) InvalidatePrefix(context.Context, string) error { return nil }

type nopAudit struct{}

func (nopAudit) LogCreate(context.Context, string, interface{})                {}
func (nopAudit) LogUpdate(context.Context, string, string, interface{}, interface{}) {}

// recordingAlerts captures snapshots handed to the checker.
type recordingAlerts struct {
	mu        sync.Mutex
	snapshots []dto.StockSnapshot
}

func (a *recordingAlerts) CheckLowStock(_ context.Context, s dto.StockSnapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshots = append(a.snapshots, s)
}

func (a *recordingAlerts) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.snapshots)
}

func (a *recordingAlerts) at(i int) dto.StockSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshots[i]
}
