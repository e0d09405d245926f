package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arkava/warehouse-ledger-service/internal/catalog"
	"github.com/arkava/warehouse-ledger-service/internal/ledger"
	"github.com/arkava/warehouse-ledger-service/internal/ledger/dto"
	"github.com/arkava/warehouse-ledger-service/internal/ledger/grouper"
	"github.com/arkava/warehouse-ledger-service/internal/model"
	"github.com/arkava/warehouse-ledger-service/pkg/logger"
)

const (
	cachePrefix = "ledger:"
	cacheTTL    = 5 * time.Minute
)

type ledgerUseCase struct {
	repo    ledger.Repository
	catalog catalog.Repository
	cache   ledger.Cache
	audit   ledger.AuditSink
	alerts  ledger.AlertChecker
	logger  logger.Logger
}

func NewLedgerUseCase(
	repo ledger.Repository,
	cat catalog.Repository,
	cache ledger.Cache,
	audit ledger.AuditSink,
	alerts ledger.AlertChecker,
	log logger.Logger,
) ledger.UseCase {
	return &ledgerUseCase{
		repo:    repo,
		catalog: cat,
		cache:   cache,
		audit:   audit,
		alerts:  alerts,
		logger:  log,
	}
}

// validateRefs checks the referenced entities exist before any state change.
func (uc *ledgerUseCase) validateRefs(ctx context.Context, batchID string, locationIDs []string, createdByID *string) (*model.ProductBatch, error) {
	batch, err := uc.catalog.FindProductBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	for _, locID := range locationIDs {
		if _, err := uc.catalog.FindLocation(ctx, locID); err != nil {
			return nil, err
		}
	}
	if createdByID != nil && *createdByID != "" {
		if _, err := uc.catalog.FindUser(ctx, *createdByID); err != nil {
			return nil, err
		}
	}
	return batch, nil
}

// priorMovement is the optimistic idempotency pre-check: a cheap read before
// the transaction. The uniqueness constraint on the key remains the actual
// guarantee under concurrent duplicates.
func (uc *ledgerUseCase) priorMovement(ctx context.Context, key *string) (*model.StockMovement, error) {
	if key == nil || *key == "" {
		return nil, nil
	}
	return uc.repo.FindMovementByKey(ctx, *key)
}

// recoverDuplicate resolves the lost race on a concurrent duplicate
// submission: the insert failed on the key constraint, so the winner's
// movement is the idempotent result.
func (uc *ledgerUseCase) recoverDuplicate(ctx context.Context, key *string, err error) (*model.StockMovement, bool) {
	if key == nil || !errors.Is(err, ledger.ErrDuplicateKey) {
		return nil, false
	}
	existing, qerr := uc.repo.FindMovementByKey(ctx, *key)
	if qerr != nil || existing == nil {
		return nil, false
	}
	return existing, true
}

// afterMutation fires the side effects that must never fail the committed
// operation: cache invalidation and audit records.
func (uc *ledgerUseCase) afterMutation(before, after *model.InventoryBalance, movements ...*model.StockMovement) {
	go func() {
		ctx := context.Background()
		if err := uc.cache.InvalidatePrefix(ctx, cachePrefix); err != nil {
			uc.logger.Error("Failed to invalidate ledger cache", zap.Error(err))
		}
		for _, m := range movements {
			uc.audit.LogCreate(ctx, "StockMovement", m)
		}
		if after != nil {
			uc.audit.LogUpdate(ctx, "InventoryBalance", after.ID, before, after)
		}
	}()
}

func (uc *ledgerUseCase) Receive(ctx context.Context, in *dto.ReceiveInput) (*dto.MutationResult, error) {
	if in.Quantity <= 0 {
		return nil, ledger.ErrInvalidQuantity
	}
	batch, err := uc.validateRefs(ctx, in.ProductBatchID, []string{in.LocationID}, in.CreatedByID)
	if err != nil {
		return nil, err
	}

	// Receiving an expired batch is suspicious but legal: quarantine flows
	// bring expired goods in on purpose. Warn, don't block.
	var warnings []string
	if batch.Expired(time.Now()) {
		uc.logger.Warn("Receiving expired product batch",
			zap.String("product_batch_id", in.ProductBatchID),
			zap.String("location_id", in.LocationID),
		)
		warnings = append(warnings, fmt.Sprintf("product batch %s is expired", in.ProductBatchID))
	}

	if existing, err := uc.priorMovement(ctx, in.IdempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		return &dto.MutationResult{Success: true, Idempotent: true, Movement: existing}, nil
	}

	before, _ := uc.repo.FindBalance(ctx, in.ProductBatchID, in.LocationID)

	bal, movement, err := uc.repo.ReceiveTx(ctx, in)
	if err != nil {
		if existing, ok := uc.recoverDuplicate(ctx, in.IdempotencyKey, err); ok {
			return &dto.MutationResult{Success: true, Idempotent: true, Movement: existing}, nil
		}
		return nil, err
	}

	uc.afterMutation(before, bal, movement)
	return &dto.MutationResult{Success: true, Inventory: bal, Movement: movement, Warnings: warnings}, nil
}

func (uc *ledgerUseCase) Dispatch(ctx context.Context, in *dto.DispatchInput) (*dto.MutationResult, error) {
	if in.Quantity <= 0 {
		return nil, ledger.ErrInvalidQuantity
	}
	if _, err := uc.validateRefs(ctx, in.ProductBatchID, []string{in.LocationID}, in.CreatedByID); err != nil {
		return nil, err
	}

	if existing, err := uc.priorMovement(ctx, in.IdempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		return &dto.MutationResult{Success: true, Idempotent: true, Movement: existing}, nil
	}

	before, _ := uc.repo.FindBalance(ctx, in.ProductBatchID, in.LocationID)

	bal, movement, err := uc.repo.DispatchTx(ctx, in)
	if err != nil {
		if existing, ok := uc.recoverDuplicate(ctx, in.IdempotencyKey, err); ok {
			return &dto.MutationResult{Success: true, Idempotent: true, Movement: existing}, nil
		}
		if errors.Is(err, ledger.ErrReservedNegative) {
			uc.logger.Error("Data integrity violation: reserved quantity would go negative",
				zap.String("product_batch_id", in.ProductBatchID),
				zap.String("location_id", in.LocationID),
				zap.Int64("quantity", in.Quantity),
			)
		}
		return nil, err
	}

	uc.afterMutation(before, bal, movement)
	go uc.alerts.CheckLowStock(context.Background(), dto.StockSnapshot{
		ProductBatchID: in.ProductBatchID,
		LocationID:     in.LocationID,
		AvailableQty:   bal.AvailableQty,
	})
	return &dto.MutationResult{Success: true, Inventory: bal, Movement: movement}, nil
}

func (uc *ledgerUseCase) Adjust(ctx context.Context, in *dto.AdjustInput) (*dto.MutationResult, error) {
	if in.AdjustmentQuantity == 0 {
		return nil, ledger.ErrZeroAdjustment
	}
	if _, err := uc.validateRefs(ctx, in.ProductBatchID, []string{in.LocationID}, in.CreatedByID); err != nil {
		return nil, err
	}

	if existing, err := uc.priorMovement(ctx, in.IdempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		return &dto.MutationResult{Success: true, Idempotent: true, Movement: existing}, nil
	}

	before, _ := uc.repo.FindBalance(ctx, in.ProductBatchID, in.LocationID)

	bal, movement, err := uc.repo.AdjustTx(ctx, in)
	if err != nil {
		if existing, ok := uc.recoverDuplicate(ctx, in.IdempotencyKey, err); ok {
			return &dto.MutationResult{Success: true, Idempotent: true, Movement: existing}, nil
		}
		return nil, err
	}

	uc.afterMutation(before, bal, movement)
	if in.AdjustmentQuantity < 0 {
		go uc.alerts.CheckLowStock(context.Background(), dto.StockSnapshot{
			ProductBatchID: in.ProductBatchID,
			LocationID:     in.LocationID,
			AvailableQty:   bal.AvailableQty,
		})
	}
	return &dto.MutationResult{Success: true, Inventory: bal, Movement: movement}, nil
}

func (uc *ledgerUseCase) Transfer(ctx context.Context, in *dto.TransferInput) (*dto.TransferResult, error) {
	if in.Quantity <= 0 {
		return nil, ledger.ErrInvalidQuantity
	}
	if in.FromLocationID == in.ToLocationID {
		return nil, ledger.ErrSameLocation
	}
	if _, err := uc.validateRefs(ctx, in.ProductBatchID, []string{in.FromLocationID, in.ToLocationID}, in.CreatedByID); err != nil {
		return nil, err
	}

	if existing, err := uc.priorMovement(ctx, in.IdempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		return &dto.TransferResult{Success: true, Idempotent: true, TransferOut: existing}, nil
	}

	before, _ := uc.repo.FindBalance(ctx, in.ProductBatchID, in.FromLocationID)

	records, err := uc.repo.TransferTx(ctx, in)
	if err != nil {
		if existing, ok := uc.recoverDuplicate(ctx, in.IdempotencyKey, err); ok {
			return &dto.TransferResult{Success: true, Idempotent: true, TransferOut: existing}, nil
		}
		return nil, err
	}

	uc.afterMutation(before, records.FromInventory, records.TransferOut, records.TransferIn)
	return &dto.TransferResult{
		Success:       true,
		FromInventory: records.FromInventory,
		ToInventory:   records.ToInventory,
		TransferOut:   records.TransferOut,
		TransferIn:    records.TransferIn,
	}, nil
}

func (uc *ledgerUseCase) Reserve(ctx context.Context, in *dto.ReserveInput) (*dto.MutationResult, error) {
	if in.Quantity <= 0 {
		return nil, ledger.ErrInvalidQuantity
	}
	if _, err := uc.validateRefs(ctx, in.ProductBatchID, []string{in.LocationID}, in.CreatedByID); err != nil {
		return nil, err
	}

	if existing, err := uc.priorMovement(ctx, in.IdempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		return &dto.MutationResult{Success: true, Idempotent: true, Movement: existing}, nil
	}

	before, _ := uc.repo.FindBalance(ctx, in.ProductBatchID, in.LocationID)

	bal, movement, err := uc.repo.ReserveTx(ctx, in)
	if err != nil {
		if existing, ok := uc.recoverDuplicate(ctx, in.IdempotencyKey, err); ok {
			return &dto.MutationResult{Success: true, Idempotent: true, Movement: existing}, nil
		}
		return nil, err
	}

	uc.afterMutation(before, bal, movement)
	return &dto.MutationResult{Success: true, Inventory: bal, Movement: movement}, nil
}

func (uc *ledgerUseCase) Release(ctx context.Context, in *dto.ReleaseInput) (*dto.MutationResult, error) {
	if in.Quantity != nil && *in.Quantity <= 0 {
		return nil, ledger.ErrInvalidQuantity
	}
	if _, err := uc.validateRefs(ctx, in.ProductBatchID, []string{in.LocationID}, in.CreatedByID); err != nil {
		return nil, err
	}

	if existing, err := uc.priorMovement(ctx, in.IdempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		return &dto.MutationResult{Success: true, Idempotent: true, Movement: existing}, nil
	}

	before, _ := uc.repo.FindBalance(ctx, in.ProductBatchID, in.LocationID)

	bal, movement, err := uc.repo.ReleaseTx(ctx, in)
	if err != nil {
		if existing, ok := uc.recoverDuplicate(ctx, in.IdempotencyKey, err); ok {
			return &dto.MutationResult{Success: true, Idempotent: true, Movement: existing}, nil
		}
		return nil, err
	}

	uc.afterMutation(before, bal, movement)
	return &dto.MutationResult{Success: true, Inventory: bal, Movement: movement}, nil
}

func (uc *ledgerUseCase) GetBalance(ctx context.Context, productBatchID, locationID string) (*model.InventoryBalance, error) {
	bal, err := uc.repo.FindBalance(ctx, productBatchID, locationID)
	if err != nil {
		return nil, err
	}
	if bal == nil {
		// Zero balance rather than an error: a key that never moved is
		// indistinguishable from one that netted out to zero.
		return &model.InventoryBalance{
			ProductBatchID: productBatchID,
			LocationID:     locationID,
		}, nil
	}
	return bal, nil
}

func (uc *ledgerUseCase) ListBalancesByLocation(ctx context.Context, locationID string, q dto.PageQuery) (*dto.Paginated[dto.BalanceRow], error) {
	q.Normalize()
	key := fmt.Sprintf("%sbalances:loc:%s:%d:%d:%s:%s", cachePrefix, locationID, q.Page, q.PageSize, q.SortBy, q.SortOrder)

	var result dto.Paginated[dto.BalanceRow]
	err := uc.cache.GetOrSet(ctx, key, cacheTTL, &result, func() error {
		items, total, err := uc.repo.ListBalancesByLocation(ctx, locationID, q)
		if err != nil {
			return err
		}
		result = *dto.NewPaginated(items, total, q)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (uc *ledgerUseCase) ListBalancesByBatch(ctx context.Context, productBatchID string, q dto.PageQuery) (*dto.Paginated[dto.BalanceRow], error) {
	q.Normalize()
	key := fmt.Sprintf("%sbalances:batch:%s:%d:%d:%s:%s", cachePrefix, productBatchID, q.Page, q.PageSize, q.SortBy, q.SortOrder)

	var result dto.Paginated[dto.BalanceRow]
	err := uc.cache.GetOrSet(ctx, key, cacheTTL, &result, func() error {
		items, total, err := uc.repo.ListBalancesByBatch(ctx, productBatchID, q)
		if err != nil {
			return err
		}
		result = *dto.NewPaginated(items, total, q)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (uc *ledgerUseCase) GetProductStock(ctx context.Context, productID string) (*model.ProductStock, error) {
	return uc.repo.GetProductStock(ctx, productID)
}

func (uc *ledgerUseCase) ListLowStock(ctx context.Context, threshold int64, q dto.PageQuery) (*dto.Paginated[dto.BalanceRow], error) {
	q.Normalize()
	items, total, err := uc.repo.ListLowStock(ctx, threshold, q)
	if err != nil {
		return nil, err
	}
	return dto.NewPaginated(items, total, q), nil
}

func (uc *ledgerUseCase) ListExpiringStock(ctx context.Context, withinDays int, q dto.PageQuery) (*dto.Paginated[dto.BalanceRow], error) {
	q.Normalize()
	if withinDays < 1 {
		withinDays = 30
	}
	items, total, err := uc.repo.ListExpiringStock(ctx, time.Duration(withinDays)*24*time.Hour, q)
	if err != nil {
		return nil, err
	}
	return dto.NewPaginated(items, total, q), nil
}

func (uc *ledgerUseCase) ListFEFOCandidates(ctx context.Context, productID string) ([]model.FEFOCandidate, error) {
	return uc.repo.ListFEFOCandidates(ctx, productID)
}

func (uc *ledgerUseCase) ListMovements(ctx context.Context, f *dto.MovementFilters) (*dto.Paginated[model.StockMovement], error) {
	f.Normalize()
	dateKey := ""
	if f.StartDate != nil {
		dateKey += f.StartDate.UTC().Format(time.RFC3339)
	}
	dateKey += ".."
	if f.EndDate != nil {
		dateKey += f.EndDate.UTC().Format(time.RFC3339)
	}
	key := fmt.Sprintf("%smovements:%s:%s:%s:%s:%d:%d:%s:%s",
		cachePrefix, f.ProductBatchID, f.LocationID, f.MovementType, dateKey, f.Page, f.PageSize, f.SortBy, f.SortOrder)

	var result dto.Paginated[model.StockMovement]
	err := uc.cache.GetOrSet(ctx, key, cacheTTL, &result, func() error {
		movements, err := uc.repo.ListMovements(ctx, f)
		if err != nil {
			return err
		}
		page, total := grouper.Apply(movements, f.SortBy, f.SortOrder, f.Page, f.PageSize)
		result = *dto.NewPaginated(page, total, f.PageQuery)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (uc *ledgerUseCase) AverageUnitCost(ctx context.Context, productID string) (float64, error) {
	return uc.repo.AverageUnitCost(ctx, productID)
}
