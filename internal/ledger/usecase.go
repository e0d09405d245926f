package ledger

import (
	"context"

	"github.com/arkava/warehouse-ledger-service/internal/ledger/dto"
	"github.com/arkava/warehouse-ledger-service/internal/model"
)

// UseCase is the inventory ledger service consumed by order workflows,
// reporting and the HTTP layer. Mutations are synchronous, all-or-nothing and
// deduplicated by idempotency key; retries are the caller's responsibility.
type UseCase interface {
	Receive(ctx context.Context, in *dto.ReceiveInput) (*dto.MutationResult, error)
	Dispatch(ctx context.Context, in *dto.DispatchInput) (*dto.MutationResult, error)
	Adjust(ctx context.Context, in *dto.AdjustInput) (*dto.MutationResult, error)
	Transfer(ctx context.Context, in *dto.TransferInput) (*dto.TransferResult, error)
	Reserve(ctx context.Context, in *dto.ReserveInput) (*dto.MutationResult, error)
	Release(ctx context.Context, in *dto.ReleaseInput) (*dto.MutationResult, error)

	GetBalance(ctx context.Context, productBatchID, locationID string) (*model.InventoryBalance, error)
	ListBalancesByLocation(ctx context.Context, locationID string, q dto.PageQuery) (*dto.Paginated[dto.BalanceRow], error)
	ListBalancesByBatch(ctx context.Context, productBatchID string, q dto.PageQuery) (*dto.Paginated[dto.BalanceRow], error)
	GetProductStock(ctx context.Context, productID string) (*model.ProductStock, error)
	ListLowStock(ctx context.Context, threshold int64, q dto.PageQuery) (*dto.Paginated[dto.BalanceRow], error)
	ListExpiringStock(ctx context.Context, withinDays int, q dto.PageQuery) (*dto.Paginated[dto.BalanceRow], error)
	ListFEFOCandidates(ctx context.Context, productID string) ([]model.FEFOCandidate, error)
	ListMovements(ctx context.Context, f *dto.MovementFilters) (*dto.Paginated[model.StockMovement], error)
	AverageUnitCost(ctx context.Context, productID string) (float64, error)
}
