package ledger

import (
	"context"
	"time"

	"github.com/arkava/warehouse-ledger-service/internal/ledger/dto"
	"github.com/arkava/warehouse-ledger-service/internal/model"
)

// TransferRecords is what the store hands back from one committed transfer
// transaction.
type TransferRecords struct {
	FromInventory *model.InventoryBalance
	ToInventory   *model.InventoryBalance
	TransferOut   *model.StockMovement
	TransferIn    *model.StockMovement
}

// Repository is the ledger store. Every *Tx method runs as one transaction:
// it re-reads current balances under row locks, applies the capacity guard
// where quantity at a location increases, writes the new balance and the
// movement row(s), and commits. A movement insert that trips the
// idempotency-key uniqueness constraint surfaces as ErrDuplicateKey.
//
// These methods are the only writers of inventory_balances and
// stock_movements.
type Repository interface {
	FindMovementByKey(ctx context.Context, key string) (*model.StockMovement, error)
	FindBalance(ctx context.Context, productBatchID, locationID string) (*model.InventoryBalance, error)

	ReceiveTx(ctx context.Context, in *dto.ReceiveInput) (*model.InventoryBalance, *model.StockMovement, error)
	DispatchTx(ctx context.Context, in *dto.DispatchInput) (*model.InventoryBalance, *model.StockMovement, error)
	AdjustTx(ctx context.Context, in *dto.AdjustInput) (*model.InventoryBalance, *model.StockMovement, error)
	TransferTx(ctx context.Context, in *dto.TransferInput) (*TransferRecords, error)
	ReserveTx(ctx context.Context, in *dto.ReserveInput) (*model.InventoryBalance, *model.StockMovement, error)
	ReleaseTx(ctx context.Context, in *dto.ReleaseInput) (*model.InventoryBalance, *model.StockMovement, error)

	ListBalancesByLocation(ctx context.Context, locationID string, q dto.PageQuery) ([]dto.BalanceRow, int, error)
	ListBalancesByBatch(ctx context.Context, productBatchID string, q dto.PageQuery) ([]dto.BalanceRow, int, error)
	GetProductStock(ctx context.Context, productID string) (*model.ProductStock, error)
	ListLowStock(ctx context.Context, threshold int64, q dto.PageQuery) ([]dto.BalanceRow, int, error)
	ListExpiringStock(ctx context.Context, within time.Duration, q dto.PageQuery) ([]dto.BalanceRow, int, error)
	ListFEFOCandidates(ctx context.Context, productID string) ([]model.FEFOCandidate, error)

	// ListMovements returns all rows matching the filters, unpaginated;
	// grouping and pagination happen in memory on the read side.
	ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.StockMovement, error)

	AverageUnitCost(ctx context.Context, productID string) (float64, error)
}
