package dto

import (
	"time"

	"github.com/arkava/warehouse-ledger-service/internal/model"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageQuery carries pagination and sorting for the read-side operations.
type PageQuery struct {
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Normalize clamps the query into its valid range: page >= 1, pageSize in
// 1..100, sortOrder asc or desc.
func (q *PageQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	if q.SortOrder != "asc" && q.SortOrder != "desc" {
		q.SortOrder = "desc"
	}
}

// Offset is the row offset for store-side pagination.
func (q *PageQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

type MovementFilters struct {
	ProductBatchID string
	LocationID     string
	// MovementType filters by logical type; "transfer" matches both
	// underlying transfer legs before grouping.
	MovementType string
	StartDate    *time.Time
	EndDate      *time.Time
	PageQuery
}

// MutationResult is the outcome of a single-leg mutating operation. A
// deduplicated replay carries Idempotent=true and the original movement; the
// balance is omitted because the replay performed no write.
type MutationResult struct {
	Success    bool                    `json:"success"`
	Idempotent bool                    `json:"idempotent,omitempty"`
	Inventory  *model.InventoryBalance `json:"inventory,omitempty"`
	Movement   *model.StockMovement    `json:"movement"`
	Warnings   []string                `json:"warnings,omitempty"`
}

// TransferResult is the outcome of a transfer: two balances and the two legs
// sharing one transfer group id.
type TransferResult struct {
	Success       bool                    `json:"success"`
	Idempotent    bool                    `json:"idempotent,omitempty"`
	FromInventory *model.InventoryBalance `json:"fromInventory,omitempty"`
	ToInventory   *model.InventoryBalance `json:"toInventory,omitempty"`
	TransferOut   *model.StockMovement    `json:"transferOut"`
	TransferIn    *model.StockMovement    `json:"transferIn,omitempty"`
}

// BalanceRow is a balance annotated with catalog context for listings.
type BalanceRow struct {
	model.InventoryBalance
	ProductID    string     `db:"product_id" json:"productId"`
	BatchNo      *string    `db:"batch_no" json:"batchNo,omitempty"`
	ExpiryDate   *time.Time `db:"expiry_date" json:"expiryDate,omitempty"`
	LocationCode string     `db:"location_code" json:"locationCode"`
	LocationName string     `db:"location_name" json:"locationName"`
}

// Paginated wraps a page of results with its total count.
type Paginated[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
}

func NewPaginated[T any](items []T, total int, q PageQuery) *Paginated[T] {
	pages := total / q.PageSize
	if total%q.PageSize != 0 {
		pages++
	}
	return &Paginated[T]{
		Items:      items,
		Total:      total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: pages,
	}
}

// StockSnapshot is handed to the alert checker after stock-decreasing
// operations.
type StockSnapshot struct {
	ProductBatchID string `json:"productBatchId"`
	LocationID     string `json:"locationId"`
	AvailableQty   int64  `json:"availableQty"`
}
