package model

import "time"

// Movement types recorded in the stock_movements table. A transfer always
// produces a transfer_out and a transfer_in row sharing one transfer group.
const (
	MovementReceipt     = "receipt"
	MovementDispatch    = "dispatch"
	MovementAdjustment  = "adjustment"
	MovementReservation = "reservation"
	MovementRelease     = "release"
	MovementTransferOut = "transfer_out"
	MovementTransferIn  = "transfer_in"

	// MovementTransfer is the synthetic type of a paired transfer in
	// history views. It never appears in the table itself.
	MovementTransfer = "transfer"
)

type InventoryBalance struct {
	ID             string     `db:"id" json:"id"`
	ProductBatchID string     `db:"product_batch_id" json:"productBatchId"`
	LocationID     string     `db:"location_id" json:"locationId"`
	AvailableQty   int64      `db:"available_qty" json:"availableQty"`
	ReservedQty    int64      `db:"reserved_qty" json:"reservedQty"`
	DeletedAt      *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updatedAt"`
}

// TotalQty is the stored quantity counted against a location's capacity.
func (b *InventoryBalance) TotalQty() int64 {
	return b.AvailableQty + b.ReservedQty
}

type StockMovement struct {
	ID              string    `db:"id" json:"id"`
	ProductBatchID  string    `db:"product_batch_id" json:"productBatchId"`
	FromLocationID  *string   `db:"from_location_id" json:"fromLocationId,omitempty"`
	ToLocationID    *string   `db:"to_location_id" json:"toLocationId,omitempty"`
	Quantity        int64     `db:"quantity" json:"quantity"`
	MovementType    string    `db:"movement_type" json:"movementType"`
	Reference       *string   `db:"reference" json:"reference,omitempty"`
	Note            *string   `db:"note" json:"note,omitempty"`
	CreatedByID     *string   `db:"created_by_id" json:"createdById,omitempty"`
	IdempotencyKey  *string   `db:"idempotency_key" json:"idempotencyKey,omitempty"`
	TransferGroupID *string   `db:"transfer_group_id" json:"transferGroupId,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
}

// FEFOCandidate is one allocatable balance row for a product, annotated for
// order fulfillment. Ordered nearest-expiry first by the repository query.
type FEFOCandidate struct {
	ProductBatchID string     `db:"product_batch_id" json:"productBatchId"`
	BatchNo        *string    `db:"batch_no" json:"batchNo,omitempty"`
	LocationID     string     `db:"location_id" json:"locationId"`
	LocationName   string     `db:"location_name" json:"locationName"`
	AvailableQty   int64      `db:"available_qty" json:"availableQty"`
	ExpiryDate     *time.Time `db:"expiry_date" json:"expiryDate,omitempty"`
}

// ProductStock is the global per-product aggregate across all batches and
// locations.
type ProductStock struct {
	ProductID    string `db:"product_id" json:"productId"`
	AvailableQty int64  `db:"available_qty" json:"availableQty"`
	ReservedQty  int64  `db:"reserved_qty" json:"reservedQty"`
}
