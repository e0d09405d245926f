package model

import "time"

// Catalog entities are read-only from the ledger's perspective. They are
// owned by other services and consulted only for existence checks, capacity
// ceilings and batch expiry.

type ProductBatch struct {
	ID         string     `db:"id" json:"id"`
	ProductID  string     `db:"product_id" json:"productId"`
	BatchNo    *string    `db:"batch_no" json:"batchNo,omitempty"`
	UnitCost   *float64   `db:"unit_cost" json:"unitCost,omitempty"`
	ExpiryDate *time.Time `db:"expiry_date" json:"expiryDate,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
}

// Expired reports whether the batch's expiry date has passed. Batches
// without an expiry date never expire.
func (b *ProductBatch) Expired(now time.Time) bool {
	return b.ExpiryDate != nil && b.ExpiryDate.Before(now)
}

type Location struct {
	ID          string    `db:"id" json:"id"`
	WarehouseID string    `db:"warehouse_id" json:"warehouseId"`
	Code        string    `db:"code" json:"code"`
	Name        string    `db:"name" json:"name"`
	Capacity    *int64    `db:"capacity" json:"capacity,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

type User struct {
	ID    string `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Email string `db:"email" json:"email"`
}
