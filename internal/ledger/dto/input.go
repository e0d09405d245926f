package dto

// Inputs for the six mutating ledger operations. Quantities are positive
// integers; the use case rejects anything else before touching the store.

type ReceiveInput struct {
	ProductBatchID string
	LocationID     string
	Quantity       int64
	CreatedByID    *string
	IdempotencyKey *string
	Reference      *string
	Note           *string
}

type DispatchInput struct {
	ProductBatchID string
	LocationID     string
	Quantity       int64
	// ConsumeReservation selects which quantity bucket is debited. It is an
	// explicit caller decision, never inferred from whether a reservation
	// exists: order fulfillment releasing its own reservation sets it, ad-hoc
	// dispatch does not.
	ConsumeReservation bool
	CreatedByID        *string
	IdempotencyKey     *string
	Reference          *string
	Note               *string
}

type AdjustInput struct {
	ProductBatchID string
	LocationID     string
	// AdjustmentQuantity is the signed delta applied to availableQty.
	AdjustmentQuantity int64
	Reason             string
	CreatedByID        *string
	IdempotencyKey     *string
	Note               *string
}

type TransferInput struct {
	ProductBatchID string
	FromLocationID string
	ToLocationID   string
	Quantity       int64
	CreatedByID    *string
	IdempotencyKey *string
	Note           *string
}

type ReserveInput struct {
	ProductBatchID string
	LocationID     string
	Quantity       int64
	OrderID        string
	CreatedByID    *string
	IdempotencyKey *string
	Note           *string
}

type ReleaseInput struct {
	ProductBatchID string
	LocationID     string
	// Quantity nil releases the entire reserved amount.
	Quantity       *int64
	OrderID        string
	CreatedByID    *string
	IdempotencyKey *string
	Note           *string
}
