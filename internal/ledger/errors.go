package ledger

import (
	"errors"
	"fmt"
)

// Business rejections. Callers distinguish the available/reserved shortfall
// kinds so "no stock" and "reservation consumed elsewhere" stay separable.
var (
	ErrNotEnoughAvailable = errors.New("not enough available stock")
	ErrNotEnoughReserved  = errors.New("not enough reserved stock")
	ErrBalanceNotFound    = errors.New("inventory balance not found")
	ErrSameLocation       = errors.New("source and destination locations must be different")
	ErrZeroAdjustment     = errors.New("adjustment quantity must not be zero")
	ErrInvalidQuantity    = errors.New("quantity must be a positive integer")
)

// ErrReservedNegative signals that a write would drive reservedQty below
// zero. That can only happen if the conservation invariant is already broken,
// so it is logged critical and surfaced as a server-side failure rather than
// a business rejection.
var ErrReservedNegative = errors.New("reserved quantity would go negative")

// ErrDuplicateKey is returned by the store when a movement insert trips the
// idempotency-key uniqueness constraint. The use case resolves it internally
// by re-querying the winning movement; it never reaches a caller.
var ErrDuplicateKey = errors.New("duplicate idempotency key")

// NotFoundError names a missing referenced entity.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// IsNotFound reports whether err is a missing-entity error of any kind.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf) || errors.Is(err, ErrBalanceNotFound)
}
