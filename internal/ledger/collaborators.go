package ledger

import (
	"context"
	"time"

	"github.com/arkava/warehouse-ledger-service/internal/ledger/dto"
)

// Collaborators consumed by the use case. Their failures are never allowed
// to fail or roll back a ledger transaction that already committed.

// Cache fronts the read-side paginated queries and is invalidated by prefix
// after every successful mutation.
type Cache interface {
	// GetOrSet unmarshals a cached value into dest on a hit; on a miss it
	// runs load (which fills dest), then caches dest under key for ttl.
	GetOrSet(ctx context.Context, key string, ttl time.Duration, dest interface{}, load func() error) error
	InvalidatePrefix(ctx context.Context, prefix string) error
}

// AuditSink records before/after snapshots. Fire-and-forget: implementations
// log their own errors.
type AuditSink interface {
	LogCreate(ctx context.Context, kind string, record interface{})
	LogUpdate(ctx context.Context, kind, id string, before, after interface{})
}

// AlertChecker evaluates low-stock conditions after dispatches and negative
// adjustments. Fire-and-forget.
type AlertChecker interface {
	CheckLowStock(ctx context.Context, snapshot dto.StockSnapshot)
}
