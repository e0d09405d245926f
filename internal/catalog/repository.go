package catalog

import (
	"context"

	"github.com/arkava/warehouse-ledger-service/internal/model"
)

// Repository provides the existence lookups the ledger needs before applying
// an operation. Catalog entities are never written through this package.
type Repository interface {
	FindProductBatch(ctx context.Context, id string) (*model.ProductBatch, error)
	FindLocation(ctx context.Context, id string) (*model.Location, error)
	FindUser(ctx context.Context, id string) (*model.User, error)
}
