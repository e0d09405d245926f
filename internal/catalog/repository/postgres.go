package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/arkava/warehouse-ledger-service/internal/catalog"
	"github.com/arkava/warehouse-ledger-service/internal/ledger"
	"github.com/arkava/warehouse-ledger-service/internal/model"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) catalog.Repository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) FindProductBatch(ctx context.Context, id string) (*model.ProductBatch, error) {
	var batch model.ProductBatch
	err := r.DB.GetContext(ctx, &batch,
		`SELECT id, product_id, batch_no, unit_cost, expiry_date, created_at FROM product_batches WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &ledger.NotFoundError{Kind: "ProductBatch", ID: id}
		}
		return nil, err
	}
	return &batch, nil
}

func (r *PGRepository) FindLocation(ctx context.Context, id string) (*model.Location, error) {
	var loc model.Location
	err := r.DB.GetContext(ctx, &loc,
		`SELECT id, warehouse_id, code, name, capacity, created_at FROM locations WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &ledger.NotFoundError{Kind: "Location", ID: id}
		}
		return nil, err
	}
	return &loc, nil
}

func (r *PGRepository) FindUser(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.DB.GetContext(ctx, &user,
		`SELECT id, name, email FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &ledger.NotFoundError{Kind: "User", ID: id}
		}
		return nil, err
	}
	return &user, nil
}
