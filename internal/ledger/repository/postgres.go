package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/arkava/warehouse-ledger-service/internal/ledger"
	"github.com/arkava/warehouse-ledger-service/internal/ledger/capacity"
	"github.com/arkava/warehouse-ledger-service/internal/ledger/dto"
	"github.com/arkava/warehouse-ledger-service/internal/model"
)

// PGRepository is the transactional ledger store. Each mutating method runs
// one BeginTxx transaction: balance rows are locked with FOR UPDATE, the
// capacity guard runs against the location row locked in the same
// transaction, and the movement insert shares the transaction so balance and
// history commit or roll back together.
type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) ledger.Repository {
	return &PGRepository{DB: db}
}

const pgUniqueViolation = "23505"

// isDuplicateKey recognizes the store-level uniqueness violation without
// string-matching error messages.
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func (r *PGRepository) FindMovementByKey(ctx context.Context, key string) (*model.StockMovement, error) {
	var m model.StockMovement
	err := r.DB.GetContext(ctx, &m,
		`SELECT * FROM stock_movements WHERE idempotency_key = $1`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *PGRepository) FindBalance(ctx context.Context, productBatchID, locationID string) (*model.InventoryBalance, error) {
	var b model.InventoryBalance
	err := r.DB.GetContext(ctx, &b,
		`SELECT * FROM inventory_balances
		 WHERE product_batch_id = $1 AND location_id = $2 AND deleted_at IS NULL`,
		productBatchID, locationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

// lockBalance reads the balance row under FOR UPDATE so concurrent writers on
// the same (batch, location) key serialize for the rest of the transaction.
func lockBalance(ctx context.Context, tx *sqlx.Tx, productBatchID, locationID string) (*model.InventoryBalance, error) {
	var b model.InventoryBalance
	err := tx.GetContext(ctx, &b,
		`SELECT * FROM inventory_balances
		 WHERE product_batch_id = $1 AND location_id = $2 AND deleted_at IS NULL
		 FOR UPDATE`,
		productBatchID, locationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

// guardCapacity locks the location row, which serializes all concurrent
// balance-increasing transactions on that location, then checks the projected
// stored total. Must run before the write it protects, in the same
// transaction.
func guardCapacity(ctx context.Context, tx *sqlx.Tx, locationID string, incoming int64) error {
	var limit sql.NullInt64
	err := tx.GetContext(ctx, &limit,
		`SELECT capacity FROM locations WHERE id = $1 FOR UPDATE`, locationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &ledger.NotFoundError{Kind: "Location", ID: locationID}
		}
		return err
	}
	if !limit.Valid {
		return nil
	}

	var stored int64
	err = tx.GetContext(ctx, &stored,
		`SELECT COALESCE(SUM(available_qty + reserved_qty), 0)
		 FROM inventory_balances
		 WHERE location_id = $1 AND deleted_at IS NULL`, locationID)
	if err != nil {
		return err
	}
	return capacity.Check(locationID, &limit.Int64, stored, incoming)
}

// upsertBalanceAdd atomically adds qty to availableQty, creating the row on
// first movement for the key. Resurrects a soft-deleted row.
func upsertBalanceAdd(ctx context.Context, tx *sqlx.Tx, productBatchID, locationID string, qty int64, now time.Time) (*model.InventoryBalance, error) {
	var b model.InventoryBalance
	err := tx.GetContext(ctx, &b, `
		INSERT INTO inventory_balances (id, product_batch_id, location_id, available_qty, reserved_qty, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5)
		ON CONFLICT (product_batch_id, location_id)
		DO UPDATE SET
			available_qty = inventory_balances.available_qty + EXCLUDED.available_qty,
			deleted_at = NULL,
			updated_at = EXCLUDED.updated_at
		RETURNING *`,
		uuid.New().String(), productBatchID, locationID, qty, now)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func setBalance(ctx context.Context, tx *sqlx.Tx, id string, available, reserved int64, now time.Time) (*model.InventoryBalance, error) {
	var b model.InventoryBalance
	err := tx.GetContext(ctx, &b, `
		UPDATE inventory_balances
		SET available_qty = $2, reserved_qty = $3, updated_at = $4
		WHERE id = $1
		RETURNING *`,
		id, available, reserved, now)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func insertMovement(ctx context.Context, tx *sqlx.Tx, m *model.StockMovement) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO stock_movements (
			id, product_batch_id, from_location_id, to_location_id, quantity,
			movement_type, reference, note, created_by_id, idempotency_key,
			transfer_group_id, created_at
		) VALUES (
			:id, :product_batch_id, :from_location_id, :to_location_id, :quantity,
			:movement_type, :reference, :note, :created_by_id, :idempotency_key,
			:transfer_group_id, :created_at
		)`, m)
	if err != nil {
		if isDuplicateKey(err) {
			return ledger.ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (r *PGRepository) ReceiveTx(ctx context.Context, in *dto.ReceiveInput) (*model.InventoryBalance, *model.StockMovement, error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	if err := guardCapacity(ctx, tx, in.LocationID, in.Quantity); err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	bal, err := upsertBalanceAdd(ctx, tx, in.ProductBatchID, in.LocationID, in.Quantity, now)
	if err != nil {
		return nil, nil, err
	}

	movement := &model.StockMovement{
		ID:             uuid.New().String(),
		ProductBatchID: in.ProductBatchID,
		ToLocationID:   &in.LocationID,
		Quantity:       in.Quantity,
		MovementType:   model.MovementReceipt,
		Reference:      in.Reference,
		Note:           in.Note,
		CreatedByID:    in.CreatedByID,
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      now,
	}
	if err := insertMovement(ctx, tx, movement); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return bal, movement, nil
}

func (r *PGRepository) DispatchTx(ctx context.Context, in *dto.DispatchInput) (*model.InventoryBalance, *model.StockMovement, error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	bal, err := lockBalance(ctx, tx, in.ProductBatchID, in.LocationID)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	var available, reserved int64
	if in.ConsumeReservation {
		if bal == nil || bal.ReservedQty < in.Quantity {
			return nil, nil, ledger.ErrNotEnoughReserved
		}
		// reserved covers the quantity, so a total shortfall means available
		// is already negative: a broken conservation invariant, not a
		// business rejection.
		if bal.AvailableQty < 0 || bal.TotalQty() < in.Quantity {
			return nil, nil, ledger.ErrReservedNegative
		}
		available, reserved = bal.AvailableQty, bal.ReservedQty-in.Quantity
	} else {
		if bal == nil || bal.AvailableQty < in.Quantity {
			return nil, nil, ledger.ErrNotEnoughAvailable
		}
		available, reserved = bal.AvailableQty-in.Quantity, bal.ReservedQty
	}

	updated, err := setBalance(ctx, tx, bal.ID, available, reserved, now)
	if err != nil {
		return nil, nil, err
	}

	movement := &model.StockMovement{
		ID:             uuid.New().String(),
		ProductBatchID: in.ProductBatchID,
		FromLocationID: &in.LocationID,
		Quantity:       in.Quantity,
		MovementType:   model.MovementDispatch,
		Reference:      in.Reference,
		Note:           in.Note,
		CreatedByID:    in.CreatedByID,
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      now,
	}
	if err := insertMovement(ctx, tx, movement); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return updated, movement, nil
}

func (r *PGRepository) AdjustTx(ctx context.Context, in *dto.AdjustInput) (*model.InventoryBalance, *model.StockMovement, error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	if in.AdjustmentQuantity > 0 {
		if err := guardCapacity(ctx, tx, in.LocationID, in.AdjustmentQuantity); err != nil {
			return nil, nil, err
		}
	}

	bal, err := lockBalance(ctx, tx, in.ProductBatchID, in.LocationID)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	var updated *model.InventoryBalance
	if bal == nil {
		if in.AdjustmentQuantity < 0 {
			return nil, nil, ledger.ErrNotEnoughAvailable
		}
		updated, err = upsertBalanceAdd(ctx, tx, in.ProductBatchID, in.LocationID, in.AdjustmentQuantity, now)
	} else {
		newAvailable := bal.AvailableQty + in.AdjustmentQuantity
		if newAvailable < 0 {
			return nil, nil, ledger.ErrNotEnoughAvailable
		}
		updated, err = setBalance(ctx, tx, bal.ID, newAvailable, bal.ReservedQty, now)
	}
	if err != nil {
		return nil, nil, err
	}

	reason := in.Reason
	movement := &model.StockMovement{
		ID:             uuid.New().String(),
		ProductBatchID: in.ProductBatchID,
		ToLocationID:   &in.LocationID,
		Quantity:       in.AdjustmentQuantity,
		MovementType:   model.MovementAdjustment,
		Reference:      &reason,
		Note:           in.Note,
		CreatedByID:    in.CreatedByID,
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      now,
	}
	if err := insertMovement(ctx, tx, movement); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return updated, movement, nil
}

func (r *PGRepository) TransferTx(ctx context.Context, in *dto.TransferInput) (*ledger.TransferRecords, error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := guardCapacity(ctx, tx, in.ToLocationID, in.Quantity); err != nil {
		return nil, err
	}

	source, err := lockBalance(ctx, tx, in.ProductBatchID, in.FromLocationID)
	if err != nil {
		return nil, err
	}
	if source == nil || source.AvailableQty < in.Quantity {
		return nil, ledger.ErrNotEnoughAvailable
	}

	now := time.Now().UTC()
	fromBal, err := setBalance(ctx, tx, source.ID, source.AvailableQty-in.Quantity, source.ReservedQty, now)
	if err != nil {
		return nil, err
	}
	toBal, err := upsertBalanceAdd(ctx, tx, in.ProductBatchID, in.ToLocationID, in.Quantity, now)
	if err != nil {
		return nil, err
	}

	// One transfer group links the two legs. The idempotency key rides on
	// the transfer_out leg only, since the store enforces global uniqueness
	// per movement row.
	groupID := uuid.New().String()
	out := &model.StockMovement{
		ID:              uuid.New().String(),
		ProductBatchID:  in.ProductBatchID,
		FromLocationID:  &in.FromLocationID,
		Quantity:        in.Quantity,
		MovementType:    model.MovementTransferOut,
		Note:            in.Note,
		CreatedByID:     in.CreatedByID,
		IdempotencyKey:  in.IdempotencyKey,
		TransferGroupID: &groupID,
		CreatedAt:       now,
	}
	if err := insertMovement(ctx, tx, out); err != nil {
		return nil, err
	}

	inMov := &model.StockMovement{
		ID:              uuid.New().String(),
		ProductBatchID:  in.ProductBatchID,
		ToLocationID:    &in.ToLocationID,
		Quantity:        in.Quantity,
		MovementType:    model.MovementTransferIn,
		Note:            in.Note,
		CreatedByID:     in.CreatedByID,
		TransferGroupID: &groupID,
		CreatedAt:       now,
	}
	if err := insertMovement(ctx, tx, inMov); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &ledger.TransferRecords{
		FromInventory: fromBal,
		ToInventory:   toBal,
		TransferOut:   out,
		TransferIn:    inMov,
	}, nil
}

func (r *PGRepository) ReserveTx(ctx context.Context, in *dto.ReserveInput) (*model.InventoryBalance, *model.StockMovement, error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	bal, err := lockBalance(ctx, tx, in.ProductBatchID, in.LocationID)
	if err != nil {
		return nil, nil, err
	}
	if bal == nil || bal.AvailableQty < in.Quantity {
		return nil, nil, ledger.ErrNotEnoughAvailable
	}

	now := time.Now().UTC()
	updated, err := setBalance(ctx, tx, bal.ID, bal.AvailableQty-in.Quantity, bal.ReservedQty+in.Quantity, now)
	if err != nil {
		return nil, nil, err
	}

	orderID := in.OrderID
	movement := &model.StockMovement{
		ID:             uuid.New().String(),
		ProductBatchID: in.ProductBatchID,
		ToLocationID:   &in.LocationID,
		Quantity:       in.Quantity,
		MovementType:   model.MovementReservation,
		Reference:      &orderID,
		Note:           in.Note,
		CreatedByID:    in.CreatedByID,
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      now,
	}
	if err := insertMovement(ctx, tx, movement); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return updated, movement, nil
}

func (r *PGRepository) ReleaseTx(ctx context.Context, in *dto.ReleaseInput) (*model.InventoryBalance, *model.StockMovement, error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	bal, err := lockBalance(ctx, tx, in.ProductBatchID, in.LocationID)
	if err != nil {
		return nil, nil, err
	}
	if bal == nil {
		return nil, nil, ledger.ErrBalanceNotFound
	}

	qty := bal.ReservedQty
	if in.Quantity != nil {
		qty = *in.Quantity
	}
	if bal.ReservedQty < qty {
		return nil, nil, ledger.ErrNotEnoughReserved
	}

	now := time.Now().UTC()
	updated, err := setBalance(ctx, tx, bal.ID, bal.AvailableQty+qty, bal.ReservedQty-qty, now)
	if err != nil {
		return nil, nil, err
	}

	orderID := in.OrderID
	movement := &model.StockMovement{
		ID:             uuid.New().String(),
		ProductBatchID: in.ProductBatchID,
		FromLocationID: &in.LocationID,
		Quantity:       qty,
		MovementType:   model.MovementRelease,
		Reference:      &orderID,
		Note:           in.Note,
		CreatedByID:    in.CreatedByID,
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      now,
	}
	if err := insertMovement(ctx, tx, movement); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return updated, movement, nil
}

// balanceSortColumns whitelists the sortable fields of balance listings.
var balanceSortColumns = map[string]string{
	"updatedAt":    "b.updated_at",
	"availableQty": "b.available_qty",
	"reservedQty":  "b.reserved_qty",
	"batchNo":      "pb.batch_no",
	"expiryDate":   "pb.expiry_date",
	"locationCode": "l.code",
}

const balanceSelect = `
	SELECT b.id, b.product_batch_id, b.location_id, b.available_qty, b.reserved_qty,
	       b.deleted_at, b.updated_at,
	       pb.product_id, pb.batch_no, pb.expiry_date,
	       l.code AS location_code, l.name AS location_name
	FROM inventory_balances b
	JOIN product_batches pb ON pb.id = b.product_batch_id
	JOIN locations l ON l.id = b.location_id`

func (r *PGRepository) listBalances(ctx context.Context, where string, args []interface{}, q dto.PageQuery) ([]dto.BalanceRow, int, error) {
	var count int
	countQuery := `SELECT count(*) FROM inventory_balances b
		JOIN product_batches pb ON pb.id = b.product_batch_id
		JOIN locations l ON l.id = b.location_id ` + where
	if err := r.DB.GetContext(ctx, &count, countQuery, args...); err != nil {
		return nil, 0, err
	}

	col, ok := balanceSortColumns[q.SortBy]
	if !ok {
		col = "b.updated_at"
	}
	dir := "DESC"
	if q.SortOrder == "asc" {
		dir = "ASC"
	}

	query := fmt.Sprintf("%s %s ORDER BY %s %s LIMIT %d OFFSET %d",
		balanceSelect, where, col, dir, q.PageSize, q.Offset())

	items := []dto.BalanceRow{}
	if err := r.DB.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, err
	}
	return items, count, nil
}

func (r *PGRepository) ListBalancesByLocation(ctx context.Context, locationID string, q dto.PageQuery) ([]dto.BalanceRow, int, error) {
	return r.listBalances(ctx,
		`WHERE b.location_id = $1 AND b.deleted_at IS NULL`,
		[]interface{}{locationID}, q)
}

func (r *PGRepository) ListBalancesByBatch(ctx context.Context, productBatchID string, q dto.PageQuery) ([]dto.BalanceRow, int, error) {
	return r.listBalances(ctx,
		`WHERE b.product_batch_id = $1 AND b.deleted_at IS NULL`,
		[]interface{}{productBatchID}, q)
}

func (r *PGRepository) GetProductStock(ctx context.Context, productID string) (*model.ProductStock, error) {
	var stock model.ProductStock
	err := r.DB.GetContext(ctx, &stock, `
		SELECT pb.product_id,
		       COALESCE(SUM(b.available_qty), 0) AS available_qty,
		       COALESCE(SUM(b.reserved_qty), 0) AS reserved_qty
		FROM product_batches pb
		LEFT JOIN inventory_balances b ON b.product_batch_id = pb.id AND b.deleted_at IS NULL
		WHERE pb.product_id = $1
		GROUP BY pb.product_id`, productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &ledger.NotFoundError{Kind: "Product", ID: productID}
		}
		return nil, err
	}
	return &stock, nil
}

func (r *PGRepository) ListLowStock(ctx context.Context, threshold int64, q dto.PageQuery) ([]dto.BalanceRow, int, error) {
	return r.listBalances(ctx,
		`WHERE (b.available_qty + b.reserved_qty) <= $1 AND b.deleted_at IS NULL`,
		[]interface{}{threshold}, q)
}

func (r *PGRepository) ListExpiringStock(ctx context.Context, within time.Duration, q dto.PageQuery) ([]dto.BalanceRow, int, error) {
	cutoff := time.Now().UTC().Add(within)
	return r.listBalances(ctx,
		`WHERE pb.expiry_date IS NOT NULL AND pb.expiry_date <= $1
		 AND b.available_qty > 0 AND b.deleted_at IS NULL`,
		[]interface{}{cutoff}, q)
}

func (r *PGRepository) ListFEFOCandidates(ctx context.Context, productID string) ([]model.FEFOCandidate, error) {
	candidates := []model.FEFOCandidate{}
	err := r.DB.SelectContext(ctx, &candidates, `
		SELECT b.product_batch_id, pb.batch_no, b.location_id, l.name AS location_name,
		       b.available_qty, pb.expiry_date
		FROM inventory_balances b
		JOIN product_batches pb ON pb.id = b.product_batch_id
		JOIN locations l ON l.id = b.location_id
		WHERE pb.product_id = $1
		  AND b.available_qty > 0
		  AND b.deleted_at IS NULL
		  AND (pb.expiry_date IS NULL OR pb.expiry_date > NOW())
		ORDER BY pb.expiry_date ASC NULLS LAST, pb.batch_no ASC`, productID)
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

func (r *PGRepository) ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.StockMovement, error) {
	conditions := []string{}
	args := map[string]interface{}{}

	if f.ProductBatchID != "" {
		conditions = append(conditions, "product_batch_id = :product_batch_id")
		args["product_batch_id"] = f.ProductBatchID
	}
	if f.LocationID != "" {
		conditions = append(conditions, "(from_location_id = :location_id OR to_location_id = :location_id)")
		args["location_id"] = f.LocationID
	}
	if f.MovementType != "" {
		// The logical type "transfer" matches both underlying legs so
		// grouping sees complete pairs.
		if f.MovementType == model.MovementTransfer {
			conditions = append(conditions, "movement_type IN ('transfer_out', 'transfer_in')")
		} else {
			conditions = append(conditions, "movement_type = :movement_type")
			args["movement_type"] = f.MovementType
		}
	}
	if f.StartDate != nil {
		conditions = append(conditions, "created_at >= :start_date")
		args["start_date"] = *f.StartDate
	}
	if f.EndDate != nil {
		conditions = append(conditions, "created_at <= :end_date")
		args["end_date"] = *f.EndDate
	}

	query := "SELECT * FROM stock_movements"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	nstmt, err := r.DB.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer nstmt.Close()

	movements := []model.StockMovement{}
	if err := nstmt.SelectContext(ctx, &movements, args); err != nil {
		return nil, err
	}
	return movements, nil
}

func (r *PGRepository) AverageUnitCost(ctx context.Context, productID string) (float64, error) {
	var avg sql.NullFloat64
	err := r.DB.GetContext(ctx, &avg, `
		SELECT SUM(b.available_qty * pb.unit_cost) / NULLIF(SUM(b.available_qty), 0)
		FROM inventory_balances b
		JOIN product_batches pb ON pb.id = b.product_batch_id
		WHERE pb.product_id = $1 AND pb.unit_cost IS NOT NULL AND b.deleted_at IS NULL`,
		productID)
	if err != nil {
		return 0, err
	}
	if !avg.Valid {
		return 0, nil
	}
	return avg.Float64, nil
}
