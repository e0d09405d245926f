// Package grouper reconstructs paired transfer legs into single logical
// movements for history and report views.
//
// Grouping happens in memory over the rows matching the caller's filters, and
// pagination is applied to the merged list afterwards, because pairing
// reduces the row count non-uniformly. Known caveat: for very large result
// windows a store-side window function would scale better; the in-memory
// pass keeps the pairing semantics trivially auditable.
package grouper

import (
	"sort"

	"github.com/arkava/warehouse-ledger-service/internal/model"
)

// Group pairs transfer_out/transfer_in rows sharing a transfer group id into
// one synthetic movement of type "transfer". The transfer_out leg supplies
// fromLocation, reference and quantity; the transfer_in leg supplies
// toLocation; the earlier createdAt of the two is kept for sort stability.
// Rows without a transfer group id pass through unchanged. Relative order of
// the output is not defined; callers sort afterwards.
func Group(movements []model.StockMovement) []model.StockMovement {
	grouped := make([]model.StockMovement, 0, len(movements))
	pairs := make(map[string][]model.StockMovement)
	order := make([]string, 0)

	for _, m := range movements {
		if m.TransferGroupID == nil {
			grouped = append(grouped, m)
			continue
		}
		gid := *m.TransferGroupID
		if _, ok := pairs[gid]; !ok {
			order = append(order, gid)
		}
		pairs[gid] = append(pairs[gid], m)
	}

	for _, gid := range order {
		grouped = append(grouped, combine(gid, pairs[gid]))
	}
	return grouped
}

// combine folds the legs of one transfer group into a single record. A group
// normally holds exactly two legs; a lone leg (possible when filters exclude
// its counterpart) still yields a usable record from the fields it carries.
func combine(gid string, legs []model.StockMovement) model.StockMovement {
	out := model.StockMovement{
		ID:              gid,
		MovementType:    model.MovementTransfer,
		TransferGroupID: legs[0].TransferGroupID,
	}

	first := true
	for i := range legs {
		leg := legs[i]
		if first || leg.CreatedAt.Before(out.CreatedAt) {
			out.CreatedAt = leg.CreatedAt
			first = false
		}
		out.ProductBatchID = leg.ProductBatchID
		out.Quantity = leg.Quantity
		if leg.CreatedByID != nil {
			out.CreatedByID = leg.CreatedByID
		}
		if leg.Note != nil {
			out.Note = leg.Note
		}
		switch leg.MovementType {
		case model.MovementTransferOut:
			out.FromLocationID = leg.FromLocationID
			out.Reference = leg.Reference
			out.IdempotencyKey = leg.IdempotencyKey
		case model.MovementTransferIn:
			out.ToLocationID = leg.ToLocationID
		}
	}
	return out
}

// Sort orders grouped movements by the given field. Unknown fields fall back
// to createdAt. Ties are broken by id so pagination stays stable.
func Sort(movements []model.StockMovement, sortBy, sortOrder string) {
	desc := sortOrder == "desc"

	less := func(a, b model.StockMovement) bool {
		switch sortBy {
		case "quantity":
			if a.Quantity != b.Quantity {
				return a.Quantity < b.Quantity
			}
		case "movementType":
			if a.MovementType != b.MovementType {
				return a.MovementType < b.MovementType
			}
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		}
		return a.ID < b.ID
	}

	sort.SliceStable(movements, func(i, j int) bool {
		if desc {
			return less(movements[j], movements[i])
		}
		return less(movements[i], movements[j])
	})
}

// Paginate slices one page out of the merged list. page is 1-based.
func Paginate(movements []model.StockMovement, page, pageSize int) []model.StockMovement {
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(movements) {
		return []model.StockMovement{}
	}
	end := start + pageSize
	if end > len(movements) {
		end = len(movements)
	}
	return movements[start:end]
}

// Apply runs the full read-side pipeline: group, sort, paginate. It returns
// the requested page and the total count after grouping.
func Apply(movements []model.StockMovement, sortBy, sortOrder string, page, pageSize int) ([]model.StockMovement, int) {
	grouped := Group(movements)
	Sort(grouped, sortBy, sortOrder)
	return Paginate(grouped, page, pageSize), len(grouped)
}
