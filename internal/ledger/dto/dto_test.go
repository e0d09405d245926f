package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageQueryNormalize(t *testing.T) {
	tests := []struct {
		name     string
		in       PageQuery
		wantPage int
		wantSize int
	}{
		{"zero values", PageQuery{}, 1, DefaultPageSize},
		{"negative page", PageQuery{Page: -3, PageSize: 10}, 1, 10},
		{"oversized page size", PageQuery{Page: 2, PageSize: 500}, 2, MaxPageSize},
		{"in range", PageQuery{Page: 4, PageSize: 50}, 4, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.Normalize()
			assert.Equal(t, tt.wantPage, tt.in.Page)
			assert.Equal(t, tt.wantSize, tt.in.PageSize)
		})
	}
}

func TestPageQueryNormalizeSortOrder(t *testing.T) {
	q := PageQuery{SortOrder: "sideways"}
	q.Normalize()
	assert.Equal(t, "desc", q.SortOrder)

	q = PageQuery{SortOrder: "asc"}
	q.Normalize()
	assert.Equal(t, "asc", q.SortOrder)
}

func TestPageQueryOffset(t *testing.T) {
	q := PageQuery{Page: 3, PageSize: 25}
	assert.Equal(t, 50, q.Offset())
}

func TestNewPaginatedTotalPages(t *testing.T) {
	q := PageQuery{Page: 1, PageSize: 20}
	p := NewPaginated([]int{1, 2, 3}, 41, q)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 41, p.Total)

	p = NewPaginated([]int{}, 40, q)
	assert.Equal(t, 2, p.TotalPages)
}
