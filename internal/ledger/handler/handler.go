package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arkava/warehouse-ledger-service/internal/ledger"
	"github.com/arkava/warehouse-ledger-service/internal/ledger/capacity"
	"github.com/arkava/warehouse-ledger-service/internal/ledger/dto"
	"github.com/arkava/warehouse-ledger-service/pkg/logger"
)

type LedgerHandler struct {
	uc     ledger.UseCase
	logger logger.Logger
}

func NewLedgerHandler(uc ledger.UseCase, log logger.Logger) *LedgerHandler {
	return &LedgerHandler{uc: uc, logger: log}
}

// RegisterRoutes mounts the ledger API under the given group.
func (h *LedgerHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/receive", h.Receive)
	r.POST("/dispatch", h.Dispatch)
	r.POST("/adjust", h.Adjust)
	r.POST("/transfer", h.Transfer)
	r.POST("/reserve", h.Reserve)
	r.POST("/release", h.Release)

	r.GET("/balances/:batchId/:locationId", h.GetBalance)
	r.GET("/locations/:locationId/balances", h.ListBalancesByLocation)
	r.GET("/batches/:batchId/balances", h.ListBalancesByBatch)
	r.GET("/products/:productId/stock", h.GetProductStock)
	r.GET("/products/:productId/fefo", h.ListFEFOCandidates)
	r.GET("/products/:productId/average-cost", h.AverageUnitCost)
	r.GET("/low-stock", h.ListLowStock)
	r.GET("/expiring", h.ListExpiringStock)
	r.GET("/movements", h.ListMovements)
}

// writeError maps domain errors onto HTTP statuses. Integrity violations are
// 500s so they page; everything a caller can fix is a 4xx.
func (h *LedgerHandler) writeError(c *gin.Context, err error) {
	var exceeded *capacity.ExceededError
	switch {
	case ledger.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &exceeded):
		c.JSON(http.StatusConflict, gin.H{
			"error":         exceeded.Error(),
			"locationId":    exceeded.LocationID,
			"capacity":      exceeded.Capacity,
			"currentStored": exceeded.CurrentStored,
			"requested":     exceeded.Requested,
		})
	case errors.Is(err, ledger.ErrNotEnoughAvailable),
		errors.Is(err, ledger.ErrNotEnoughReserved):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrInvalidQuantity),
		errors.Is(err, ledger.ErrZeroAdjustment),
		errors.Is(err, ledger.ErrSameLocation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Ledger operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

type receiveRequest struct {
	ProductBatchID string  `json:"productBatchId" binding:"required"`
	LocationID     string  `json:"locationId" binding:"required"`
	Quantity       int64   `json:"quantity" binding:"required"`
	CreatedByID    *string `json:"createdById"`
	IdempotencyKey *string `json:"idempotencyKey"`
	Reference      *string `json:"reference"`
	Note           *string `json:"note"`
}

func (h *LedgerHandler) Receive(c *gin.Context) {
	var req receiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.uc.Receive(c.Request.Context(), &dto.ReceiveInput{
		ProductBatchID: req.ProductBatchID,
		LocationID:     req.LocationID,
		Quantity:       req.Quantity,
		CreatedByID:    req.CreatedByID,
		IdempotencyKey: idempotencyKey(c, req.IdempotencyKey),
		Reference:      req.Reference,
		Note:           req.Note,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(statusFor(res.Idempotent), res)
}

type dispatchRequest struct {
	ProductBatchID     string  `json:"productBatchId" binding:"required"`
	LocationID         string  `json:"locationId" binding:"required"`
	Quantity           int64   `json:"quantity" binding:"required"`
	ConsumeReservation bool    `json:"consumeReservation"`
	CreatedByID        *string `json:"createdById"`
	IdempotencyKey     *string `json:"idempotencyKey"`
	Reference          *string `json:"reference"`
	Note               *string `json:"note"`
}

func (h *LedgerHandler) Dispatch(c *gin.Context) {
	var req dispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.uc.Dispatch(c.Request.Context(), &dto.DispatchInput{
		ProductBatchID:     req.ProductBatchID,
		LocationID:         req.LocationID,
		Quantity:           req.Quantity,
		ConsumeReservation: req.ConsumeReservation,
		CreatedByID:        req.CreatedByID,
		IdempotencyKey:     idempotencyKey(c, req.IdempotencyKey),
		Reference:          req.Reference,
		Note:               req.Note,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(statusFor(res.Idempotent), res)
}

type adjustRequest struct {
	ProductBatchID     string  `json:"productBatchId" binding:"required"`
	LocationID         string  `json:"locationId" binding:"required"`
	AdjustmentQuantity int64   `json:"adjustmentQuantity" binding:"required"`
	Reason             string  `json:"reason" binding:"required"`
	CreatedByID        *string `json:"createdById"`
	IdempotencyKey     *string `json:"idempotencyKey"`
	Note               *string `json:"note"`
}

func (h *LedgerHandler) Adjust(c *gin.Context) {
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.uc.Adjust(c.Request.Context(), &dto.AdjustInput{
		ProductBatchID:     req.ProductBatchID,
		LocationID:         req.LocationID,
		AdjustmentQuantity: req.AdjustmentQuantity,
		Reason:             req.Reason,
		CreatedByID:        req.CreatedByID,
		IdempotencyKey:     idempotencyKey(c, req.IdempotencyKey),
		Note:               req.Note,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(statusFor(res.Idempotent), res)
}

type transferRequest struct {
	ProductBatchID string  `json:"productBatchId" binding:"required"`
	FromLocationID string  `json:"fromLocationId" binding:"required"`
	ToLocationID   string  `json:"toLocationId" binding:"required"`
	Quantity       int64   `json:"quantity" binding:"required"`
	CreatedByID    *string `json:"createdById"`
	IdempotencyKey *string `json:"idempotencyKey"`
	Note           *string `json:"note"`
}

func (h *LedgerHandler) Transfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.uc.Transfer(c.Request.Context(), &dto.TransferInput{
		ProductBatchID: req.ProductBatchID,
		FromLocationID: req.FromLocationID,
		ToLocationID:   req.ToLocationID,
		Quantity:       req.Quantity,
		CreatedByID:    req.CreatedByID,
		IdempotencyKey: idempotencyKey(c, req.IdempotencyKey),
		Note:           req.Note,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(statusFor(res.Idempotent), res)
}

type reserveRequest struct {
	ProductBatchID string  `json:"productBatchId" binding:"required"`
	LocationID     string  `json:"locationId" binding:"required"`
	Quantity       int64   `json:"quantity" binding:"required"`
	OrderID        string  `json:"orderId" binding:"required"`
	CreatedByID    *string `json:"createdById"`
	IdempotencyKey *string `json:"idempotencyKey"`
	Note           *string `json:"note"`
}

func (h *LedgerHandler) Reserve(c *gin.Context) {
	var req reserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.uc.Reserve(c.Request.Context(), &dto.ReserveInput{
		ProductBatchID: req.ProductBatchID,
		LocationID:     req.LocationID,
		Quantity:       req.Quantity,
		OrderID:        req.OrderID,
		CreatedByID:    req.CreatedByID,
		IdempotencyKey: idempotencyKey(c, req.IdempotencyKey),
		Note:           req.Note,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(statusFor(res.Idempotent), res)
}

type releaseRequest struct {
	ProductBatchID string  `json:"productBatchId" binding:"required"`
	LocationID     string  `json:"locationId" binding:"required"`
	Quantity       *int64  `json:"quantity"`
	OrderID        string  `json:"orderId" binding:"required"`
	CreatedByID    *string `json:"createdById"`
	IdempotencyKey *string `json:"idempotencyKey"`
	Note           *string `json:"note"`
}

func (h *LedgerHandler) Release(c *gin.Context) {
	var req releaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.uc.Release(c.Request.Context(), &dto.ReleaseInput{
		ProductBatchID: req.ProductBatchID,
		LocationID:     req.LocationID,
		Quantity:       req.Quantity,
		OrderID:        req.OrderID,
		CreatedByID:    req.CreatedByID,
		IdempotencyKey: idempotencyKey(c, req.IdempotencyKey),
		Note:           req.Note,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(statusFor(res.Idempotent), res)
}

func (h *LedgerHandler) GetBalance(c *gin.Context) {
	bal, err := h.uc.GetBalance(c.Request.Context(), c.Param("batchId"), c.Param("locationId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bal)
}

func (h *LedgerHandler) ListBalancesByLocation(c *gin.Context) {
	page, err := h.uc.ListBalancesByLocation(c.Request.Context(), c.Param("locationId"), pageQuery(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *LedgerHandler) ListBalancesByBatch(c *gin.Context) {
	page, err := h.uc.ListBalancesByBatch(c.Request.Context(), c.Param("batchId"), pageQuery(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *LedgerHandler) GetProductStock(c *gin.Context) {
	stock, err := h.uc.GetProductStock(c.Request.Context(), c.Param("productId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stock)
}

func (h *LedgerHandler) ListFEFOCandidates(c *gin.Context) {
	candidates, err := h.uc.ListFEFOCandidates(c.Request.Context(), c.Param("productId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": candidates})
}

func (h *LedgerHandler) AverageUnitCost(c *gin.Context) {
	avg, err := h.uc.AverageUnitCost(c.Request.Context(), c.Param("productId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"productId": c.Param("productId"), "averageUnitCost": avg})
}

func (h *LedgerHandler) ListLowStock(c *gin.Context) {
	threshold, _ := strconv.ParseInt(c.DefaultQuery("threshold", "10"), 10, 64)
	page, err := h.uc.ListLowStock(c.Request.Context(), threshold, pageQuery(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *LedgerHandler) ListExpiringStock(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("withinDays", "30"))
	page, err := h.uc.ListExpiringStock(c.Request.Context(), days, pageQuery(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *LedgerHandler) ListMovements(c *gin.Context) {
	filters := &dto.MovementFilters{
		ProductBatchID: c.Query("productBatchId"),
		LocationID:     c.Query("locationId"),
		MovementType:   c.Query("movementType"),
		PageQuery:      pageQuery(c),
	}
	if v := c.Query("startDate"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "startDate must be RFC3339"})
			return
		}
		filters.StartDate = &ts
	}
	if v := c.Query("endDate"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "endDate must be RFC3339"})
			return
		}
		filters.EndDate = &ts
	}

	page, err := h.uc.ListMovements(c.Request.Context(), filters)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// idempotencyKey prefers the body field, falling back to the conventional
// header.
func idempotencyKey(c *gin.Context, fromBody *string) *string {
	if fromBody != nil && *fromBody != "" {
		return fromBody
	}
	if v := c.GetHeader("Idempotency-Key"); v != "" {
		return &v
	}
	return nil
}

// statusFor keeps replays observable: a deduplicated mutation answers 200
// instead of 201.
func statusFor(idempotent bool) int {
	if idempotent {
		return http.StatusOK
	}
	return http.StatusCreated
}

func pageQuery(c *gin.Context) dto.PageQuery {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	return dto.PageQuery{
		Page:      page,
		PageSize:  size,
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
	}
}
