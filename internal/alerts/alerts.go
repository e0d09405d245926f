// Package alerts evaluates stock levels after balance-decreasing operations
// and publishes low-stock events for the alerting pipeline. Best-effort: a
// failed check never affects the ledger operation that triggered it.
package alerts

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/arkava/warehouse-ledger-service/internal/ledger"
	"github.com/arkava/warehouse-ledger-service/internal/ledger/dto"
	"github.com/arkava/warehouse-ledger-service/pkg/broker"
	"github.com/arkava/warehouse-ledger-service/pkg/logger"
)

type lowStockEvent struct {
	EventType      string    `json:"event_type"`
	ProductBatchID string    `json:"productBatchId"`
	LocationID     string    `json:"locationId"`
	AvailableQty   int64     `json:"availableQty"`
	Threshold      int64     `json:"threshold"`
	Timestamp      time.Time `json:"timestamp"`
}

type Checker struct {
	publisher *broker.Publisher
	threshold int64
	logger    logger.Logger
}

func NewChecker(publisher *broker.Publisher, threshold int64, log logger.Logger) ledger.AlertChecker {
	return &Checker{publisher: publisher, threshold: threshold, logger: log}
}

func (c *Checker) CheckLowStock(ctx context.Context, snapshot dto.StockSnapshot) {
	if snapshot.AvailableQty > c.threshold {
		return
	}

	event := lowStockEvent{
		EventType:      "LowStock",
		ProductBatchID: snapshot.ProductBatchID,
		LocationID:     snapshot.LocationID,
		AvailableQty:   snapshot.AvailableQty,
		Threshold:      c.threshold,
		Timestamp:      time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("Failed to marshal low stock event", zap.Error(err))
		return
	}
	if err := c.publisher.Publish(ctx, snapshot.ProductBatchID, data); err != nil {
		c.logger.Error("Failed to publish low stock event",
			zap.Error(err),
			zap.String("product_batch_id", snapshot.ProductBatchID),
			zap.String("location_id", snapshot.LocationID),
		)
		return
	}
	c.logger.Info("Low stock alert published",
		zap.String("product_batch_id", snapshot.ProductBatchID),
		zap.String("location_id", snapshot.LocationID),
		zap.Int64("available_qty", snapshot.AvailableQty),
	)
}
