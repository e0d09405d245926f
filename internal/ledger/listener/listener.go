// Package listener consumes order lifecycle events and drives the matching
// ledger operations: reserve on creation, consume-dispatch on shipment,
// release on cancellation. Idempotency keys derived from the event id make
// redelivered messages harmless.
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arkava/warehouse-ledger-service/internal/ledger"
	"github.com/arkava/warehouse-ledger-service/internal/ledger/dto"
	"github.com/arkava/warehouse-ledger-service/pkg/broker"
	"github.com/arkava/warehouse-ledger-service/pkg/logger"
)

type OrderListener struct {
	consumer *broker.Consumer
	uc       ledger.UseCase
	logger   logger.Logger
}

func NewOrderListener(consumer *broker.Consumer, uc ledger.UseCase, log logger.Logger) *OrderListener {
	return &OrderListener{
		consumer: consumer,
		uc:       uc,
		logger:   log,
	}
}

func (l *OrderListener) Start(ctx context.Context) {
	l.logger.Info("Starting order events listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping order events listener")
			return
		default:
			msg, err := l.consumer.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("Failed to read kafka message", zap.Error(err))
				time.Sleep(1 * time.Second)
				continue
			}
			l.processMessage(ctx, msg.Value)
		}
	}
}

const (
	eventOrderCreated   = "OrderCreated"
	eventOrderShipped   = "OrderShipped"
	eventOrderCancelled = "OrderCancelled"
)

type OrderEvent struct {
	EventID   string       `json:"event_id"`
	EventType string       `json:"event_type"`
	Payload   OrderPayload `json:"payload"`
	Timestamp time.Time    `json:"timestamp"`
}

type OrderPayload struct {
	ID    string          `json:"id"`
	Items []OrderItemLine `json:"items"`
}

type OrderItemLine struct {
	ProductBatchID string `json:"product_batch_id"`
	LocationID     string `json:"location_id"`
	Quantity       int64  `json:"quantity"`
}

func (l *OrderListener) processMessage(ctx context.Context, value []byte) {
	var event OrderEvent
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Error("Failed to unmarshal order event", zap.Error(err))
		return
	}

	switch event.EventType {
	case eventOrderCreated, eventOrderShipped, eventOrderCancelled:
	default:
		return
	}

	l.logger.Info("Processing order event",
		zap.String("event_type", event.EventType),
		zap.String("order_id", event.Payload.ID),
	)

	for i, item := range event.Payload.Items {
		key := itemKey(event.EventID, event.EventType, i)
		var err error
		switch event.EventType {
		case eventOrderCreated:
			_, err = l.uc.Reserve(ctx, &dto.ReserveInput{
				ProductBatchID: item.ProductBatchID,
				LocationID:     item.LocationID,
				Quantity:       item.Quantity,
				OrderID:        event.Payload.ID,
				IdempotencyKey: &key,
			})
		case eventOrderShipped:
			ref := event.Payload.ID
			_, err = l.uc.Dispatch(ctx, &dto.DispatchInput{
				ProductBatchID:     item.ProductBatchID,
				LocationID:         item.LocationID,
				Quantity:           item.Quantity,
				ConsumeReservation: true,
				Reference:          &ref,
				IdempotencyKey:     &key,
			})
		case eventOrderCancelled:
			qty := item.Quantity
			_, err = l.uc.Release(ctx, &dto.ReleaseInput{
				ProductBatchID: item.ProductBatchID,
				LocationID:     item.LocationID,
				Quantity:       &qty,
				OrderID:        event.Payload.ID,
				IdempotencyKey: &key,
			})
		}
		if err != nil {
			l.logger.Error("Failed to apply order event to ledger",
				zap.String("event_type", event.EventType),
				zap.String("order_id", event.Payload.ID),
				zap.String("product_batch_id", item.ProductBatchID),
				zap.Error(err),
			)
		}
	}
}

// itemKey makes every (event, line) application exactly-once: a redelivered
// message replays into idempotent no-ops.
func itemKey(eventID, eventType string, line int) string {
	return fmt.Sprintf("%s:%s:%d", eventID, eventType, line)
}
