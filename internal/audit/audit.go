// Package audit publishes before/after snapshots of ledger writes to the
// audit topic. Publishing is best-effort: failures are logged, never
// propagated into the operation that triggered them.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/arkava/warehouse-ledger-service/internal/ledger"
	"github.com/arkava/warehouse-ledger-service/pkg/broker"
	"github.com/arkava/warehouse-ledger-service/pkg/logger"
)

type event struct {
	Action    string      `json:"action"`
	Kind      string      `json:"kind"`
	EntityID  string      `json:"entityId,omitempty"`
	Record    interface{} `json:"record,omitempty"`
	Before    interface{} `json:"before,omitempty"`
	After     interface{} `json:"after,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type KafkaSink struct {
	publisher *broker.Publisher
	logger    logger.Logger
}

func NewKafkaSink(publisher *broker.Publisher, log logger.Logger) ledger.AuditSink {
	return &KafkaSink{publisher: publisher, logger: log}
}

func (s *KafkaSink) LogCreate(ctx context.Context, kind string, record interface{}) {
	s.publish(ctx, event{
		Action:    "create",
		Kind:      kind,
		Record:    record,
		Timestamp: time.Now().UTC(),
	})
}

func (s *KafkaSink) LogUpdate(ctx context.Context, kind, id string, before, after interface{}) {
	s.publish(ctx, event{
		Action:    "update",
		Kind:      kind,
		EntityID:  id,
		Before:    before,
		After:     after,
		Timestamp: time.Now().UTC(),
	})
}

func (s *KafkaSink) publish(ctx context.Context, e event) {
	data, err := json.Marshal(e)
	if err != nil {
		s.logger.Error("Failed to marshal audit event", zap.Error(err), zap.String("kind", e.Kind))
		return
	}
	if err := s.publisher.Publish(ctx, e.Kind, data); err != nil {
		s.logger.Error("Failed to publish audit event",
			zap.Error(err),
			zap.String("action", e.Action),
			zap.String("kind", e.Kind),
		)
	}
}
