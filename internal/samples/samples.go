// Package samples publishes a fixed set of inbound comment events for manual
// end-to-end runs against a local broker.
package samples

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/marminbh/toxicity-score-svc/internal/config"
	"github.com/marminbh/toxicity-score-svc/internal/models"
)

// Channel is the broker surface used to send samples.
type Channel interface {
	DeclareTopology(b config.Binding) error
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
}

// Messages returns the sample events with timestamps taken from now. They walk
// one comment through create, update and delete and then delete an id that was
// never created.
func Messages(now time.Time) []models.InboundEvent {
	ts := now.UTC().Format(time.RFC3339Nano)
	rescored := 87.5
	return []models.InboundEvent{
		{ID: "msg_123456", UserID: "u_78910", Text: "This is a test message", Timestamp: ts, Type: string(models.OperationCreate)},
		{ID: "msg_123456", UserID: "u_78910", Text: "This is a test message", Timestamp: ts, Type: string(models.OperationUpdate), Score: &rescored},
		{ID: "msg_123456", UserID: "u_78910", Text: "This is a test message", Timestamp: ts, Type: string(models.OperationDelete)},
		{ID: "msg_123457", UserID: "u_78911", Text: "Another test message", Timestamp: ts, Type: string(models.OperationDelete)},
	}
}

// RoutingKey builds "<base>.<id>.<type>" where base is the binding key with a
// trailing wildcard word removed, so the key still matches a topic binding.
func RoutingKey(bindingKey string, e models.InboundEvent) string {
	base := strings.TrimSuffix(strings.TrimSuffix(bindingKey, ".#"), ".*")
	return fmt.Sprintf("%s.%s.%s", base, e.ID, e.Type)
}

// Publish declares the binding and sends every message in order. It stops at
// the first failure.
func Publish(ctx context.Context, ch Channel, b config.Binding, messages []models.InboundEvent, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := ch.DeclareTopology(b); err != nil {
		return fmt.Errorf("declare topology: %w", err)
	}

	for _, msg := range messages {
		body, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal sample %s: %w", msg.ID, err)
		}
		key := RoutingKey(b.RoutingKey, msg)
		if err := ch.Publish(ctx, b.Exchange, key, body); err != nil {
			return fmt.Errorf("publish sample %s: %w", msg.ID, err)
		}
		logger.Info("Sample message published",
			zap.String("exchange", b.Exchange),
			zap.String("routing_key", key),
			zap.String("id", msg.ID),
			zap.String("type", msg.Type),
		)
	}
	return nil
}
