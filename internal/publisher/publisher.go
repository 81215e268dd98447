// Package publisher emits outcome events to the outbound exchange. Publishing
// is best-effort: failures are logged and counted, never returned.
package publisher

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/marminbh/toxicity-score-svc/internal/config"
	"github.com/marminbh/toxicity-score-svc/internal/metrics"
	"github.com/marminbh/toxicity-score-svc/internal/models"
)

// Channel is the broker surface the publisher needs. *rabbitmq.Connection
// implements it.
type Channel interface {
	DeclareTopologyContext(ctx context.Context, b config.Binding) error
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
}

// Publisher sends OutcomeEvents. Safe for concurrent use.
type Publisher struct {
	ch      Channel
	binding config.Binding
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu       sync.Mutex
	declared bool
}

// New creates a Publisher. A positive timeout bounds each Publish call,
// declaration and re-dial included.
func New(ch Channel, binding config.Binding, timeout time.Duration, m *metrics.Metrics, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{ch: ch, binding: binding, timeout: timeout, metrics: m, logger: logger}
}

// Publish sends one outcome event. Events with the same message id are sent
// as independent messages.
func (p *Publisher) Publish(ctx context.Context, event models.OutcomeEvent) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.fail(event, "Failed to marshal outcome event", err)
		return
	}

	if err := p.ensureDeclared(ctx); err != nil {
		p.fail(event, "Failed to declare outbound topology", err)
		return
	}

	if err := p.ch.Publish(ctx, p.binding.Exchange, p.binding.RoutingKey, body); err != nil {
		p.resetDeclared()
		p.fail(event, "Failed to publish outcome event", err)
		return
	}

	p.metrics.Published(true)
	p.logger.Info("Outcome event published",
		zap.String("message_id", event.MessageID),
		zap.String("type", event.Type),
		zap.String("status", string(event.Status)),
		zap.String("result_id", event.ResultID),
		zap.String("exchange", p.binding.Exchange),
		zap.String("routing_key", p.binding.RoutingKey),
	)
}

func (p *Publisher) ensureDeclared(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.declared {
		return nil
	}
	if err := p.ch.DeclareTopologyContext(ctx, p.binding); err != nil {
		return err
	}
	p.declared = true
	return nil
}

// resetDeclared forces a fresh declaration on the next publish, since a
// failed publish may mean the channel was replaced.
func (p *Publisher) resetDeclared() {
	p.mu.Lock()
	p.declared = false
	p.mu.Unlock()
}

func (p *Publisher) fail(event models.OutcomeEvent, msg string, err error) {
	p.metrics.Published(false)
	p.logger.Error(msg,
		zap.String("message_id", event.MessageID),
		zap.String("type", event.Type),
		zap.String("status", string(event.Status)),
		zap.String("exchange", p.binding.Exchange),
		zap.Error(err),
	)
}
