// Package consumer runs the broker subscription for comment events. It owns
// the reconnect state machine and the per-delivery pipeline: decode, score,
// process, publish the outcome, then ack or nack.
//
// A Consumer is a single logical worker. Deliveries are handled one at a time;
// parallelism comes from running more Consumers.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/marminbh/toxicity-score-svc/internal/config"
	"github.com/marminbh/toxicity-score-svc/internal/metrics"
	"github.com/marminbh/toxicity-score-svc/internal/models"
	"github.com/marminbh/toxicity-score-svc/internal/processor"
	"github.com/marminbh/toxicity-score-svc/internal/scoring"
)

// State is the consumer loop state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateProcessing:
		return "processing"
	default:
		return "disconnected"
	}
}

// StateNames lists every state label, for metrics.
func StateNames() []string {
	return []string{
		StateDisconnected.String(),
		StateConnecting.String(),
		StateSubscribed.String(),
		StateProcessing.String(),
	}
}

var errDeliveriesClosed = errors.New("delivery channel closed")

// Session is one broker connection. *rabbitmq.Connection implements it.
type Session interface {
	SetQoS(prefetchCount int) error
	DeclareTopology(b config.Binding) error
	Consume(queue, consumerTag string) (<-chan amqp.Delivery, error)
	CancelConsumer(consumerTag string) error
	Close() error
}

// Dialer opens a new Session per connect attempt.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// DialFunc adapts a function to Dialer.
type DialFunc func(ctx context.Context) (Session, error)

func (f DialFunc) Dial(ctx context.Context) (Session, error) { return f(ctx) }

// Processor applies one operation to the record store.
type Processor interface {
	Process(ctx context.Context, record models.CommentRecord, op string, score *float64) processor.Outcome
}

// OutcomePublisher sends the outcome event for a delivery. It must not fail
// the delivery.
type OutcomePublisher interface {
	Publish(ctx context.Context, event models.OutcomeEvent)
}

// Consumer supervises the subscription and handles deliveries.
type Consumer struct {
	cfg         *config.ConsumerConfig
	dialer      Dialer
	processor   Processor
	scorer      scoring.Scorer
	publisher   OutcomePublisher
	backoff     Backoff
	metrics     *metrics.Metrics
	logger      *zap.Logger
	consumerTag string
	state       atomic.Int32
	now         func() time.Time
	newID       func() string
}

// New creates a Consumer. m may be nil.
func New(
	cfg *config.ConsumerConfig,
	dialer Dialer,
	proc Processor,
	scorer scoring.Scorer,
	pub OutcomePublisher,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := cfg.ConsumerTagPrefix
	if prefix == "" {
		prefix = "toxicity-score"
	}
	return &Consumer{
		cfg:         cfg,
		dialer:      dialer,
		processor:   proc,
		scorer:      scorer,
		publisher:   pub,
		backoff:     NewBackoff(cfg),
		metrics:     m,
		logger:      logger,
		consumerTag: fmt.Sprintf("%s-%s", prefix, uuid.NewString()),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
}

// State reports the current loop state. Safe for concurrent use.
func (c *Consumer) State() State {
	return State(c.state.Load())
}

func (c *Consumer) setState(s State) {
	c.state.Store(int32(s))
	c.metrics.SetState(s.String())
}

// Run connects, subscribes and handles deliveries until ctx is cancelled.
// Transport failures are retried forever after a backoff pause. When ctx is
// cancelled the in-flight delivery is finished, the consumer is cancelled and
// the session closed; Run then returns nil.
func (c *Consumer) Run(ctx context.Context) error {
	c.setState(StateDisconnected)
	attempt := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		c.setState(StateConnecting)
		subscribed, err := c.runSession(ctx)
		c.setState(StateDisconnected)

		if ctx.Err() != nil {
			c.logger.Info("Consumer stopped", zap.String("consumer_tag", c.consumerTag))
			return nil
		}

		if subscribed {
			attempt = 0
		}
		attempt++
		pause := c.backoff.Next(attempt)

		c.logger.Error("Connection to RabbitMQ lost, reconnecting...",
			zap.String("queue", c.cfg.Inbound.Queue),
			zap.Int("attempt", attempt),
			zap.Duration("pause", pause),
			zap.Error(err),
		)
		c.metrics.Reconnect()

		if !sleep(ctx, pause) {
			return nil
		}
	}
}

// runSession runs one connect-subscribe-receive cycle. It reports whether the
// subscription was established, and the transport error that ended it.
func (c *Consumer) runSession(ctx context.Context) (bool, error) {
	sess, err := c.dialer.Dial(ctx)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			c.logger.Warn("Failed to close RabbitMQ session", zap.Error(err))
		}
	}()

	if c.cfg.DeclareTopology {
		if err := sess.DeclareTopology(c.cfg.Inbound); err != nil {
			return false, fmt.Errorf("declare inbound topology: %w", err)
		}
	}

	if err := sess.SetQoS(c.cfg.PrefetchCount); err != nil {
		return false, fmt.Errorf("set QoS: %w", err)
	}

	deliveries, err := sess.Consume(c.cfg.Inbound.Queue, c.consumerTag)
	if err != nil {
		return false, fmt.Errorf("consume: %w", err)
	}

	c.setState(StateSubscribed)
	c.logger.Info("Starting message consumption...",
		zap.String("queue", c.cfg.Inbound.Queue),
		zap.String("consumer_tag", c.consumerTag),
		zap.Int("prefetch_count", c.cfg.PrefetchCount),
	)

	// storeFailures counts consecutive deliveries requeued for a store outage.
	storeFailures := 0
	for {
		select {
		case <-ctx.Done():
			c.release(sess)
			return true, nil
		case d, ok := <-deliveries:
			if !ok {
				return true, errDeliveriesClosed
			}
			if ctx.Err() != nil {
				// Stop was requested while this delivery was queued.
				c.settle(d, false, true)
				c.release(sess)
				return true, nil
			}
			if !c.handleDelivery(ctx, d) {
				storeFailures = 0
				continue
			}
			storeFailures++
			pause := c.backoff.Next(storeFailures)
			c.logger.Warn("Record store unavailable, pausing before the next delivery",
				zap.Int("attempt", storeFailures),
				zap.Duration("pause", pause),
			)
			if !sleep(ctx, pause) {
				c.release(sess)
				return true, nil
			}
		}
	}
}

func (c *Consumer) release(sess Session) {
	if err := sess.CancelConsumer(c.consumerTag); err != nil {
		c.logger.Warn("Failed to cancel consumer",
			zap.String("consumer_tag", c.consumerTag),
			zap.Error(err),
		)
	}
}
