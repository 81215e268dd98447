package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/marminbh/toxicity-score-svc/internal/config"
)

// ErrNotConnected is returned when the channel is missing or closed.
var ErrNotConnected = errors.New("RabbitMQ channel is not initialized or closed")

const dialTimeout = 30 * time.Second

// Connection owns one AMQP connection and channel. Consumers get a fresh
// Connection per connect attempt from a Dialer; recovery is driven by the
// caller. Publish is the exception: it re-dials lazily when the channel is gone.
type Connection struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  *config.RabbitMQConfig
	logger  *zap.Logger
	mu      sync.RWMutex
	closed  bool
}

// NewConnection creates a new Connection instance
func NewConnection(rabbitMQConfig *config.RabbitMQConfig, logger *zap.Logger) *Connection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connection{
		config: rabbitMQConfig,
		logger: logger,
	}
}

// Connect makes a single attempt to open the connection and channel.
func (c *Connection) Connect() error {
	return c.ConnectContext(context.Background())
}

// ConnectContext is Connect with the dial and handshake bounded by ctx.
func (c *Connection) ConnectContext(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = false
	return c.connectLocked(ctx)
}

// dialContext is amqp.DefaultDial bound to ctx. The AMQP handshake deadline is
// the earlier of ctx's deadline and dialTimeout; the client clears it once the
// connection is open.
func dialContext(ctx context.Context) func(network, addr string) (net.Conn, error) {
	return func(network, addr string) (net.Conn, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dialer := net.Dialer{Timeout: dialTimeout}
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		deadline := time.Now().Add(dialTimeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, err
		}
		return conn, nil
	}
}

func (c *Connection) connectLocked(ctx context.Context) error {
	var err error

	// Close existing connection if any
	if c.channel != nil && !c.channel.IsClosed() {
		c.channel.Close()
	}
	if c.conn != nil && !c.conn.IsClosed() {
		c.conn.Close()
	}

	amqpConfig := amqp.Config{
		Heartbeat:  c.config.Heartbeat,
		Locale:     "en_US",
		ChannelMax: 0, // 0 = unlimited
		FrameSize:  0, // 0 = unlimited
		Vhost:      c.config.VHost,
		Dial:       dialContext(ctx),
		Properties: amqp.Table{
			"connection_name": c.config.ConnectionName,
		},
	}

	c.conn, err = amqp.DialConfig(c.config.ConnectionURL(), amqpConfig)
	if err != nil {
		c.conn = nil
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		c.conn = nil
		c.channel = nil
		return fmt.Errorf("failed to open channel: %w", err)
	}

	c.logger.Info("Successfully connected to RabbitMQ",
		zap.String("host", c.config.Host),
		zap.String("port", c.config.Port),
		zap.String("vhost", c.config.VHost),
		zap.Duration("heartbeat", amqpConfig.Heartbeat),
	)
	return nil
}

// ensureConnection re-dials when the channel has gone away. It is a no-op
// after Close.
func (c *Connection) ensureConnection(ctx context.Context) (*amqp.Channel, error) {
	c.mu.RLock()
	ch, conn, closed := c.channel, c.conn, c.closed
	c.mu.RUnlock()

	if closed {
		return nil, ErrNotConnected
	}
	if ch != nil && !ch.IsClosed() && conn != nil && !conn.IsClosed() {
		return ch, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrNotConnected
	}
	if c.channel != nil && !c.channel.IsClosed() && c.conn != nil && !c.conn.IsClosed() {
		return c.channel, nil
	}
	c.logger.Warn("RabbitMQ channel not available, reconnecting")
	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}
	return c.channel, nil
}

func (c *Connection) currentChannel() (*amqp.Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.channel == nil || c.channel.IsClosed() {
		return nil, ErrNotConnected
	}
	return c.channel, nil
}

// Close closes the RabbitMQ channel and connection. Safe to call more than once.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
		c.channel = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
		c.conn = nil
		c.logger.Info("RabbitMQ connection closed")
	}
	return errors.Join(errs...)
}

// DeclareTopology idempotently declares a durable exchange and queue and binds
// them with the routing key.
func (c *Connection) DeclareTopology(b config.Binding) error {
	return c.DeclareTopologyContext(context.Background(), b)
}

// DeclareTopologyContext is DeclareTopology with any re-dial bounded by ctx.
func (c *Connection) DeclareTopologyContext(ctx context.Context, b config.Binding) error {
	ch, err := c.ensureConnection(ctx)
	if err != nil {
		return err
	}

	if err := ch.ExchangeDeclare(
		b.Exchange,     // name
		b.ExchangeType, // kind
		true,           // durable
		false,          // auto-delete
		false,          // internal
		false,          // no-wait
		nil,            // args
	); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", b.Exchange, err)
	}

	if _, err := ch.QueueDeclare(
		b.Queue, // name
		true,    // durable
		false,   // auto-delete
		false,   // exclusive
		false,   // no-wait
		nil,     // args
	); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", b.Queue, err)
	}

	if err := ch.QueueBind(b.Queue, b.RoutingKey, b.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s to %s: %w", b.Queue, b.Exchange, err)
	}

	c.logger.Debug("RabbitMQ topology declared",
		zap.String("exchange", b.Exchange),
		zap.String("exchange_type", b.ExchangeType),
		zap.String("queue", b.Queue),
		zap.String("routing_key", b.RoutingKey),
	)
	return nil
}

// Publish publishes a persistent JSON message, reconnecting when the channel
// was lost. Retries only while the failure looks like a dropped connection.
func (c *Connection) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	maxRetries := 3
	retryDelay := 100 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
			retryDelay *= 2
		}

		ch, err := c.ensureConnection(ctx)
		if err != nil {
			lastErr = err
			if errors.Is(err, ErrNotConnected) || ctx.Err() != nil {
				return err
			}
			c.logger.Warn("RabbitMQ channel not available for publish, retrying...",
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", maxRetries),
				zap.Error(err),
			)
			continue
		}

		err = ch.PublishWithContext(ctx,
			exchange,   // exchange
			routingKey, // routing key
			false,      // mandatory
			false,      // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Timestamp:    time.Now(),
				Body:         body,
			},
		)
		if err == nil {
			return nil
		}

		lastErr = err
		if !ch.IsClosed() {
			return fmt.Errorf("failed to publish message: %w", err)
		}
		c.logger.Warn("Publish failed due to connection issue, retrying...",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
		)
	}

	return fmt.Errorf("failed to publish message after %d attempts: %w", maxRetries, lastErr)
}

// Consume starts a manual-ack consumer on queue.
func (c *Connection) Consume(queue, consumerTag string) (<-chan amqp.Delivery, error) {
	ch, err := c.currentChannel()
	if err != nil {
		return nil, err
	}

	messages, err := ch.Consume(
		queue,       // queue
		consumerTag, // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming from queue %s: %w", queue, err)
	}
	return messages, nil
}

// CancelConsumer stops deliveries for consumerTag. Deliveries already sent by
// the broker can still be acked on this channel.
func (c *Connection) CancelConsumer(consumerTag string) error {
	ch, err := c.currentChannel()
	if err != nil {
		return err
	}
	if err := ch.Cancel(consumerTag, false); err != nil {
		return fmt.Errorf("failed to cancel consumer %s: %w", consumerTag, err)
	}
	return nil
}

// SetQoS sets the quality of service (prefetch count) for the channel
func (c *Connection) SetQoS(prefetchCount int) error {
	ch, err := c.currentChannel()
	if err != nil {
		return err
	}
	if err := ch.Qos(
		prefetchCount, // prefetch count
		0,             // prefetch size (0 = unlimited)
		false,         // global
	); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	return nil
}

// IsHealthy checks if the connection and channel are healthy
func (c *Connection) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed() && c.channel != nil && !c.channel.IsClosed()
}
