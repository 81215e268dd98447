package rabbitmq

import (
	"context"

	"go.uber.org/zap"

	"github.com/marminbh/toxicity-score-svc/internal/config"
)

// Dialer opens a fresh Connection for every attempt.
type Dialer struct {
	config *config.RabbitMQConfig
	logger *zap.Logger
}

func NewDialer(rabbitMQConfig *config.RabbitMQConfig, logger *zap.Logger) *Dialer {
	return &Dialer{config: rabbitMQConfig, logger: logger}
}

// Dial makes one connection attempt, abandoned when ctx is done.
func (d *Dialer) Dial(ctx context.Context) (*Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn := NewConnection(d.config, d.logger)
	if err := conn.ConnectContext(ctx); err != nil {
		return nil, err
	}
	return conn, nil
}
