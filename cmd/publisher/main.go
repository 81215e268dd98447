// Command publisher sends the sample comment events to the inbound exchange
// and exits.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/marminbh/toxicity-score-svc/internal/config"
	"github.com/marminbh/toxicity-score-svc/internal/logger"
	"github.com/marminbh/toxicity-score-svc/internal/rabbitmq"
	"github.com/marminbh/toxicity-score-svc/internal/samples"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load config:", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to initialize logger:", err)
		os.Exit(1)
	}
	defer logger.Sync(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn := rabbitmq.NewConnection(&cfg.RabbitMQ, log)
	if err := conn.Connect(); err != nil {
		log.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer conn.Close()

	msgs := samples.Messages(time.Now())
	if err := samples.Publish(ctx, conn, cfg.Consumer.Inbound, msgs, log); err != nil {
		log.Error("Failed to publish sample messages", zap.Error(err))
		return
	}
	log.Info("Sample messages published", zap.Int("count", len(msgs)))
}
