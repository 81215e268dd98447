package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/marminbh/toxicity-score-svc/internal/config"
	"github.com/marminbh/toxicity-score-svc/internal/handlers"
	"github.com/marminbh/toxicity-score-svc/internal/logger"
	"github.com/marminbh/toxicity-score-svc/internal/routes"
	"github.com/marminbh/toxicity-score-svc/internal/samples"
	"github.com/marminbh/toxicity-score-svc/internal/service"
)

func main() {
	// Load configuration
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

	svc, err := service.NewService(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize service", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := svc.Close(closeCtx); err != nil {
			log.Error("Error closing service", zap.Error(err))
		}
	}()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:               "Toxicity Score Service",
		ServerHeader:          "Fiber",
		DisableStartupMessage: true,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	var stateReporter handlers.StateReporter
	if svc.Consumer != nil {
		stateReporter = svc.Consumer
	}
	routes.SetupRoutes(app,
		handlers.NewHealthHandler(stateReporter, svc.Store, svc.Outbound, log.Named("health")),
		handlers.NewCommentsHandler(svc.Store, log.Named("comments")),
		promhttp.HandlerFor(svc.Registry, promhttp.HandlerOpts{}),
	)

	// Start server in a goroutine
	go func() {
		addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
		log.Info("Server starting",
			zap.String("address", addr),
		)
		if err := app.Listen(addr); err != nil {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	consumerDone := make(chan error, 1)
	if svc.Consumer != nil {
		go func() { consumerDone <- svc.Consumer.Run(ctx) }()
	} else {
		log.Info("RABBITMQ_START_CONSUMING is false, consumer not started")
		close(consumerDone)
	}

	if cfg.PublishSampleMessages {
		go func() {
			msgs := samples.Messages(time.Now())
			if err := samples.Publish(ctx, svc.Outbound, cfg.Consumer.Inbound, msgs, log.Named("samples")); err != nil {
				log.Error("Failed to publish sample messages", zap.Error(err))
			}
		}()
	}

	// Wait for interrupt signal to gracefully shutdown
	<-ctx.Done()
	log.Info("Shutting down server")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error("Error during server shutdown", zap.Error(err))
	}

	// The in-flight delivery may take up to the processing timeout.
	select {
	case err := <-consumerDone:
		if err != nil {
			log.Error("Consumer stopped with error", zap.Error(err))
		}
	case <-time.After(cfg.Consumer.ProcessingTimeout + 5*time.Second):
		log.Warn("Timed out waiting for the consumer to drain")
	}

	log.Info("Server stopped")
}
