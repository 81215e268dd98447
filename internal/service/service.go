package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/marminbh/toxicity-score-svc/internal/config"
	"github.com/marminbh/toxicity-score-svc/internal/consumer"
	"github.com/marminbh/toxicity-score-svc/internal/database"
	"github.com/marminbh/toxicity-score-svc/internal/metrics"
	"github.com/marminbh/toxicity-score-svc/internal/processor"
	"github.com/marminbh/toxicity-score-svc/internal/publisher"
	"github.com/marminbh/toxicity-score-svc/internal/rabbitmq"
	"github.com/marminbh/toxicity-score-svc/internal/scoring"
	"github.com/marminbh/toxicity-score-svc/internal/store"
)

// Store is what the service needs from a backend.
type Store interface {
	store.RecordStore
	store.Finder
}

// Service holds all application dependencies
// This eliminates global state and enables proper dependency injection
type Service struct {
	Config    *config.Config
	Logger    *zap.Logger
	Store     Store
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Outbound  *rabbitmq.Connection
	Publisher *publisher.Publisher
	// Consumer is nil when consuming is disabled.
	Consumer *consumer.Consumer

	closers []func(ctx context.Context) error
}

// NewService connects the store, prepares its schema and wires the publisher
// and consumer. The broker is not required to be reachable yet.
func NewService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Service, error) {
	s := &Service{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	s.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.Metrics = metrics.New(s.Registry, consumer.StateNames())

	st, closeStore, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	s.Store = st
	s.closers = append(s.closers, closeStore)

	// One-time schema setup. An unreachable store is not fatal because creates
	// still work against an existing index; a non-unique index is.
	if err := st.EnsureSchema(ctx); err != nil {
		if errors.Is(err, store.ErrSchemaMismatch) {
			_ = closeStore(ctx)
			return nil, fmt.Errorf("record store schema: %w", err)
		}
		logger.Warn("Failed to ensure record store schema", zap.Error(err))
	}

	s.Outbound = rabbitmq.NewConnection(&cfg.RabbitMQ, logger.Named("publisher"))
	if err := s.Outbound.Connect(); err != nil {
		logger.Warn("Outbound RabbitMQ connection not ready, will connect on first publish", zap.Error(err))
	}
	s.closers = append(s.closers, func(context.Context) error { return s.Outbound.Close() })
	s.Publisher = publisher.New(s.Outbound, cfg.Consumer.Outbound, cfg.Consumer.PublishTimeout, s.Metrics, logger.Named("publisher"))

	if cfg.Consumer.StartConsuming {
		dialer := rabbitmq.NewDialer(&cfg.RabbitMQ, logger.Named("consumer"))
		dial := consumer.DialFunc(func(ctx context.Context) (consumer.Session, error) {
			conn, err := dialer.Dial(ctx)
			if err != nil {
				return nil, err
			}
			return conn, nil
		})

		s.Consumer = consumer.New(
			&cfg.Consumer,
			dial,
			processor.New(st, deletePolicy(cfg.Consumer.DeleteMissingPolicy), logger.Named("processor")),
			scoring.NewSimulatedScorer(cfg.Scoring.MinDuration, cfg.Scoring.MaxDuration),
			s.Publisher,
			s.Metrics,
			logger.Named("consumer"),
		)
	}

	return s, nil
}

// OpenStore connects the configured backend and returns it with its closer.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, func(context.Context) error, error) {
	switch cfg.Store.Driver {
	case config.StoreMongo:
		client, err := database.ConnectMongo(ctx, &cfg.Mongo, logger)
		if err != nil {
			return nil, nil, err
		}
		coll := client.Database(cfg.Mongo.DBName).Collection(cfg.Store.Collection)
		closer := func(ctx context.Context) error { return database.CloseMongo(ctx, client, logger) }
		return store.NewMongoStore(coll), closer, nil

	case config.StorePostgres:
		if err := database.RunMigrations(&cfg.Database, logger); err != nil {
			return nil, nil, err
		}
		db, err := database.ConnectPostgres(&cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		closer := func(context.Context) error { return database.ClosePostgres(db, logger) }
		return store.NewPostgresStore(db), closer, nil

	case config.StoreMemory:
		logger.Warn("Using in-memory record store; records are lost on restart")
		return store.NewMemoryStore(), func(context.Context) error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.Store.Driver)
}

func deletePolicy(name string) processor.DeletePolicy {
	if name == config.DeleteMissingProcessed {
		return processor.DeleteIdempotent
	}
	return processor.DeleteStrict
}

// Close releases connections in reverse order of creation.
func (s *Service) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
