package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/chwnex/project-exercisetracker/internal/api"
	"github.com/chwnex/project-exercisetracker/internal/config"
	"github.com/chwnex/project-exercisetracker/internal/domain"
	"github.com/chwnex/project-exercisetracker/internal/observability"
	"github.com/chwnex/project-exercisetracker/internal/outbox"
	"github.com/chwnex/project-exercisetracker/internal/persistence/memory"
	persistence "github.com/chwnex/project-exercisetracker/internal/persistence/postgres"
	httptransport "github.com/chwnex/project-exercisetracker/internal/transport/http"
)

type store interface {
	domain.UserRepository
	domain.EntryRepository
}

func main() {
	cfg := config.Load()
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		repo       store
		dispatcher *outbox.Dispatcher
	)

	switch cfg.StoreBackend {
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to postgres")
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.WithError(err).Fatal("postgres unreachable")
		}

		publishing := len(cfg.KafkaBrokers) > 0
		repo = persistence.NewRepository(pool, persistence.WithEventRecording(publishing))

		if publishing {
			producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
			defer func() {
				if err := producer.Close(); err != nil {
					logger.WithError(err).Warn("closing kafka producer")
				}
			}()
			registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
			dispatcher = outbox.NewDispatcher(pool, producer, registry, logger, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
				outbox.WithRetryBaseDelay(cfg.DLQBaseDelay))
			go dispatcher.Start(ctx)
		}
	default:
		repo = memory.NewStore()
	}

	handler := api.NewHandler(
		domain.NewUserRegistry(repo),
		domain.NewExerciseLog(repo, repo),
		logger,
	)
	router := api.NewRouter(handler, api.RouterConfig{AllowedOrigin: cfg.CORSAllowedOrigin, Logger: logger})

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}, router)

	logger.WithFields(logrus.Fields{
		"store":     cfg.StoreBackend,
		"publishes": dispatcher != nil,
	}).Info("exercise tracker starting")
	httptransport.Serve(server, logger, "api")

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	<-shutdownCh
	logger.Info("shutdown requested")

	httptransport.Shutdown(server, logger, cfg.ShutdownTimeout)
	cancel()
	if dispatcher != nil {
		dispatcher.Wait()
	}
}
