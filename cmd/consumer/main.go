package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/chwnex/project-exercisetracker/internal/config"
	"github.com/chwnex/project-exercisetracker/internal/consumer"
	"github.com/chwnex/project-exercisetracker/internal/observability"
	httptransport "github.com/chwnex/project-exercisetracker/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	if len(cfg.KafkaBrokers) == 0 {
		logger.Fatal("KAFKA_BROKERS is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to postgres")
	}
	defer pool.Close()

	handler := consumer.NewAuditHandler(pool)

	metricsSrv := httptransport.NewMetricsServer(cfg.MetricsAddress)
	httptransport.Serve(metricsSrv, logger, "metrics")

	var wg sync.WaitGroup
	for _, topic := range cfg.ConsumerTopics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.KafkaBrokers,
			GroupID:        cfg.ConsumerGroupID,
			Topic:          topic,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: time.Second,
		})
		topicLogger := logger.WithFields(logrus.Fields{"topic": topic, "group": cfg.ConsumerGroupID})
		proc := consumer.NewProcessor(reader, handler,
			consumer.WithLogger(topicLogger),
			consumer.WithHandlerRetries(cfg.ConsumerHandlerRetries),
			consumer.WithRetryDelay(cfg.ConsumerRetryDelay),
		)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer reader.Close()

			topicLogger.Info("consumer started")
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				topicLogger.WithError(err).Error("consumer stopped")
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("consumer shutdown requested")
	cancel()

	httptransport.Shutdown(metricsSrv, logger, cfg.ShutdownTimeout)
	wg.Wait()
}
