package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chwnex/project-exercisetracker/internal/config"
	"github.com/chwnex/project-exercisetracker/internal/observability"
	"github.com/chwnex/project-exercisetracker/internal/outbox"
	httptransport "github.com/chwnex/project-exercisetracker/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to postgres")
	}
	defer pool.Close()

	metricsSrv := httptransport.NewMetricsServer(cfg.MetricsAddress)
	httptransport.Serve(metricsSrv, logger, "metrics")

	manager := outbox.NewDLQManager(pool, logger, cfg.DLQMaxRetries, cfg.DLQBaseDelay)
	manager.Run(ctx, cfg.DLQPollInterval, cfg.DLQBatchSize)

	logger.Info("dlq manager shutting down")
	httptransport.Shutdown(metricsSrv, logger, cfg.ShutdownTimeout)
}
