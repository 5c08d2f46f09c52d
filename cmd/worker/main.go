package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/support-copilot/internal/completion"
	"github.com/spec-kit/support-copilot/internal/config"
	"github.com/spec-kit/support-copilot/internal/events"
	"github.com/spec-kit/support-copilot/internal/observability"
	"github.com/spec-kit/support-copilot/internal/persistence"
	"github.com/spec-kit/support-copilot/internal/repository"
	"github.com/spec-kit/support-copilot/internal/retrieval"
	"github.com/spec-kit/support-copilot/internal/service"
	"github.com/spec-kit/support-copilot/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.PoolHandle() != nil && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var stores repository.TicketStores
	if pool := pg.PoolHandle(); pool != nil {
		stores = repository.NewPostgresStores(pool)
	} else {
		logger.Warn("running with in-memory stores; data will not survive restarts")
		stores = repository.NewMemoryStores()
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	notification := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	notification.RegisterHandlers()

	queue := service.NewClaimQueue(stores, dispatcher, metrics, logger)
	engine := service.NewTransitionEngine(stores, dispatcher, logger)

	searcher := retrieval.NewCachedSearcher(
		retrieval.NewClient(cfg.Retrieval),
		redis.ClientHandle(),
		cfg.Redis.CacheTTL(),
		logger,
	)
	builder := retrieval.NewBuilder(searcher, cfg.Retrieval.PolicyK, cfg.Retrieval.PreviousRecordK)
	drafter := completion.NewClient(cfg.Completion)

	count := cfg.Worker.Count
	if count < 1 {
		count = 1
	}
	logger.Info("starting draft workers", zap.Int("count", count))

	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < count; i++ {
		id := i
		w := worker.NewDraftWorker(queue, engine, builder, drafter, metrics,
			logger.With(zap.Int("worker", id)), cfg.Worker)
		group.Go(func() error {
			return w.Run(groupCtx)
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker pool stopped", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("worker pool stopped")
}
