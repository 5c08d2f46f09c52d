package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/support-copilot/internal/api/http"
	"github.com/spec-kit/support-copilot/internal/api/http/handlers"
	"github.com/spec-kit/support-copilot/internal/completion"
	"github.com/spec-kit/support-copilot/internal/config"
	"github.com/spec-kit/support-copilot/internal/events"
	"github.com/spec-kit/support-copilot/internal/observability"
	"github.com/spec-kit/support-copilot/internal/persistence"
	"github.com/spec-kit/support-copilot/internal/repository"
	"github.com/spec-kit/support-copilot/internal/retrieval"
	"github.com/spec-kit/support-copilot/internal/service"
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

	ctx, cancel := context.WithCancel(context.Background())
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

	engine := service.NewTransitionEngine(stores, dispatcher, logger)

	searcher := retrieval.NewCachedSearcher(
		retrieval.NewClient(cfg.Retrieval),
		redis.ClientHandle(),
		cfg.Redis.CacheTTL(),
		logger,
	)
	builder := retrieval.NewBuilder(searcher, cfg.Retrieval.PolicyK, cfg.Retrieval.PreviousRecordK)

	drafter := completion.NewClient(cfg.Completion)
	rephraseService := service.NewRephraseService(drafter, logger)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:  handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Tickets: handlers.NewTicketsHandler(engine, builder),
		Review:  handlers.NewReviewHandler(engine, rephraseService),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
