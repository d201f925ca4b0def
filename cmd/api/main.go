package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/fieldserve/visit-service/internal/api/http"
	"github.com/fieldserve/visit-service/internal/api/http/handlers"
	"github.com/fieldserve/visit-service/internal/auth"
	"github.com/fieldserve/visit-service/internal/config"
	"github.com/fieldserve/visit-service/internal/events"
	"github.com/fieldserve/visit-service/internal/observability"
	"github.com/fieldserve/visit-service/internal/persistence"
	"github.com/fieldserve/visit-service/internal/repository"
	"github.com/fieldserve/visit-service/internal/service"
	"github.com/fieldserve/visit-service/internal/stream"
	"github.com/fieldserve/visit-service/internal/worker"
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

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	accountRepo := repository.NewAccountRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	eventRepo := repository.NewEventRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	viewStateRepo := repository.NewViewStateRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)

	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()

	authService := service.NewAuthService(*cfg, accountRepo)
	// one locker for every ticket writer: grouped visits and direct ticket
	// mutations serialize on the same per-id lock
	ticketLocker := service.NewEntityLocker()
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:    ticketRepo,
		MessageRepo:   messageRepo,
		ViewStateRepo: viewStateRepo,
		AccountRepo:   accountRepo,
		Sequence:      redis,
		Dispatcher:    dispatcher,
		Locker:        ticketLocker,
	})
	visitService := service.NewVisitService(service.VisitDependencies{
		EventRepo:   eventRepo,
		TicketRepo:  ticketRepo,
		AccountRepo: accountRepo,
		Dispatcher:  dispatcher,
		Locker:      ticketLocker,
	})
	notificationService := service.NewNotificationService(notificationRepo, dispatcher, redis, logger)
	hub := stream.NewHub(ticketRepo, eventRepo, messageRepo, viewStateRepo, cfg.Stream, logger)

	// notifications registered before the hub: a subscriber's diff always
	// trails the notification record for the same mutation
	worker.Start(dispatcher, notificationService, hub)

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), accountRepo)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Accounts:       handlers.NewAccountsHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Visits:         handlers.NewVisitsHandler(visitService),
		Notifications:  handlers.NewNotificationsHandler(notificationService),
		Reports:        handlers.NewReportsHandler(ticketService),
		Stream:         handlers.NewStreamHandler(hub, metrics, logger, cfg.Stream.Heartbeat()),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	hub.CloseAll()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
