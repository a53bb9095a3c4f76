package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	// Broadcast timezones must resolve on minimal images.
	_ "time/tzdata"

	httptransport "github.com/spec-kit/tutor-bot/internal/api/http"
	"github.com/spec-kit/tutor-bot/internal/api/http/handlers"
	"github.com/spec-kit/tutor-bot/internal/auth"
	"github.com/spec-kit/tutor-bot/internal/catalog"
	"github.com/spec-kit/tutor-bot/internal/completion"
	"github.com/spec-kit/tutor-bot/internal/config"
	"github.com/spec-kit/tutor-bot/internal/events"
	"github.com/spec-kit/tutor-bot/internal/navigation"
	"github.com/spec-kit/tutor-bot/internal/observability"
	"github.com/spec-kit/tutor-bot/internal/persistence"
	"github.com/spec-kit/tutor-bot/internal/repository"
	"github.com/spec-kit/tutor-bot/internal/service"
	"github.com/spec-kit/tutor-bot/internal/telegram"
	"github.com/spec-kit/tutor-bot/internal/worker"
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

	var (
		userRepo repository.UserRepository
		runRepo  repository.BroadcastRunRepository
		deps     []handlers.Dependency
	)
	if cfg.Postgres.DSN != "" {
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
		userRepo = repository.NewUserRepository(pg.PoolHandle())
		runRepo = repository.NewBroadcastRunRepository(pg.PoolHandle())
		deps = append(deps, handlers.Dependency{Name: "postgres", Check: pg})
	} else {
		db, err := persistence.NewSQLite(ctx, cfg.SQLite, logger)
		if err != nil {
			logger.Fatal("failed to open sqlite", zap.Error(err))
		}
		defer db.Close()
		if err := persistence.RunSQLiteMigrations(ctx, db.DB, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		userRepo = repository.NewSQLiteUserRepository(db.DB)
		runRepo = repository.NewSQLiteBroadcastRunRepository(db.DB)
		deps = append(deps, handlers.Dependency{Name: "sqlite", Check: db})
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()
	if redis.Enabled() {
		deps = append(deps, handlers.Dependency{Name: "redis", Check: redis})
	}

	catalogStore, err := catalog.NewStore(cfg.Catalog.Path, logger)
	if err != nil {
		logger.Fatal("failed to load catalog", zap.Error(err))
	}

	provider, err := completion.NewProvider(ctx, cfg.Completion)
	if err != nil {
		logger.Fatal("failed to init completion provider", zap.Error(err))
	}
	gateway := completion.NewGateway(provider, cfg.Completion, logger)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	service.NewAuditService(dispatcher, logger, metrics).RegisterHandlers()

	quota := service.NewQuotaService(service.QuotaDependencies{
		UserRepo:   userRepo,
		Limits:     cfg.Quota.Limits,
		Period:     cfg.Quota.Period,
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	var cursors navigation.CursorStore = navigation.NewMemoryCursorStore(navigation.DefaultCursorTTL)
	if redis.Enabled() {
		cursors = navigation.NewRedisCursorStore(redis.Client, navigation.DefaultCursorTTL)
	}

	navigator := service.NewNavigatorService(service.NavigatorDependencies{
		Quota:      quota,
		Catalog:    catalogStore,
		Completer:  gateway,
		Cursors:    cursors,
		Upgrade:    cfg.Upgrade.Links(),
		Dispatcher: dispatcher,
		Logger:     logger,
		Location:   cfg.Broadcast.Location,
	})

	client, err := telegram.NewClient(cfg.Telegram)
	if err != nil {
		logger.Fatal("failed to init telegram client", zap.Error(err))
	}
	throttle := telegram.NewThrottle(redis.Client, cfg.RateLimit.PerMinute, logger)
	bot := telegram.NewBot(client, navigator, throttle, logger, metrics)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	routes := httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps...),
		Admin:          handlers.NewAdminHandler(quota, catalogStore, gateway),
		Metrics:        handlers.NewMetricsHandler(metrics),
		AuthMiddleware: authMiddleware,
	}
	webhook := cfg.Telegram.Mode == "webhook"
	if webhook {
		routes.Telegram = handlers.NewTelegramHandler(bot, cfg.Telegram.WebhookSecret)
	}
	httptransport.RegisterRoutes(app, routes)

	group, gctx := errgroup.WithContext(ctx)

	if cfg.Catalog.Watch {
		group.Go(func() error {
			if err := catalogStore.Watch(gctx); err != nil {
				logger.Warn("catalog watch stopped", zap.Error(err))
			}
			return nil
		})
	}

	if webhook {
		if err := client.SetWebhook(ctx, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
			logger.Fatal("failed to register webhook", zap.Error(err))
		}
	} else {
		poller := telegram.NewPoller(client, bot, cfg.Telegram.PollTimeout, logger)
		group.Go(func() error {
			return poller.Run(gctx)
		})
	}

	if cfg.Broadcast.Enabled {
		var marker worker.FiredMarker = runRepo
		if redis.Enabled() {
			marker = worker.NewRedisMarker(redis.Client, cfg.Broadcast.MarkerTTL())
		}
		broadcast := worker.NewBroadcastWorker(worker.BroadcastDependencies{
			Config:     cfg.Broadcast,
			Recipients: quota,
			Sender:     client,
			Marker:     marker,
			Dispatcher: dispatcher,
			Logger:     logger,
		})
		group.Go(func() error {
			return broadcast.Run(gctx)
		})
	}

	group.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()), zap.String("telegram_mode", cfg.Telegram.Mode))
		return app.Listen(cfg.App.Addr())
	})

	group.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("service stopped", zap.Error(err))
	}
	bot.Wait()
}
