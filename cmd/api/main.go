package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kursadbilgin/stock-console/internal/completion"
	"github.com/kursadbilgin/stock-console/internal/config"
	"github.com/kursadbilgin/stock-console/internal/handler"
	"github.com/kursadbilgin/stock-console/internal/infra/postgresql"
	"github.com/kursadbilgin/stock-console/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/stock-console/internal/infra/redis"
	"github.com/kursadbilgin/stock-console/internal/observability"
	"github.com/kursadbilgin/stock-console/internal/provider"
	"github.com/kursadbilgin/stock-console/internal/queue"
	"github.com/kursadbilgin/stock-console/internal/repository"
	"github.com/kursadbilgin/stock-console/internal/service"
	"github.com/kursadbilgin/stock-console/internal/storage"
	"github.com/kursadbilgin/stock-console/internal/transport"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 30 * time.Second
	// Uploads may carry several spreadsheets in one form.
	bodyLimit = 128 << 20
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.Stage)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("stock-console api stopped with error", zap.Error(err))
	}
	logger.Info("stock-console api stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	metrics := observability.NewMetrics()

	db, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN, postgresql.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}
	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	objects, err := storage.NewMinioStore(
		storage.WithEndpoint(cfg.MinioEndpoint),
		storage.WithAccessKey(cfg.MinioAccessKey),
		storage.WithSecretKey(cfg.MinioSecretKey),
		storage.WithSSL(cfg.MinioUseSSL),
	)
	if err != nil {
		return fmt.Errorf("object storage initialization failed: %w", err)
	}

	var rabbit *queue.RabbitMQ
	if cfg.NeedsRabbitMQ() {
		rabbit, err = queue.NewRabbitMQ(cfg.RabbitMQURL, queue.Topology{
			Queues:    []string{cfg.NotificationQueue},
			Exchanges: []string{cfg.EventBus},
		})
		if err != nil {
			return fmt.Errorf("rabbitmq initialization failed: %w", err)
		}
		defer rabbit.Close()
	}

	channel, closeChannel, err := newNotificationChannel(cfg, rabbit, rdb, logger)
	if err != nil {
		return err
	}
	defer closeChannel()

	trigger, err := newJobTrigger(cfg, rabbit)
	if err != nil {
		return err
	}

	protocol, err := completion.NewProtocol(channel, completion.Options{
		WaitPerUnit:     cfg.UploadWaitPerFile,
		PollInterval:    cfg.PollInterval,
		MaxPollInterval: cfg.PollMaxInterval,
		MaxWait:         cfg.PollMaxWait,
	}, logger)
	if err != nil {
		return fmt.Errorf("completion protocol init failed: %w", err)
	}
	protocol.SetMetrics(metrics)

	actions, err := service.NewActionLogger(objects, cfg.ProjectBucket, logger)
	if err != nil {
		return fmt.Errorf("action logger init failed: %w", err)
	}

	stockFeed, err := service.NewStockFeedService(objects, protocol, actions, cfg.StockFeedBucket, logger)
	if err != nil {
		return fmt.Errorf("stock feed service init failed: %w", err)
	}
	stockFeed.SetMetrics(metrics)

	ebay, err := service.NewEbayExportService(objects, protocol, trigger, cfg.GenerateTrigger, actions, cfg.ProjectBucket, logger)
	if err != nil {
		return fmt.Errorf("ebay export service init failed: %w", err)
	}
	ebay.SetMetrics(metrics)

	configService, err := service.NewConfigService(objects, actions, cfg.ProjectBucket, logger)
	if err != nil {
		return fmt.Errorf("config service init failed: %w", err)
	}

	tables, err := service.NewTableService(repository.NewGormTableRepo(db), nil, actions, logger)
	if err != nil {
		return fmt.Errorf("table service init failed: %w", err)
	}

	items, err := service.NewBulkItemService(objects, actions, cfg.ProjectBucket, logger)
	if err != nil {
		return fmt.Errorf("bulk item service init failed: %w", err)
	}

	sessions, err := infraredis.NewSessionStore(rdb, cfg.SessionTTL)
	if err != nil {
		return fmt.Errorf("session store init failed: %w", err)
	}

	limiter, err := infraredis.NewRedisRateLimiter(rdb, "login", cfg.LoginAttemptsPerMin, time.Minute)
	if err != nil {
		return fmt.Errorf("login rate limiter init failed: %w", err)
	}

	app := fiber.New(fiber.Config{
		AppName:      "stock-console",
		ErrorHandler: transport.ErrorHandler(logger),
		BodyLimit:    bodyLimit,
		ReadTimeout:  time.Minute,
		// Completion polls hold the request open for up to POLL_MAX_WAIT.
		WriteTimeout: cfg.PollMaxWait + time.Minute,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(handler.RequestContext())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, metrics,
		handler.PostgresCheck(sqlDB),
		handler.RedisCheck(rdb),
		handler.ReadinessCheck{Name: "object_storage", Ping: func(ctx context.Context) error {
			return objects.BucketExists(ctx, cfg.ProjectBucket)
		}},
	)
	if err := handler.RegisterAPIRoutes(app, handler.Dependencies{
		Sessions:    sessions,
		Limiter:     limiter,
		Credentials: handler.Credentials{Username: cfg.AdminUsername, Password: cfg.AdminPassword},
		StockFeed:   stockFeed,
		Ebay:        ebay,
		Config:      configService,
		Actions:     actions,
		Tables:      tables,
		Items:       items,
		Query:       repository.NewGormQueryRunner(db),
	}); err != nil {
		return fmt.Errorf("route registration failed: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("stock-console api started",
			zap.Int("port", cfg.APIPort),
			zap.String("stage", cfg.Stage),
			zap.String("notificationBackend", cfg.NotificationBackend),
			zap.String("generateTrigger", cfg.GenerateTrigger),
		)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newNotificationChannel(
	cfg *config.Config,
	rabbit *queue.RabbitMQ,
	rdb redis.UniversalClient,
	logger *zap.Logger,
) (queue.NotificationChannel, func(), error) {
	switch cfg.NotificationBackend {
	case config.BackendRedis:
		ch, err := queue.NewRedisStreamChannel(rdb, cfg.NotificationQueue)
		if err != nil {
			return nil, nil, fmt.Errorf("redis notification channel init failed: %w", err)
		}
		return ch, func() { _ = ch.Close() }, nil
	default:
		ch, err := queue.NewRabbitMQChannel(rabbit, cfg.NotificationQueue, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("rabbitmq notification channel init failed: %w", err)
		}
		return ch, func() { _ = ch.Close() }, nil
	}
}

func newJobTrigger(cfg *config.Config, rabbit *queue.RabbitMQ) (provider.JobTrigger, error) {
	switch cfg.GenerateTrigger {
	case config.TriggerInvoke:
		invoker, err := provider.NewFunctionInvoker(cfg.GenerateFunctionURL)
		if err != nil {
			return nil, fmt.Errorf("function invoker init failed: %w", err)
		}
		return invoker, nil
	default:
		trigger, err := provider.NewEventTrigger(queue.NewRabbitMQPublisher(rabbit), cfg.EventBus, provider.EventSource)
		if err != nil {
			return nil, fmt.Errorf("event trigger init failed: %w", err)
		}
		return trigger, nil
	}
}
