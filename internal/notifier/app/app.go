package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql драйвер для goose миграций

	platformhealthgrpc "github.com/shestoi/vigil/platform/health/grpc"
	platformlogging "github.com/shestoi/vigil/platform/logging"
	platformobservability "github.com/shestoi/vigil/platform/observability"
	platformshutdown "github.com/shestoi/vigil/platform/shutdown"

	httpapi "github.com/shestoi/vigil/internal/notifier/api/http"
	"github.com/shestoi/vigil/internal/notifier/config"
	eventkafka "github.com/shestoi/vigil/internal/notifier/event/kafka"
	pgrepo "github.com/shestoi/vigil/internal/notifier/repository/postgres"
	redisstate "github.com/shestoi/vigil/internal/notifier/repository/redis"
	"github.com/shestoi/vigil/internal/notifier/service"
	"github.com/shestoi/vigil/internal/notifier/telegram"
	"github.com/shestoi/vigil/internal/notifier/templates"
	"github.com/shestoi/vigil/internal/notifier/webhook"
)

// App содержит все зависимости для запуска и корректного shutdown Notifier Service
type App struct {
	logger       *zap.Logger
	httpServer   *http.Server
	grpcServer   *grpc.Server
	grpcListener net.Listener
	consumer     *eventkafka.AlertEventConsumer
	shutdownMgr  *platformshutdown.Manager
	wg           sync.WaitGroup
}

// Build создаёт и настраивает все зависимости Notifier Service
func Build(cfg config.Config) (*App, error) {
	const op = "app.Build"

	ctx := context.Background()

	// Создаём logger
	logger, err := platformlogging.New(platformlogging.Config{
		ServiceName: "notifier",
		Env:         string(cfg.AppEnv),
		Level:       os.Getenv("LOG_LEVEL"),
		Format:      os.Getenv("LOG_FORMAT"),
	})
	if err != nil {
		return nil, err
	}

	logger = logger.With(zap.String("op", op))
	logger.Info("Building Notifier service",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("grpc_addr", cfg.GRPCAddr),
		zap.String("kafka_group_id", cfg.KafkaGroupID),
	)

	// Инициализируем observability (noop если выключена)
	obsShutdown, err := platformobservability.Init(ctx, platformobservability.Config{
		Enabled:               cfg.ObservabilityEnabled,
		ServiceName:           "notifier",
		DeploymentEnvironment: string(cfg.AppEnv),
		OTLPEndpoint:          cfg.OTLPEndpoint,
		SamplingRatio:         cfg.SamplingRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init observability: %w", err)
	}

	// Применяем goose миграции перед подключением pool-а
	if err := runMigrations(cfg.PostgresDSN, cfg.MigrationsDir); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("Migrations applied", zap.String("dir", cfg.MigrationsDir))

	// Подключаемся к PostgreSQL
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	logger.Info("Connected to PostgreSQL")

	// Подключаемся к Redis
	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	logger.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))

	repo := pgrepo.NewRepository(pool)
	state := redisstate.NewStateRepository(redisClient, logger)

	// Канал доставки Telegram
	var telegramSender telegram.Sender
	if cfg.TelegramEnabled {
		telegramSender = telegram.NewTelegramSender(logger, cfg.TelegramBotToken)
		logger.Info("Telegram delivery enabled", zap.String("chat_id", cfg.TelegramChatID))
	} else {
		telegramSender = telegram.NewNoOpSender(logger)
		logger.Warn("Telegram delivery disabled, notifications are logged only")
	}

	// Канал доставки webhook (nil = выключен)
	var webhookSender service.WebhookSender
	if cfg.WebhookEnabled {
		webhookSender = webhook.NewSender(logger, cfg.WebhookURL)
		logger.Info("Webhook delivery enabled", zap.String("url", cfg.WebhookURL))
	}

	renderer, err := templates.NewRenderer(logger, cfg.TemplatesDir)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to load notification templates: %w", err)
	}

	svc := service.NewNotifierService(
		logger,
		repo,
		repo,
		state,
		telegramSender,
		cfg.TelegramChatID,
		webhookSender,
		renderer,
		cfg.DedupTTL,
		cfg.RepeatInterval,
	)

	// Kafka consumer событий алертов с DLQ
	dlqPublisher := eventkafka.NewDLQPublisher(logger, cfg.Kafka.Brokers, cfg.Kafka.DLQTopic)
	consumer := eventkafka.NewAlertEventConsumer(
		logger,
		cfg.Kafka.Brokers,
		cfg.KafkaGroupID,
		cfg.Kafka.AlertEventsTopic,
		svc,
		dlqPublisher,
		cfg.RetryMaxAttempts,
		cfg.RetryBackoffBase,
	)

	if cfg.APIKeyHash == "" {
		logger.Warn("NOTIFIER_API_KEY_HASH is empty, mutating endpoints are unprotected")
	}

	// Readiness: сервис готов, когда доступны PostgreSQL и Redis
	readiness := func() bool {
		checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(checkCtx); err != nil {
			return false
		}
		return redisClient.Ping(checkCtx).Err() == nil
	}

	// HTTP API: webhook ingest, silences, история
	handler := httpapi.NewHandler(logger, svc)
	alertmanagerHandler := httpapi.NewAlertmanagerHandler(logger, svc)
	router := httpapi.NewRouter(handler, alertmanagerHandler, cfg.APIKeyHash, readiness, logger)
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// gRPC сервер с health service (для k8s grpc probes)
	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(platformobservability.GRPCUnaryServerInterceptor("notifier")),
	)
	healthSrv := platformhealthgrpc.New(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	healthSrv.Register(grpcServer)

	// Зависимости уже проверены ping-ами выше
	healthSrv.SetServing("")

	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.GRPCAddr, err)
	}

	// Создаём shutdown manager
	shutdownMgr := platformshutdown.New(cfg.ShutdownTimeout, logger)

	// Регистрируем shutdown функции в обратном порядке выполнения
	shutdownMgr.Add("observability", obsShutdown)
	shutdownMgr.Add("postgres_pool", platformshutdown.ClosePool(pool))
	shutdownMgr.Add("redis_client", platformshutdown.CloseRedis(redisClient))
	shutdownMgr.Add("dlq_publisher", func(ctx context.Context) error {
		return dlqPublisher.Close()
	})
	shutdownMgr.Add("kafka_consumer", func(ctx context.Context) error {
		return consumer.Close()
	})
	shutdownMgr.Add("health_not_serving", platformshutdown.SetHealthNotServing(healthSrv))
	shutdownMgr.Add("grpc_server", platformshutdown.ShutdownGRPCServer(grpcServer))
	shutdownMgr.Add("http_server", platformshutdown.ShutdownHTTPServer(httpServer))

	return &App{
		logger:       logger,
		httpServer:   httpServer,
		grpcServer:   grpcServer,
		grpcListener: grpcListener,
		consumer:     consumer,
		shutdownMgr:  shutdownMgr,
	}, nil
}

// runMigrations применяет goose миграции через database/sql (pgx stdlib драйвер)
func runMigrations(dsn, migrationsDir string) error {
	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open db for migrations: %w", err)
	}
	defer db.Close()

	if err := goose.Up(db, migrationsDir); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Run запускает сервис и блокируется до получения сигнала shutdown
func (a *App) Run() error {
	defer platformlogging.Sync(a.logger)

	a.logger.Info("Starting Notifier service")

	// Контекст для consumer-а
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Запускаем HTTP сервер
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	a.logger.Info("HTTP server listening", zap.String("addr", a.httpServer.Addr))

	// Запускаем gRPC сервер (health)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.grpcServer.Serve(a.grpcListener); err != nil {
			a.logger.Error("gRPC server error", zap.Error(err))
		}
	}()
	a.logger.Info("gRPC server listening", zap.String("addr", a.grpcListener.Addr().String()))

	// Запускаем Kafka consumer
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.consumer.Start(ctx); err != nil {
			a.logger.Error("Kafka consumer error", zap.Error(err))
		}
	}()

	// Ожидаем сигнал и выполняем shutdown
	a.shutdownMgr.Wait()

	// Отменяем контекст consumer-а
	cancel()

	// Ждём завершения всех горутин
	a.wg.Wait()

	a.logger.Info("Notifier service stopped")
	return nil
}
