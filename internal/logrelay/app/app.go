package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	platformlogging "github.com/shestoi/vigil/platform/logging"
	platformobservability "github.com/shestoi/vigil/platform/observability"
	platformshutdown "github.com/shestoi/vigil/platform/shutdown"

	httpapi "github.com/shestoi/vigil/internal/logrelay/api/http"
	"github.com/shestoi/vigil/internal/logrelay/config"
	mongorepo "github.com/shestoi/vigil/internal/logrelay/repository/mongo"
	"github.com/shestoi/vigil/internal/logrelay/service"
)

// App содержит все зависимости для запуска и корректного shutdown LogRelay Service
type App struct {
	logger      *zap.Logger
	httpServer  *http.Server
	shutdownMgr *platformshutdown.Manager
	wg          sync.WaitGroup
}

// Build создаёт и настраивает все зависимости LogRelay Service
func Build(cfg config.Config) (*App, error) {
	const op = "app.Build"

	// Создаём logger
	logger, err := platformlogging.New(platformlogging.Config{
		ServiceName: "logrelay",
		Env:         string(cfg.AppEnv),
		Level:       os.Getenv("LOG_LEVEL"),
		Format:      os.Getenv("LOG_FORMAT"),
	})
	if err != nil {
		return nil, err
	}

	logger = logger.With(zap.String("op", op))
	logger.Info("Building LogRelay service",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("mongo_db", cfg.MongoDBName),
		zap.Int("retention_days", cfg.RetentionDays),
	)

	// Инициализируем observability (noop если выключена)
	obsShutdown, err := platformobservability.Init(context.Background(), platformobservability.Config{
		Enabled:               cfg.ObservabilityEnabled,
		ServiceName:           "logrelay",
		DeploymentEnvironment: string(cfg.AppEnv),
		OTLPEndpoint:          cfg.OTLPEndpoint,
		SamplingRatio:         cfg.SamplingRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init observability: %w", err)
	}

	// Подключаемся к MongoDB
	logger.Info("Connecting to MongoDB")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	logger.Info("MongoDB connection established")

	repo, err := mongorepo.NewRepository(client, cfg.MongoDBName, cfg.RetentionDays)
	if err != nil {
		client.Disconnect(ctx)
		return nil, err
	}

	svc := service.NewLogRelayService(logger, repo, cfg.MaxBatchSize, cfg.QueryDefaultLimit, cfg.QueryMaxLimit)

	// Readiness: сервис готов, когда доступна MongoDB
	readiness := func() bool {
		checkCtx, checkCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer checkCancel()
		return client.Ping(checkCtx, nil) == nil
	}

	// HTTP API
	handler := httpapi.NewHandler(logger, svc)
	router := httpapi.NewRouter(handler, readiness, logger)
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Создаём shutdown manager
	shutdownMgr := platformshutdown.New(cfg.ShutdownTimeout, logger)

	// Регистрируем shutdown функции в обратном порядке выполнения
	shutdownMgr.Add("observability", obsShutdown)
	shutdownMgr.Add("mongodb", platformshutdown.DisconnectMongo(client))
	shutdownMgr.Add("http_server", platformshutdown.ShutdownHTTPServer(httpServer))

	return &App{
		logger:      logger,
		httpServer:  httpServer,
		shutdownMgr: shutdownMgr,
	}, nil
}

// Run запускает сервис и блокируется до получения сигнала shutdown
func (a *App) Run() error {
	defer platformlogging.Sync(a.logger)

	a.logger.Info("Starting LogRelay service")

	// Запускаем HTTP сервер
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	a.logger.Info("HTTP server listening", zap.String("addr", a.httpServer.Addr))

	// Ожидаем сигнал и выполняем shutdown
	a.shutdownMgr.Wait()

	a.wg.Wait()
	a.logger.Info("LogRelay service stopped")
	return nil
}
