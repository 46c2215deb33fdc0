package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	platformlogging "github.com/shestoi/vigil/platform/logging"
	platformobservability "github.com/shestoi/vigil/platform/observability"
	platformshutdown "github.com/shestoi/vigil/platform/shutdown"

	httpapi "github.com/shestoi/vigil/internal/collector/api/http"
	"github.com/shestoi/vigil/internal/collector/config"
	eventkafka "github.com/shestoi/vigil/internal/collector/event/kafka"
	"github.com/shestoi/vigil/internal/collector/rules"
	"github.com/shestoi/vigil/internal/collector/scrape"
	"github.com/shestoi/vigil/internal/collector/tsdb"
)

// App содержит все зависимости для запуска и корректного shutdown Collector Service
type App struct {
	logger      *zap.Logger
	httpServer  *http.Server
	manager     *scrape.Manager
	engine      *rules.Engine
	ready       *atomic.Bool
	shutdownMgr *platformshutdown.Manager
	wg          sync.WaitGroup
}

// Build создаёт и настраивает все зависимости Collector Service
func Build(cfg config.Config) (*App, error) {
	const op = "app.Build"

	// Создаём logger
	logger, err := platformlogging.New(platformlogging.Config{
		ServiceName: "collector",
		Env:         string(cfg.AppEnv),
		Level:       os.Getenv("LOG_LEVEL"),
		Format:      os.Getenv("LOG_FORMAT"),
	})
	if err != nil {
		return nil, err
	}

	logger = logger.With(zap.String("op", op))
	logger.Info("Building Collector service",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("pipeline_config", cfg.PipelineConfigPath),
		zap.Duration("retention", cfg.Retention),
		zap.Bool("publish_enabled", cfg.PublishEnabled),
	)

	// Инициализируем observability (noop если выключена)
	obsShutdown, err := platformobservability.Init(context.Background(), platformobservability.Config{
		Enabled:               cfg.ObservabilityEnabled,
		ServiceName:           "collector",
		DeploymentEnvironment: string(cfg.AppEnv),
		OTLPEndpoint:          cfg.OTLPEndpoint,
		SamplingRatio:         cfg.SamplingRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init observability: %w", err)
	}

	// Читаем pipeline.yaml: scrape jobs и alert rules
	fileCfg, err := config.LoadFile(cfg.PipelineConfigPath)
	if err != nil {
		return nil, err
	}
	logger.Info("Pipeline config loaded",
		zap.Int("scrape_jobs", len(fileCfg.ScrapeConfigs)),
		zap.Int("alert_rules", len(fileCfg.AlertRules)),
	)

	// Хранилище временных рядов
	storage := tsdb.NewStorage(cfg.Retention, cfg.MaxSamplesPerSeries)

	// Scrape manager по job-ам из конфигурации
	jobs := make([]scrape.JobConfig, 0, len(fileCfg.ScrapeConfigs))
	for _, jc := range fileCfg.ScrapeConfigs {
		jobs = append(jobs, scrape.JobConfig{
			JobName:        jc.JobName,
			ScrapeInterval: jc.ScrapeInterval.Std(),
			MetricsPath:    jc.MetricsPath,
			Targets:        jc.StaticTargets,
			Labels:         jc.Labels,
		})
	}
	scraper := scrape.NewScraper(cfg.ScrapeTimeout)
	manager := scrape.NewManager(logger, storage, scraper, jobs)

	// Парсим выражения правил на старте: ошибка в правиле валит запуск сервиса
	ruleList := make([]rules.Rule, 0, len(fileCfg.AlertRules))
	for _, rc := range fileCfg.AlertRules {
		expr, parseErr := rules.ParseExpr(rc.Expr)
		if parseErr != nil {
			return nil, fmt.Errorf("alert rule %q: %w", rc.Name, parseErr)
		}
		ruleList = append(ruleList, rules.Rule{
			Name:        rc.Name,
			Expr:        expr,
			For:         rc.For.Std(),
			Labels:      rc.Labels,
			Annotations: rc.Annotations,
		})
	}

	// Kafka publisher событий алертов (nil = переходы только логируются)
	var publisher rules.AlertPublisher
	var kafkaPublisher *eventkafka.AlertEventPublisher
	if cfg.PublishEnabled {
		kafkaPublisher = eventkafka.NewAlertEventPublisher(logger, cfg.Kafka.Brokers, cfg.Kafka.AlertEventsTopic)
		publisher = kafkaPublisher
		logger.Info("Alert event publisher enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.AlertEventsTopic),
		)
	} else {
		logger.Warn("Alert event publishing disabled, transitions are logged only")
	}

	engine := rules.NewEngine(logger, storage, ruleList, publisher, fileCfg.EvaluationInterval.Std())

	// Readiness выставляется в Run после старта scrape manager-а и rule engine-а
	// и снимается на shutdown
	ready := &atomic.Bool{}

	// HTTP API
	handler := httpapi.NewHandler(logger, storage, manager, engine)
	router := httpapi.NewRouter(handler, ready.Load, logger)
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Создаём shutdown manager
	shutdownMgr := platformshutdown.New(cfg.ShutdownTimeout, logger)

	// Регистрируем shutdown функции в обратном порядке выполнения
	shutdownMgr.Add("http_server", platformshutdown.ShutdownHTTPServer(httpServer))
	if kafkaPublisher != nil {
		shutdownMgr.Add("alert_publisher", func(ctx context.Context) error {
			return kafkaPublisher.Close()
		})
	}
	shutdownMgr.Add("observability", obsShutdown)

	return &App{
		logger:      logger,
		httpServer:  httpServer,
		manager:     manager,
		engine:      engine,
		ready:       ready,
		shutdownMgr: shutdownMgr,
	}, nil
}

// Run запускает сервис и блокируется до получения сигнала shutdown
func (a *App) Run() error {
	defer platformlogging.Sync(a.logger)

	a.logger.Info("Starting Collector service")

	// Контекст для фоновых циклов (scrape, rule engine)
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

	// Запускаем scrape manager
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.manager.Start(ctx)
	}()

	// Запускаем rule engine
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.engine.Run(ctx)
	}()

	a.ready.Store(true)
	a.logger.Info("Scrape manager and rule engine started")

	// Ожидаем сигнал и выполняем shutdown
	a.shutdownMgr.Wait()
	a.ready.Store(false)

	// Отменяем контекст фоновых циклов
	cancel()

	// Ждём завершения всех горутин
	a.wg.Wait()

	a.logger.Info("Collector service stopped")
	return nil
}
