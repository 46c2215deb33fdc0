package config

import (
	"fmt"
	"log"
	"os"
	"time"

	platformkafka "github.com/shestoi/vigil/platform/kafka"
)

// Env представляет окружение приложения
type Env string

const (
	// EnvLocal - локальное окружение (для разработки на хосте)
	EnvLocal Env = "local"
	// EnvDocker - Docker окружение (для запуска в контейнерах)
	EnvDocker Env = "docker"
)

// Config содержит конфигурацию Collector Service
type Config struct {
	AppEnv          Env
	ShutdownTimeout time.Duration

	// HTTP API
	HTTPAddr string

	// Pipeline: путь к yaml с scrape jobs и alert rules
	PipelineConfigPath string

	// Storage
	Retention           time.Duration
	MaxSamplesPerSeries int

	// Scrape
	ScrapeTimeout time.Duration

	// Kafka (брокеры и топики через platform/kafka, caarlos0/env)
	Kafka          platformkafka.Config
	PublishEnabled bool

	// Observability
	ObservabilityEnabled bool
	OTLPEndpoint         string
	SamplingRatio        float64
}

// Load загружает конфигурацию из переменных окружения
func Load() (Config, error) {
	cfg := Config{}

	appEnvStr := getString("APP_ENV", string(EnvLocal))
	appEnv := Env(appEnvStr)
	if appEnv != EnvLocal && appEnv != EnvDocker {
		return Config{}, fmt.Errorf("invalid APP_ENV: %s (must be 'local' or 'docker')", appEnvStr)
	}
	cfg.AppEnv = appEnv

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return Config{}, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}
	cfg.ShutdownTimeout = shutdownTimeout

	// HTTP_ADDR
	if cfg.AppEnv == EnvLocal {
		cfg.HTTPAddr = getString("COLLECTOR_HTTP_ADDR", "127.0.0.1:9090")
	} else {
		cfg.HTTPAddr = getString("COLLECTOR_HTTP_ADDR", "0.0.0.0:9090")
	}

	cfg.PipelineConfigPath = getString("COLLECTOR_PIPELINE_CONFIG", "./pipeline.yaml")

	retention, err := getDuration("COLLECTOR_RETENTION", "2h")
	if err != nil {
		return Config{}, fmt.Errorf("invalid COLLECTOR_RETENTION: %w", err)
	}
	cfg.Retention = retention

	maxSamples, err := getInt("COLLECTOR_MAX_SAMPLES_PER_SERIES", 4096)
	if err != nil {
		return Config{}, fmt.Errorf("invalid COLLECTOR_MAX_SAMPLES_PER_SERIES: %w", err)
	}
	cfg.MaxSamplesPerSeries = maxSamples

	scrapeTimeout, err := getDuration("COLLECTOR_SCRAPE_TIMEOUT", "10s")
	if err != nil {
		return Config{}, fmt.Errorf("invalid COLLECTOR_SCRAPE_TIMEOUT: %w", err)
	}
	cfg.ScrapeTimeout = scrapeTimeout

	// Kafka через platform/kafka (caarlos0/env)
	if err := platformkafka.LoadEnv(&cfg.Kafka); err != nil {
		return Config{}, fmt.Errorf("invalid kafka config: %w", err)
	}
	if len(cfg.Kafka.Brokers) == 0 {
		if cfg.AppEnv == EnvLocal {
			cfg.Kafka.Brokers = []string{"localhost:19092"}
		} else {
			cfg.Kafka.Brokers = []string{"kafka:9092"}
		}
	}

	publishEnabledStr := getString("COLLECTOR_PUBLISH_ENABLED", "true")
	cfg.PublishEnabled = publishEnabledStr == "true" || publishEnabledStr == "1"

	// Observability
	observabilityEnabledStr := getString("OBSERVABILITY_ENABLED", "false")
	cfg.ObservabilityEnabled = observabilityEnabledStr == "true" || observabilityEnabledStr == "1"
	if cfg.AppEnv == EnvLocal {
		cfg.OTLPEndpoint = getString("OTLP_ENDPOINT", "127.0.0.1:4317")
	} else {
		cfg.OTLPEndpoint = getString("OTLP_ENDPOINT", "otel-collector:4317")
	}
	samplingRatio, err := getFloat("OBSERVABILITY_SAMPLING_RATIO", 1.0)
	if err != nil {
		return Config{}, fmt.Errorf("invalid OBSERVABILITY_SAMPLING_RATIO: %w", err)
	}
	cfg.SamplingRatio = samplingRatio

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate проверяет корректность конфигурации
func (c Config) Validate() error {
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive")
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("COLLECTOR_HTTP_ADDR is required")
	}
	if c.PipelineConfigPath == "" {
		return fmt.Errorf("COLLECTOR_PIPELINE_CONFIG is required")
	}
	if c.Retention <= 0 {
		return fmt.Errorf("COLLECTOR_RETENTION must be positive")
	}
	if c.MaxSamplesPerSeries <= 0 {
		return fmt.Errorf("COLLECTOR_MAX_SAMPLES_PER_SERIES must be positive")
	}
	if c.ScrapeTimeout <= 0 {
		return fmt.Errorf("COLLECTOR_SCRAPE_TIMEOUT must be positive")
	}
	if c.PublishEnabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when COLLECTOR_PUBLISH_ENABLED=true")
		}
		if c.Kafka.AlertEventsTopic == "" {
			return fmt.Errorf("KAFKA_ALERT_EVENTS_TOPIC is required when COLLECTOR_PUBLISH_ENABLED=true")
		}
	}
	if c.SamplingRatio < 0 || c.SamplingRatio > 1 {
		return fmt.Errorf("OBSERVABILITY_SAMPLING_RATIO must be in [0, 1]")
	}
	return nil
}

// Log выводит конфигурацию в лог
func (c Config) Log() {
	log.Printf("Config loaded:")
	log.Printf("  APP_ENV: %s", c.AppEnv)
	log.Printf("  SHUTDOWN_TIMEOUT: %s", c.ShutdownTimeout)
	log.Printf("  COLLECTOR_HTTP_ADDR: %s", c.HTTPAddr)
	log.Printf("  COLLECTOR_PIPELINE_CONFIG: %s", c.PipelineConfigPath)
	log.Printf("  COLLECTOR_RETENTION: %s", c.Retention)
	log.Printf("  COLLECTOR_MAX_SAMPLES_PER_SERIES: %d", c.MaxSamplesPerSeries)
	log.Printf("  COLLECTOR_SCRAPE_TIMEOUT: %s", c.ScrapeTimeout)
	log.Printf("  KAFKA_BROKERS: %v", c.Kafka.Brokers)
	log.Printf("  KAFKA_ALERT_EVENTS_TOPIC: %s", c.Kafka.AlertEventsTopic)
	log.Printf("  COLLECTOR_PUBLISH_ENABLED: %v", c.PublishEnabled)
	log.Printf("  OBSERVABILITY_ENABLED: %v", c.ObservabilityEnabled)
	if c.ObservabilityEnabled {
		log.Printf("  OTLP_ENDPOINT: %s", c.OTLPEndpoint)
		log.Printf("  OBSERVABILITY_SAMPLING_RATIO: %v", c.SamplingRatio)
	}
}

// getString читает переменную окружения или возвращает дефолт
func getString(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getDuration читает duration из переменной окружения
func getDuration(key, defaultValue string) (time.Duration, error) {
	return time.ParseDuration(getString(key, defaultValue))
}

// getInt читает int из переменной окружения
func getInt(key string, defaultValue int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return defaultValue, nil
	}
	var result int
	if _, err := fmt.Sscanf(s, "%d", &result); err != nil {
		return defaultValue, err
	}
	return result, nil
}

// getFloat читает float из переменной окружения
func getFloat(key string, defaultValue float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return defaultValue, nil
	}
	var result float64
	if _, err := fmt.Sscanf(s, "%g", &result); err != nil {
		return defaultValue, err
	}
	return result, nil
}
