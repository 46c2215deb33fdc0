package config

import (
	"fmt"
	"log"
	"os"
	"time"
)

// Env представляет окружение приложения
type Env string

const (
	// EnvLocal - локальное окружение (для разработки на хосте)
	EnvLocal Env = "local"
	// EnvDocker - Docker окружение (для запуска в контейнерах)
	EnvDocker Env = "docker"
)

// Config содержит конфигурацию LogRelay Service
type Config struct {
	AppEnv          Env
	ShutdownTimeout time.Duration

	// HTTP API (ingest от FluentBit, запросы логов)
	HTTPAddr string

	// MongoDB (хранилище логов)
	MongoURI    string
	MongoDBName string

	// Retention: TTL индекс на поле ts
	RetentionDays int

	// Ограничения ingest/query
	MaxBatchSize      int
	QueryDefaultLimit int
	QueryMaxLimit     int

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

	if cfg.AppEnv == EnvLocal {
		cfg.HTTPAddr = getString("LOGRELAY_HTTP_ADDR", "127.0.0.1:9095")
		cfg.MongoURI = getString("LOGRELAY_MONGO_URI", "mongodb://localhost:27017")
	} else {
		cfg.HTTPAddr = getString("LOGRELAY_HTTP_ADDR", "0.0.0.0:9095")
		cfg.MongoURI = getString("LOGRELAY_MONGO_URI", "mongodb://mongo:27017")
	}
	cfg.MongoDBName = getString("LOGRELAY_MONGO_DB", "vigil_logs")

	retentionDays, err := getInt("LOGRELAY_RETENTION_DAYS", 7)
	if err != nil {
		return Config{}, fmt.Errorf("invalid LOGRELAY_RETENTION_DAYS: %w", err)
	}
	cfg.RetentionDays = retentionDays

	maxBatchSize, err := getInt("LOGRELAY_MAX_BATCH_SIZE", 1000)
	if err != nil {
		return Config{}, fmt.Errorf("invalid LOGRELAY_MAX_BATCH_SIZE: %w", err)
	}
	cfg.MaxBatchSize = maxBatchSize

	queryDefaultLimit, err := getInt("LOGRELAY_QUERY_DEFAULT_LIMIT", 100)
	if err != nil {
		return Config{}, fmt.Errorf("invalid LOGRELAY_QUERY_DEFAULT_LIMIT: %w", err)
	}
	cfg.QueryDefaultLimit = queryDefaultLimit

	queryMaxLimit, err := getInt("LOGRELAY_QUERY_MAX_LIMIT", 1000)
	if err != nil {
		return Config{}, fmt.Errorf("invalid LOGRELAY_QUERY_MAX_LIMIT: %w", err)
	}
	cfg.QueryMaxLimit = queryMaxLimit

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
		return fmt.Errorf("LOGRELAY_HTTP_ADDR is required")
	}
	if c.MongoURI == "" {
		return fmt.Errorf("LOGRELAY_MONGO_URI is required")
	}
	if c.MongoDBName == "" {
		return fmt.Errorf("LOGRELAY_MONGO_DB is required")
	}
	if c.RetentionDays <= 0 {
		return fmt.Errorf("LOGRELAY_RETENTION_DAYS must be positive")
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("LOGRELAY_MAX_BATCH_SIZE must be positive")
	}
	if c.QueryDefaultLimit <= 0 {
		return fmt.Errorf("LOGRELAY_QUERY_DEFAULT_LIMIT must be positive")
	}
	if c.QueryMaxLimit < c.QueryDefaultLimit {
		return fmt.Errorf("LOGRELAY_QUERY_MAX_LIMIT must be >= LOGRELAY_QUERY_DEFAULT_LIMIT")
	}
	if c.SamplingRatio < 0 || c.SamplingRatio > 1 {
		return fmt.Errorf("OBSERVABILITY_SAMPLING_RATIO must be in [0, 1]")
	}
	return nil
}

// Log выводит конфигурацию в лог (секреты маскируются)
func (c Config) Log() {
	log.Printf("Config loaded:")
	log.Printf("  APP_ENV: %s", c.AppEnv)
	log.Printf("  SHUTDOWN_TIMEOUT: %s", c.ShutdownTimeout)
	log.Printf("  LOGRELAY_HTTP_ADDR: %s", c.HTTPAddr)
	log.Printf("  LOGRELAY_MONGO_URI: %s", maskURI(c.MongoURI))
	log.Printf("  LOGRELAY_MONGO_DB: %s", c.MongoDBName)
	log.Printf("  LOGRELAY_RETENTION_DAYS: %d", c.RetentionDays)
	log.Printf("  LOGRELAY_MAX_BATCH_SIZE: %d", c.MaxBatchSize)
	log.Printf("  LOGRELAY_QUERY_DEFAULT_LIMIT: %d", c.QueryDefaultLimit)
	log.Printf("  LOGRELAY_QUERY_MAX_LIMIT: %d", c.QueryMaxLimit)
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

// maskURI маскирует пароль в Mongo URI для безопасного логирования
func maskURI(uri string) string {
	masked := uri
	for i := 0; i < len(uri)-1; i++ {
		if uri[i] == ':' && i+1 < len(uri) && uri[i+1] != '/' {
			for j := i + 1; j < len(uri); j++ {
				if uri[j] == '@' {
					masked = uri[:i+1] + "***" + uri[j:]
					break
				}
			}
			break
		}
	}
	return masked
}
