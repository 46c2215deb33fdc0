package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config содержит конфигурацию для создания logger
type Config struct {
	// ServiceName имя сервиса (collector/notifier/logrelay)
	ServiceName string
	// Env окружение (local/docker)
	Env string
	// Level уровень логирования (debug/info/warn/error), default "info"
	Level string
	// Format формат вывода ("json"|"console"), default: local=console, docker=json
	Format string
	// AddCaller добавлять ли информацию о вызывающем коде, default: local=true
	AddCaller bool
}

// New создаёт новый zap.Logger с указанной конфигурацией.
// Поля service и env добавляются ко всем записям — по ним логи фильтруются
// в общем лог-хранилище.
func New(cfg Config) (*zap.Logger, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		if cfg.Env == "docker" {
			cfg.Format = "json"
		} else {
			cfg.Format = "console"
		}
	}
	if cfg.Env == "local" && !cfg.AddCaller {
		cfg.AddCaller = true
	}

	var level zapcore.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Level)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level)

	var opts []zap.Option
	if cfg.AddCaller {
		opts = append(opts, zap.AddCaller())
	}

	logger := zap.New(core, opts...).With(
		zap.String("service", cfg.ServiceName),
		zap.String("env", cfg.Env),
	)

	return logger, nil
}

// Sync безопасно вызывает log.Sync(), игнорируя harmless ошибки
// (например, "sync /dev/stderr: invalid argument" на некоторых системах)
func Sync(log *zap.Logger) {
	_ = log.Sync()
}
