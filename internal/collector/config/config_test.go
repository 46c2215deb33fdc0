package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_LocalDefaults(t *testing.T) {
	// Очищаем env
	os.Clearenv()
	os.Setenv("APP_ENV", "local")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.AppEnv != EnvLocal {
		t.Errorf("Expected AppEnv=local, got %s", cfg.AppEnv)
	}
	if cfg.HTTPAddr != "127.0.0.1:9090" {
		t.Errorf("Expected HTTPAddr=127.0.0.1:9090, got %s", cfg.HTTPAddr)
	}
	if cfg.Retention != 2*time.Hour {
		t.Errorf("Expected Retention=2h, got %s", cfg.Retention)
	}
	if len(cfg.Kafka.Brokers) != 1 || cfg.Kafka.Brokers[0] != "localhost:19092" {
		t.Errorf("Expected Kafka brokers [localhost:19092], got %v", cfg.Kafka.Brokers)
	}
	if cfg.Kafka.AlertEventsTopic != "vigil.alerts.events" {
		t.Errorf("Expected topic vigil.alerts.events, got %s", cfg.Kafka.AlertEventsTopic)
	}
}

func TestLoad_DockerDefaults(t *testing.T) {
	os.Clearenv()
	os.Setenv("APP_ENV", "docker")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.AppEnv != EnvDocker {
		t.Errorf("Expected AppEnv=docker, got %s", cfg.AppEnv)
	}
	if cfg.HTTPAddr != "0.0.0.0:9090" {
		t.Errorf("Expected HTTPAddr=0.0.0.0:9090, got %s", cfg.HTTPAddr)
	}
	if len(cfg.Kafka.Brokers) != 1 || cfg.Kafka.Brokers[0] != "kafka:9092" {
		t.Errorf("Expected Kafka brokers [kafka:9092], got %v", cfg.Kafka.Brokers)
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	os.Clearenv()
	os.Setenv("APP_ENV", "staging")

	_, err := Load()
	if err == nil {
		t.Fatal("Expected error for invalid APP_ENV")
	}
}

const validPipelineYAML = `
evaluation_interval: 30s
scrape_configs:
  - job_name: node
    scrape_interval: 15s
    static_targets: ["localhost:9100"]
    labels:
      env: dev
  - job_name: api
    static_targets: ["localhost:8080", "localhost:8081"]
alert_rules:
  - name: InstanceDown
    expr: up < 1
    for: 1m
    labels:
      severity: critical
    annotations:
      summary: "Target is down"
`

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeTempFile(t, validPipelineYAML)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}

	if cfg.EvaluationInterval.Std() != 30*time.Second {
		t.Errorf("Expected evaluation_interval=30s, got %s", cfg.EvaluationInterval.Std())
	}
	if len(cfg.ScrapeConfigs) != 2 {
		t.Fatalf("Expected 2 scrape configs, got %d", len(cfg.ScrapeConfigs))
	}
	if cfg.ScrapeConfigs[0].JobName != "node" {
		t.Errorf("Expected job_name=node, got %s", cfg.ScrapeConfigs[0].JobName)
	}
	if cfg.ScrapeConfigs[0].ScrapeInterval.Std() != 15*time.Second {
		t.Errorf("Expected scrape_interval=15s, got %s", cfg.ScrapeConfigs[0].ScrapeInterval.Std())
	}
	if cfg.ScrapeConfigs[0].Labels["env"] != "dev" {
		t.Errorf("Expected label env=dev, got %v", cfg.ScrapeConfigs[0].Labels)
	}
	if len(cfg.AlertRules) != 1 {
		t.Fatalf("Expected 1 alert rule, got %d", len(cfg.AlertRules))
	}
	if cfg.AlertRules[0].For.Std() != time.Minute {
		t.Errorf("Expected for=1m, got %s", cfg.AlertRules[0].For.Std())
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	cases := map[string]string{
		"no scrape configs": `
alert_rules:
  - name: X
    expr: up < 1
`,
		"empty job name": `
scrape_configs:
  - static_targets: ["localhost:9100"]
`,
		"no targets": `
scrape_configs:
  - job_name: node
`,
		"duplicate job": `
scrape_configs:
  - job_name: node
    static_targets: ["a:1"]
  - job_name: node
    static_targets: ["b:2"]
`,
		"rule without expr": `
scrape_configs:
  - job_name: node
    static_targets: ["a:1"]
alert_rules:
  - name: X
`,
		"bad duration": `
scrape_configs:
  - job_name: node
    scrape_interval: fifteen
    static_targets: ["a:1"]
`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeTempFile(t, content)
			if _, err := LoadFile(path); err == nil {
				t.Errorf("Expected error for %s", name)
			}
		})
	}
}

func TestLoadFile_NotFound(t *testing.T) {
	if _, err := LoadFile("/nonexistent/pipeline.yaml"); err == nil {
		t.Fatal("Expected error for missing file")
	}
}
