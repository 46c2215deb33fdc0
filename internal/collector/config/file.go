package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration обёртка над time.Duration с поддержкой yaml ("15s", "1m")
type Duration time.Duration

// UnmarshalYAML парсит duration из yaml-строки
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std возвращает значение как time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ScrapeJobConfig описание одного scrape job-а в pipeline.yaml
type ScrapeJobConfig struct {
	JobName        string            `yaml:"job_name"`
	ScrapeInterval Duration          `yaml:"scrape_interval"`
	MetricsPath    string            `yaml:"metrics_path"`
	StaticTargets  []string          `yaml:"static_targets"`
	Labels         map[string]string `yaml:"labels"`
}

// AlertRuleConfig описание одного алертинг-правила в pipeline.yaml
type AlertRuleConfig struct {
	Name        string            `yaml:"name"`
	Expr        string            `yaml:"expr"`
	For         Duration          `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

// FileConfig содержимое pipeline.yaml: scrape jobs плюс alert rules.
// Пример:
//
//	evaluation_interval: 30s
//	scrape_configs:
//	  - job_name: node
//	    scrape_interval: 15s
//	    static_targets: ["localhost:9100"]
//	    labels: {env: dev}
//	alert_rules:
//	  - name: InstanceDown
//	    expr: up < 1
//	    for: 1m
//	    labels: {severity: critical}
//	    annotations: {summary: "Target is down"}
type FileConfig struct {
	EvaluationInterval Duration          `yaml:"evaluation_interval"`
	ScrapeConfigs      []ScrapeJobConfig `yaml:"scrape_configs"`
	AlertRules         []AlertRuleConfig `yaml:"alert_rules"`
}

// LoadFile читает и валидирует pipeline.yaml
func LoadFile(path string) (FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read pipeline config: %w", err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse pipeline config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return FileConfig{}, fmt.Errorf("pipeline config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate проверяет структурную корректность pipeline.yaml.
// Выражения правил валидируются при построении engine-а.
func (c FileConfig) Validate() error {
	if len(c.ScrapeConfigs) == 0 {
		return fmt.Errorf("scrape_configs must not be empty")
	}

	seenJobs := make(map[string]bool)
	for i, job := range c.ScrapeConfigs {
		if job.JobName == "" {
			return fmt.Errorf("scrape_configs[%d]: job_name is required", i)
		}
		if seenJobs[job.JobName] {
			return fmt.Errorf("scrape_configs[%d]: duplicate job_name %q", i, job.JobName)
		}
		seenJobs[job.JobName] = true
		if len(job.StaticTargets) == 0 {
			return fmt.Errorf("scrape_configs[%d] (%s): static_targets must not be empty", i, job.JobName)
		}
		for j, target := range job.StaticTargets {
			if target == "" {
				return fmt.Errorf("scrape_configs[%d] (%s): static_targets[%d] is empty", i, job.JobName, j)
			}
		}
	}

	seenRules := make(map[string]bool)
	for i, rule := range c.AlertRules {
		if rule.Name == "" {
			return fmt.Errorf("alert_rules[%d]: name is required", i)
		}
		if seenRules[rule.Name] {
			return fmt.Errorf("alert_rules[%d]: duplicate name %q", i, rule.Name)
		}
		seenRules[rule.Name] = true
		if rule.Expr == "" {
			return fmt.Errorf("alert_rules[%d] (%s): expr is required", i, rule.Name)
		}
		if rule.For.Std() < 0 {
			return fmt.Errorf("alert_rules[%d] (%s): for must not be negative", i, rule.Name)
		}
	}

	return nil
}
