package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Addr        string // API bind address, e.g. "127.0.0.1:8080" or ":8080" in Docker
	LogDir      string
	LogLevel    string
	DatabaseURL string // empty means in-memory store

	PublicAPIKeys  []string
	AdminAPIKeys   []string
	AllowedOrigins []string
	PublicRPM      int
	PublicBurst    int
	AdminRPM       int
	AdminBurst     int

	TickInterval           time.Duration
	MetricsRefreshInterval time.Duration
	MaxConcurrentChecks    int
	RetryBackoff           time.Duration
	DNSDiagnosis           bool

	NotifyBuffer    int
	SlackWebhookURL string
	AlertOnRecovery bool
	AlertCooldown   time.Duration
	KafkaBrokers    []string
	KafkaTopic      string

	ServicesConfigPath string
	SummaryDefaultDays int
}

var defaults = map[string]any{
	"api_addr":                   "127.0.0.1:8080",
	"log_dir":                    "logs",
	"log_level":                  "info",
	"database_url":               "",
	"public_api_keys":            "",
	"admin_api_keys":             "",
	"allowed_origins":            "",
	"public_rpm":                 120,
	"public_burst":               60,
	"admin_rpm":                  60,
	"admin_burst":                30,
	"tick_interval_ms":           2000,
	"metrics_refresh_interval_s": 300,
	"max_concurrent_checks":      0,
	"retry_backoff_ms":           0,
	"dns_diagnosis":              true,
	"notify_buffer":              100,
	"slack_webhook_url":          "",
	"alert_on_recovery":          true,
	"alert_cooldown_s":           600,
	"kafka_brokers":              "",
	"kafka_topic":                "fleetcheck.checks",
	"services_config_path":       "",
	"summary_default_days":       30,
}

// FromEnv reads the configuration from the environment. When CONFIG_FILE is
// set, that file (any format viper knows) supplies values the environment
// does not override.
func FromEnv() (Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Config{
		Addr:        v.GetString("api_addr"),
		LogDir:      v.GetString("log_dir"),
		LogLevel:    v.GetString("log_level"),
		DatabaseURL: v.GetString("database_url"),

		PublicAPIKeys:  splitList(v.GetString("public_api_keys")),
		AdminAPIKeys:   splitList(v.GetString("admin_api_keys")),
		AllowedOrigins: splitList(v.GetString("allowed_origins")),
		PublicRPM:      positive(v.GetInt("public_rpm"), 120),
		PublicBurst:    positive(v.GetInt("public_burst"), 60),
		AdminRPM:       positive(v.GetInt("admin_rpm"), 60),
		AdminBurst:     positive(v.GetInt("admin_burst"), 30),

		TickInterval:           time.Duration(positive(v.GetInt("tick_interval_ms"), 2000)) * time.Millisecond,
		MetricsRefreshInterval: time.Duration(positive(v.GetInt("metrics_refresh_interval_s"), 300)) * time.Second,
		MaxConcurrentChecks:    nonNegative(v.GetInt("max_concurrent_checks")),
		RetryBackoff:           time.Duration(nonNegative(v.GetInt("retry_backoff_ms"))) * time.Millisecond,
		DNSDiagnosis:           v.GetBool("dns_diagnosis"),

		NotifyBuffer:    nonNegative(v.GetInt("notify_buffer")),
		SlackWebhookURL: v.GetString("slack_webhook_url"),
		AlertOnRecovery: v.GetBool("alert_on_recovery"),
		AlertCooldown:   time.Duration(nonNegative(v.GetInt("alert_cooldown_s"))) * time.Second,
		KafkaBrokers:    splitList(v.GetString("kafka_brokers")),
		KafkaTopic:      v.GetString("kafka_topic"),

		ServicesConfigPath: v.GetString("services_config_path"),
		SummaryDefaultDays: nonNegative(v.GetInt("summary_default_days")),
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func positive(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
