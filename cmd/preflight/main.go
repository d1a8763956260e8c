// cmd/preflight/main.go
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/fleetcheck/internal/config"
	"github.com/hamed0406/fleetcheck/internal/domain"
	"github.com/hamed0406/fleetcheck/internal/loader"
	"github.com/hamed0406/fleetcheck/internal/repo/postgres"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg, err := config.FromEnv()
	if err != nil {
		fail("config: " + err.Error())
	}

	if len(cfg.AdminAPIKeys) == 0 {
		fail("ADMIN_API_KEYS is empty (admin routes are open).")
	}
	if len(cfg.PublicAPIKeys) == 0 {
		warn("PUBLIC_API_KEYS is empty; read routes accept any caller.")
	}
	for name, keys := range map[string][]string{"ADMIN_API_KEYS": cfg.AdminAPIKeys, "PUBLIC_API_KEYS": cfg.PublicAPIKeys} {
		for _, k := range keys {
			if len(k) < 16 {
				warn(name + " has a key shorter than 16 characters")
				break
			}
		}
	}

	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		fail("API_ADDR " + cfg.Addr + " is not host:port")
	}
	ok("API_ADDR=" + cfg.Addr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if cfg.DatabaseURL == "" {
		warn("DATABASE_URL empty; the API will use the in-memory store and lose data on restart.")
	} else {
		st, err := postgres.New(ctx, cfg.DatabaseURL, zap.NewNop())
		if err != nil {
			fail("DATABASE_URL unreachable: " + err.Error())
		}
		st.Close()
		ok("DATABASE_URL reachable")
	}

	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty; CORS allows every origin.")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}

	if cfg.SlackWebhookURL != "" {
		if err := domain.ValidateHTTPURL(cfg.SlackWebhookURL); err != nil {
			fail("SLACK_WEBHOOK_URL: " + err.Error())
		}
		ok("Slack alerts enabled")
	}
	if len(cfg.KafkaBrokers) > 0 {
		for _, b := range cfg.KafkaBrokers {
			if _, _, err := net.SplitHostPort(b); err != nil {
				fail("KAFKA_BROKERS entry " + b + " is not host:port")
			}
		}
		ok("Kafka sink enabled, topic " + cfg.KafkaTopic)
	}

	if cfg.ServicesConfigPath != "" {
		if _, err := os.Stat(cfg.ServicesConfigPath); err != nil {
			fail("SERVICES_CONFIG_PATH: " + err.Error())
		}
		ok("SERVICES_CONFIG_PATH=" + cfg.ServicesConfigPath)
	} else {
		found := false
		for _, p := range loader.DefaultPaths {
			if _, err := os.Stat(p); err == nil {
				ok("services file " + p)
				found = true
				break
			}
		}
		if !found {
			warn("no services file; register services through the API.")
		}
	}

	ok("preflight passed")
}
