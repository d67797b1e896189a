package cmd

import (
	"testing"

	"splitrelay/pkg/config"
)

func TestLoggingForDefaultsToDebugInDev(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Env: "development"}
	if got := loggingFor(cfg).Level; got != "debug" {
		t.Fatalf("level = %q, want debug", got)
	}

	cfg = &config.Config{Env: "production"}
	if got := loggingFor(cfg).Level; got != "" {
		t.Fatalf("level = %q, want empty (logger default)", got)
	}

	cfg = &config.Config{Env: "development", Logging: config.LoggingConfig{Level: "warn"}}
	if got := loggingFor(cfg).Level; got != "warn" {
		t.Fatalf("level = %q, want explicit warn", got)
	}
}

func TestDeliveryMode(t *testing.T) {
	t.Parallel()

	if got := deliveryMode(&config.Config{Env: "production"}); got != "webhook" {
		t.Fatalf("mode = %q, want webhook", got)
	}
	if got := deliveryMode(&config.Config{Env: "development"}); got != "polling" {
		t.Fatalf("mode = %q, want polling", got)
	}
}

func TestChannelAdaptersRequiresToken(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{BotName: "SplitBot"}
	if _, err := channelAdapters(cfg, nil); err == nil {
		t.Fatal("expected error without telegram token")
	}

	cfg.Telegram.Token = "123:abc"
	adapters, err := channelAdapters(cfg, nil)
	if err != nil {
		t.Fatalf("channelAdapters error: %v", err)
	}
	if len(adapters) != 1 || adapters[0].Name() != "telegram" {
		t.Fatalf("adapters = %v, want one telegram adapter", adapters)
	}
}
