package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"splitrelay/pkg/config"
)

func TestLoggerJSONEntryShape(t *testing.T) {
	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "info"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.With("component", "channel.telegram").Info("Relay event", "chat_id", "42", "ok", true)

	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry Entry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}

	if entry.Level != "info" {
		t.Fatalf("level = %q, want %q", entry.Level, "info")
	}
	if entry.Message != "Relay event" {
		t.Fatalf("message = %q, want %q", entry.Message, "Relay event")
	}
	if entry.Component != "channel.telegram" {
		t.Fatalf("component = %q, want %q", entry.Component, "channel.telegram")
	}
	if entry.Timestamp == "" {
		t.Fatal("expected timestamp")
	}
	if got := entry.Fields["chat_id"]; got != "42" {
		t.Fatalf("fields.chat_id = %v, want %q", got, "42")
	}
	if got := entry.Fields["ok"]; got != true {
		t.Fatalf("fields.ok = %v, want true", got)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "error"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Info("suppressed")
	log.Error("kept")

	output := out.String()
	if strings.Contains(output, "suppressed") {
		t.Fatal("info line should be filtered at error level")
	}
	if !strings.Contains(output, "kept") {
		t.Fatal("error line should be emitted")
	}
}

func TestLoggerGroupFlattensToDottedKeys(t *testing.T) {
	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "info"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.WithGroup("webhook").Info("Registered", "port", int64(8443))

	var entry Entry
	if err := json.Unmarshal([]byte(strings.TrimSpace(out.String())), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}

	if got := entry.Fields["webhook.port"]; got != float64(8443) {
		t.Fatalf("fields[webhook.port] = %v, want 8443", got)
	}
}

func TestLoggerRejectsUnknownFormat(t *testing.T) {
	if _, err := New(config.LoggingConfig{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := New(config.LoggingConfig{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestLoggerDefaultsToText(t *testing.T) {
	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Info("hello")
	if !strings.Contains(out.String(), "hello") {
		t.Fatal("expected text output")
	}
}
