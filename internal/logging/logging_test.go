package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/ivlev/talkinghead/internal/config"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(config.LogConfig{Level: "warn", JSON: true}, &buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	log.Info().Msg("hidden")
	Component(log, "engine").Warn().Msg("[!] visible")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("Expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if entry["component"] != "engine" || entry["message"] != "[!] visible" {
		t.Errorf("Unexpected entry %v", entry)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(config.LogConfig{Level: "loud"}, &bytes.Buffer{}); err == nil {
		t.Errorf("Expected an error for an unknown level")
	}
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(config.LogConfig{}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	log.Info().Msg("[*] start")
	if !bytes.Contains(buf.Bytes(), []byte("[*] start")) {
		t.Errorf("Expected console output, got %q", buf.String())
	}
}
