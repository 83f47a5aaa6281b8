package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseLevel(tt.in); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewHandlerFormats(t *testing.T) {
	var buf bytes.Buffer
	slog.New(newHandler("json", &buf, nil)).Info("Call ended", slog.String("src_id", "1001"))

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("json handler produced invalid JSON: %v", err)
	}
	if record["src_id"] != "1001" {
		t.Errorf("src_id = %v, want 1001", record["src_id"])
	}

	buf.Reset()
	slog.New(newHandler("text", &buf, nil)).Info("Call ended")
	if !strings.Contains(buf.String(), `msg="Call ended"`) {
		t.Errorf("text output = %q", buf.String())
	}
}

func TestInitLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.log")

	logger := initLogger(config.LoggingConfig{Level: "warn", Format: "text", Output: path})
	logger.Info("suppressed")
	logger.Warn("Master connection closed")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if strings.Contains(string(data), "suppressed") {
		t.Error("info record written at warn level")
	}
	if !strings.Contains(string(data), "Master connection closed") {
		t.Errorf("log file = %q", data)
	}
}
