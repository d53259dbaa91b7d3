package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	if got := GetEnv("WH_TEST_NONEXISTENT_VAR", "default"); got != "default" {
		t.Errorf("Expected 'default', got %q", got)
	}

	t.Setenv("WH_TEST_GET_ENV", "custom")
	if got := GetEnv("WH_TEST_GET_ENV", "default"); got != "custom" {
		t.Errorf("Expected 'custom', got %q", got)
	}
}

func TestGetIntEnv(t *testing.T) {
	t.Setenv("WH_TEST_INT", "15")
	t.Setenv("WH_TEST_BAD_INT", "fifteen")

	if got := GetIntEnv("WH_TEST_INT", 8); got != 15 {
		t.Errorf("Expected 15, got %d", got)
	}
	if got := GetIntEnv("WH_TEST_BAD_INT", 8); got != 8 {
		t.Errorf("Expected 8 for invalid int, got %d", got)
	}
	if got := GetIntEnv("WH_TEST_MISSING_INT", 8); got != 8 {
		t.Errorf("Expected 8, got %d", got)
	}
}

func TestGetBoolEnv(t *testing.T) {
	t.Setenv("WH_TEST_TRUE", "true")
	t.Setenv("WH_TEST_ZERO", "0")
	t.Setenv("WH_TEST_JUNK", "maybe")

	if !GetBoolEnv("WH_TEST_TRUE", false) {
		t.Error("Expected true")
	}
	if GetBoolEnv("WH_TEST_ZERO", true) {
		t.Error("Expected false for 0")
	}
	if !GetBoolEnv("WH_TEST_JUNK", true) {
		t.Error("Expected default for unparsable value")
	}
}

func TestGetDurationEnv(t *testing.T) {
	t.Setenv("WH_TEST_DURATION", "30m")
	t.Setenv("WH_TEST_BAD_DURATION", "half an hour")

	if got := GetDurationEnv("WH_TEST_DURATION", time.Second); got != 30*time.Minute {
		t.Errorf("Expected 30m, got %v", got)
	}
	if got := GetDurationEnv("WH_TEST_BAD_DURATION", time.Second); got != time.Second {
		t.Errorf("Expected default for invalid duration, got %v", got)
	}
}

func TestGetListEnv(t *testing.T) {
	t.Setenv("WH_TEST_LIST", " /a:/a , ,/b:/c")

	got := GetListEnv("WH_TEST_LIST")
	if len(got) != 2 || got[0] != "/a:/a" || got[1] != "/b:/c" {
		t.Errorf("Expected [/a:/a /b:/c], got %v", got)
	}
	if got := GetListEnv("WH_TEST_LIST_MISSING"); got != nil {
		t.Errorf("Expected nil, got %v", got)
	}
}

func TestGetJSONMapEnv(t *testing.T) {
	t.Setenv("WH_TEST_TEMPLATES", `{"9614112":"syn123","9614113":"syn456"}`)
	t.Setenv("WH_TEST_TEMPLATES_BAD", `["syn123"]`)

	got, err := GetJSONMapEnv("WH_TEST_TEMPLATES")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got["9614112"] != "syn123" || got["9614113"] != "syn456" {
		t.Errorf("Unexpected map: %v", got)
	}

	if _, err := GetJSONMapEnv("WH_TEST_TEMPLATES_BAD"); err == nil {
		t.Error("Expected error for non-object JSON")
	}

	empty, err := GetJSONMapEnv("WH_TEST_TEMPLATES_MISSING")
	if err != nil || len(empty) != 0 {
		t.Errorf("Expected empty map, got %v (err=%v)", empty, err)
	}
}

func TestGetSecretFile(t *testing.T) {
	if got := GetSecretFile(""); got != "" {
		t.Errorf("Expected empty string for empty path, got %q", got)
	}
	if got := GetSecretFile("/nonexistent/path/to/secret"); got != "" {
		t.Errorf("Expected empty string for nonexistent file, got %q", got)
	}

	path := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(path, []byte("my-secret-value\n"), 0o600); err != nil {
		t.Fatalf("Failed to write secret: %v", err)
	}
	if got := GetSecretFile(path); got != "my-secret-value" {
		t.Errorf("Expected %q, got %q", "my-secret-value", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("WH_TEST_DOTENV=from-file\nWH_TEST_DOTENV_SET=from-file\n"), 0o600); err != nil {
		t.Fatalf("Failed to write .env: %v", err)
	}
	t.Setenv("WH_TEST_DOTENV_SET", "from-env")
	t.Setenv("WH_TEST_DOTENV", "")
	os.Unsetenv("WH_TEST_DOTENV")

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := os.Getenv("WH_TEST_DOTENV"); got != "from-file" {
		t.Errorf("Expected 'from-file', got %q", got)
	}
	if got := os.Getenv("WH_TEST_DOTENV_SET"); got != "from-env" {
		t.Errorf("Expected existing env to win, got %q", got)
	}
}

func TestSetupLoggerWithWriters(t *testing.T) {
	t.Parallel()
	var primary, secondary bytes.Buffer
	logger := SetupLoggerWithWriters(&primary, &secondary, slog.LevelInfo)

	logger.Debug("Hidden")
	logger.Info("Cycle complete", "queue", "9614112")

	for name, buf := range map[string]*bytes.Buffer{"primary": &primary, "secondary": &secondary} {
		out := buf.String()
		if strings.Contains(out, "Hidden") {
			t.Errorf("%s: debug line should be filtered", name)
		}
		if !strings.Contains(out, `"queue":"9614112"`) {
			t.Errorf("%s: expected queue attribute, got %s", name, out)
		}
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
