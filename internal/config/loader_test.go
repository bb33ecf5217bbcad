package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envFrom(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoader_ParseEnvironment(t *testing.T) {

	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		cfg, err := LoadFrom("", envFrom(map[string]string{
			"PLANNER_BACKEND_URL": "https://backend.example.com/api/",
		}))
		if err != nil {
			t.Fatalf("LoadFrom returned error: %v", err)
		}

		if cfg.HTTPPort != 8080 {
			t.Fatalf("expected default HTTP port 8080, got %d", cfg.HTTPPort)
		}
		if cfg.SQLiteDSN != "file:planner.db?_pragma=foreign_keys(1)" {
			t.Fatalf("unexpected default DSN: %q", cfg.SQLiteDSN)
		}
		if cfg.BackendURL != "https://backend.example.com/api" {
			t.Fatalf("expected trailing slash to be trimmed, got %q", cfg.BackendURL)
		}
		if cfg.RefreshCron != "*/15 * * * *" || cfg.BackendTimeout != 10*time.Second {
			t.Fatalf("unexpected defaults %+v", cfg)
		}
		if cfg.Location() != time.UTC {
			t.Fatalf("expected UTC default location, got %v", cfg.Location())
		}
	})

	t.Run("errors when required values are missing", func(t *testing.T) {
		_, err := LoadFrom("", envFrom(nil))
		if err == nil {
			t.Fatalf("expected error when required values are missing")
		}
		expected := "必須の環境変数が設定されていません: PLANNER_BACKEND_URL"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("reports every invalid value", func(t *testing.T) {
		_, err := LoadFrom("", envFrom(map[string]string{
			"PLANNER_BACKEND_URL":      "ftp://backend",
			"PLANNER_HTTP_PORT":        "eighty",
			"PLANNER_REFRESH_CRON":     "whenever",
			"PLANNER_DEFAULT_TIMEZONE": "Mars/Olympus",
			"PLANNER_API_TOKEN_HASH":   "plain-text",
			"PLANNER_LOG_LEVEL":        "chatty",
		}))
		if err == nil {
			t.Fatalf("expected validation error")
		}
		want := "環境変数の値が不正です: PLANNER_HTTP_PORT, PLANNER_BACKEND_URL, PLANNER_API_TOKEN_HASH, PLANNER_REFRESH_CRON, PLANNER_DEFAULT_TIMEZONE, PLANNER_LOG_LEVEL"
		if err.Error() != want {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("parses duration and numeric fields", func(t *testing.T) {
		cfg, err := LoadFrom("", envFrom(map[string]string{
			"PLANNER_BACKEND_URL":      "http://localhost:3000",
			"PLANNER_HTTP_PORT":        "9090",
			"PLANNER_SQLITE_DSN":       "file:/tmp/planner.db",
			"PLANNER_BACKEND_TIMEOUT":  "3s",
			"PLANNER_SNAPSHOT_TTL":     "2h",
			"PLANNER_REFRESH_CRON":     "OFF",
			"PLANNER_DEFAULT_TIMEZONE": "Asia/Tokyo",
			"PLANNER_LOG_LEVEL":        "debug",
			"PLANNER_LOG_FORMAT":       "JSON",
		}))
		if err != nil {
			t.Fatalf("LoadFrom returned error: %v", err)
		}

		if cfg.HTTPPort != 9090 || cfg.SQLiteDSN != "file:/tmp/planner.db" {
			t.Fatalf("unexpected port or DSN: %+v", cfg)
		}
		if cfg.BackendTimeout != 3*time.Second || cfg.SnapshotTTL != 2*time.Hour {
			t.Fatalf("unexpected durations: %+v", cfg)
		}
		if cfg.RefreshCron != "" {
			t.Fatalf("expected refresh to be disabled, got %q", cfg.RefreshCron)
		}
		if cfg.Location().String() != "Asia/Tokyo" {
			t.Fatalf("unexpected location %v", cfg.Location())
		}
		if cfg.LogLevel != slog.LevelDebug || cfg.LogFormat != "json" {
			t.Fatalf("unexpected logging settings: %+v", cfg)
		}
	})
}

func TestLoader_ConfigFiles(t *testing.T) {
	t.Parallel()

	yamlPath := writeConfigFile(t, "planner.yaml", `
http_port: 7070
backend_url: https://yaml.example.com
refresh_cron: "@hourly"
import_inbox: /var/spool/planner
snapshot_ttl: 30m
`)
	tomlPath := writeConfigFile(t, "planner.toml", `
http_port = 6060
backend_url = "https://toml.example.com"
default_timezone = "Europe/Paris"
`)

	t.Run("yaml", func(t *testing.T) {
		t.Parallel()
		cfg, err := LoadFrom(yamlPath, envFrom(nil))
		if err != nil {
			t.Fatalf("LoadFrom: %v", err)
		}
		if cfg.HTTPPort != 7070 || cfg.BackendURL != "https://yaml.example.com" || cfg.RefreshCron != "@hourly" {
			t.Fatalf("unexpected yaml config %+v", cfg)
		}
		if cfg.ImportInbox != "/var/spool/planner" || cfg.SnapshotTTL != 30*time.Minute {
			t.Fatalf("unexpected yaml config %+v", cfg)
		}
	})

	t.Run("toml with environment override", func(t *testing.T) {
		t.Parallel()
		cfg, err := LoadFrom(tomlPath, envFrom(map[string]string{"PLANNER_HTTP_PORT": "5050"}))
		if err != nil {
			t.Fatalf("LoadFrom: %v", err)
		}
		if cfg.HTTPPort != 5050 || cfg.BackendURL != "https://toml.example.com" || cfg.DefaultTimezone != "Europe/Paris" {
			t.Fatalf("unexpected toml config %+v", cfg)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"), envFrom(nil))
		if err == nil || !strings.HasPrefix(err.Error(), "設定ファイルが見つかりません") {
			t.Fatalf("unexpected error %v", err)
		}
	})

	t.Run("unsupported extension", func(t *testing.T) {
		t.Parallel()
		path := writeConfigFile(t, "planner.ini", "port=1")
		_, err := LoadFrom(path, envFrom(nil))
		if err == nil || !strings.HasPrefix(err.Error(), "設定ファイルの形式に対応していません") {
			t.Fatalf("unexpected error %v", err)
		}
	})
}

func TestLoad_ReadsProcessEnvironment(t *testing.T) {
	t.Setenv("PLANNER_CONFIG", "")
	t.Setenv("PLANNER_BACKEND_URL", "https://env.example.com")
	t.Setenv("PLANNER_IMPORT_INBOX", "/tmp/inbox")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.BackendURL != "https://env.example.com" || cfg.ImportInbox != "/tmp/inbox" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}
