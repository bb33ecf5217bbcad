package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/example/session-planner/internal/scheduler"
)

const (
	envConfigFile      = "PLANNER_CONFIG"
	envHTTPPort        = "PLANNER_HTTP_PORT"
	envSQLiteDSN       = "PLANNER_SQLITE_DSN"
	envBackendURL      = "PLANNER_BACKEND_URL"
	envBackendTimeout  = "PLANNER_BACKEND_TIMEOUT"
	envBackendToken    = "PLANNER_BACKEND_TOKEN"
	envAPITokenHash    = "PLANNER_API_TOKEN_HASH"
	envRefreshCron     = "PLANNER_REFRESH_CRON"
	envImportInbox     = "PLANNER_IMPORT_INBOX"
	envDefaultTimezone = "PLANNER_DEFAULT_TIMEZONE"
	envSnapshotTTL     = "PLANNER_SNAPSHOT_TTL"
	envLogLevel        = "PLANNER_LOG_LEVEL"
	envLogFormat       = "PLANNER_LOG_FORMAT"
)

// RefreshDisabled turns the periodic reload off when used as the cron value.
const RefreshDisabled = "off"

// Config captures the planner service settings.
type Config struct {
	HTTPPort        int
	SQLiteDSN       string
	BackendURL      string
	BackendTimeout  time.Duration
	BackendToken    string
	APITokenHash    string
	RefreshCron     string
	ImportInbox     string
	DefaultTimezone string
	SnapshotTTL     time.Duration
	LogLevel        slog.Level
	LogFormat       string
}

// Location resolves DefaultTimezone.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// fileConfig mirrors Config in a config file. Unset keys keep their defaults.
type fileConfig struct {
	HTTPPort        *int   `yaml:"http_port" toml:"http_port"`
	SQLiteDSN       string `yaml:"sqlite_dsn" toml:"sqlite_dsn"`
	BackendURL      string `yaml:"backend_url" toml:"backend_url"`
	BackendTimeout  string `yaml:"backend_timeout" toml:"backend_timeout"`
	BackendToken    string `yaml:"backend_token" toml:"backend_token"`
	APITokenHash    string `yaml:"api_token_hash" toml:"api_token_hash"`
	RefreshCron     string `yaml:"refresh_cron" toml:"refresh_cron"`
	ImportInbox     string `yaml:"import_inbox" toml:"import_inbox"`
	DefaultTimezone string `yaml:"default_timezone" toml:"default_timezone"`
	SnapshotTTL     string `yaml:"snapshot_ttl" toml:"snapshot_ttl"`
	LogLevel        string `yaml:"log_level" toml:"log_level"`
	LogFormat       string `yaml:"log_format" toml:"log_format"`
}

func defaults() Config {
	return Config{
		HTTPPort:        8080,
		SQLiteDSN:       "file:planner.db?_pragma=foreign_keys(1)",
		BackendTimeout:  10 * time.Second,
		RefreshCron:     scheduler.DefaultSpec,
		DefaultTimezone: "UTC",
		SnapshotTTL:     24 * time.Hour,
		LogLevel:        slog.LevelInfo,
		LogFormat:       "text",
	}
}

// Load parses configuration from the process environment, layered over the
// file named by PLANNER_CONFIG when it is set.
func Load() (Config, error) {
	return LoadFrom(os.Getenv(envConfigFile), os.Getenv)
}

// LoadFrom reads path (YAML or TOML, chosen by extension; empty to skip) and
// then applies overrides from getenv. Environment values win over the file.
//
// Missing and malformed entries are collected and reported together with
// localized messages.
func LoadFrom(path string, getenv func(string) string) (Config, error) {
	var file fileConfig
	if path = strings.TrimSpace(path); path != "" {
		if err := readFile(path, &file); err != nil {
			return Config{}, err
		}
	}

	value := func(env, fromFile string) string {
		if v := strings.TrimSpace(getenv(env)); v != "" {
			return v
		}
		return strings.TrimSpace(fromFile)
	}

	cfg := defaults()
	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	if portValue := strings.TrimSpace(getenv(envHTTPPort)); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, envHTTPPort)
		} else {
			cfg.HTTPPort = port
		}
	} else if file.HTTPPort != nil {
		if *file.HTTPPort <= 0 || *file.HTTPPort > 65535 {
			invalid = append(invalid, envHTTPPort)
		} else {
			cfg.HTTPPort = *file.HTTPPort
		}
	}

	if dsn := value(envSQLiteDSN, file.SQLiteDSN); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if backendURL := value(envBackendURL, file.BackendURL); backendURL == "" {
		missing = append(missing, envBackendURL)
	} else if !strings.HasPrefix(backendURL, "http://") && !strings.HasPrefix(backendURL, "https://") {
		invalid = append(invalid, envBackendURL)
	} else {
		cfg.BackendURL = strings.TrimRight(backendURL, "/")
	}

	if timeoutValue := value(envBackendTimeout, file.BackendTimeout); timeoutValue != "" {
		timeout, err := time.ParseDuration(timeoutValue)
		if err != nil || timeout <= 0 {
			invalid = append(invalid, envBackendTimeout)
		} else {
			cfg.BackendTimeout = timeout
		}
	}

	cfg.BackendToken = value(envBackendToken, file.BackendToken)
	cfg.APITokenHash = value(envAPITokenHash, file.APITokenHash)
	if cfg.APITokenHash != "" && !strings.HasPrefix(cfg.APITokenHash, "$argon2id$") {
		invalid = append(invalid, envAPITokenHash)
	}

	if spec := value(envRefreshCron, file.RefreshCron); spec != "" {
		switch {
		case strings.EqualFold(spec, RefreshDisabled):
			cfg.RefreshCron = ""
		case scheduler.Validate(spec) != nil:
			invalid = append(invalid, envRefreshCron)
		default:
			cfg.RefreshCron = spec
		}
	}

	cfg.ImportInbox = value(envImportInbox, file.ImportInbox)

	if tz := value(envDefaultTimezone, file.DefaultTimezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			invalid = append(invalid, envDefaultTimezone)
		} else {
			cfg.DefaultTimezone = tz
		}
	}

	if ttlValue := value(envSnapshotTTL, file.SnapshotTTL); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, envSnapshotTTL)
		} else {
			cfg.SnapshotTTL = ttl
		}
	}

	if levelValue := value(envLogLevel, file.LogLevel); levelValue != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(levelValue)); err != nil {
			invalid = append(invalid, envLogLevel)
		} else {
			cfg.LogLevel = level
		}
	}

	if format := strings.ToLower(value(envLogFormat, file.LogFormat)); format != "" {
		if format != "text" && format != "json" {
			invalid = append(invalid, envLogFormat)
		} else {
			cfg.LogFormat = format
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("必須の環境変数が設定されていません: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("環境変数の値が不正です: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func readFile(path string, out *fileConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("設定ファイルが見つかりません: %s", path)
		}
		return fmt.Errorf("設定ファイルを読み込めません: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, out)
	case ".toml":
		_, err = toml.Decode(string(data), out)
	default:
		return fmt.Errorf("設定ファイルの形式に対応していません: %s", path)
	}
	if err != nil {
		return fmt.Errorf("設定ファイルの解析に失敗しました: %s: %w", path, err)
	}
	return nil
}
