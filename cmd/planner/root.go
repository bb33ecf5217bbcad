package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/session-planner/internal/application"
	"github.com/example/session-planner/internal/backend"
	"github.com/example/session-planner/internal/config"
	httptransport "github.com/example/session-planner/internal/http"
	"github.com/example/session-planner/internal/logging"
	"github.com/example/session-planner/internal/persistence"
	"github.com/example/session-planner/internal/persistence/sqlite"
)

// cli carries the process environment shared by every subcommand.
type cli struct {
	getenv func(string) string
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	logLevel   string
}

func newRootCommand(getenv func(string) string, stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	c := &cli{getenv: getenv, stdin: stdin, stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "planner",
		Short: "Session import and reconciliation engine",
		Long: `planner reconciles the session lists of an event backend with imported
parent/child sheets and serves the result over HTTP.

Configuration is read from PLANNER_* environment variables, optionally
layered over a YAML or TOML file given by --config or PLANNER_CONFIG.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "Config file (YAML or TOML); defaults to $PLANNER_CONFIG")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")

	root.AddCommand(
		c.serveCommand(),
		c.reconcileCommand(),
		c.importCommand(),
		c.mappingsCommand(),
		c.importsCommand(),
		c.schedulesCommand(),
		c.hashTokenCommand(),
	)
	return root
}

func (c *cli) loadConfig() (config.Config, *slog.Logger, error) {
	path := c.configPath
	if path == "" {
		path = c.getenv("PLANNER_CONFIG")
	}
	cfg, err := config.LoadFrom(path, c.getenv)
	if err != nil {
		return config.Config{}, nil, err
	}
	if c.logLevel != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(c.logLevel)); err != nil {
			return config.Config{}, nil, fmt.Errorf("invalid --log-level %q", c.logLevel)
		}
	}
	return cfg, logging.New(c.stderr, cfg.LogLevel, cfg.LogFormat), nil
}

// runtime holds the wired collaborators of one command invocation.
type runtime struct {
	cfg     config.Config
	logger  *slog.Logger
	store   *sqlite.Store
	client  *backend.Client
	planner *application.PlannerService
}

func (c *cli) open(ctx context.Context) (*runtime, error) {
	cfg, logger, err := c.loadConfig()
	if err != nil {
		return nil, err
	}

	store, err := sqlite.Open(sqlite.Config{DSN: cfg.SQLiteDSN}, logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	client, err := backend.New(cfg.BackendURL,
		backend.WithTimeout(cfg.BackendTimeout),
		backend.WithToken(cfg.BackendToken),
		backend.WithLogger(logger),
	)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	directory := backend.NewDirectory(client)
	planner := application.NewPlannerServiceWithLogger(
		client,
		client,
		persistence.NewMappingStore(store),
		application.PlannerOptions{
			Timezones:       directory,
			Schedules:       directory,
			Imports:         store,
			DefaultLocation: cfg.Location(),
			SnapshotTTL:     cfg.SnapshotTTL,
		},
		logger,
	)
	return &runtime{cfg: cfg, logger: logger, store: store, client: client, planner: planner}, nil
}

func (r *runtime) Close() {
	if err := r.store.Close(); err != nil {
		r.logger.Error("failed to close storage", "error", err)
	}
}

// newHandler assembles the HTTP API around the runtime's planner.
func newHandler(rt *runtime, auth *application.TokenAuthenticator, live httptransport.LiveOptions) http.Handler {
	var guard func(http.Handler) http.Handler
	if auth.Enabled() {
		guard = httptransport.RequireToken(auth, rt.logger)
	}
	return httptransport.NewRouter(httptransport.RouterConfig{
		Sessions:   httptransport.NewSessionHandler(rt.planner, rt.logger),
		Imports:    httptransport.NewImportHandler(rt.planner, rt.logger),
		Mappings:   httptransport.NewMappingHandler(rt.planner, rt.logger),
		Live:       httptransport.NewLiveHandler(rt.planner, live, rt.logger),
		Health:     httptransport.NewHealthHandler(rt.store, rt.logger),
		Auth:       guard,
		Middleware: []func(http.Handler) http.Handler{httptransport.RequestLogger(rt.logger)},
	})
}

func newAuthenticator(cfg config.Config, logger *slog.Logger) *application.TokenAuthenticator {
	return application.NewTokenAuthenticator(cfg.APITokenHash, nil, time.Now, logger)
}

func firstLine(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(string(data), "\n")
	return strings.TrimSpace(line), nil
}
