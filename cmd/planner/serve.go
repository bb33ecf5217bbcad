package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	httptransport "github.com/example/session-planner/internal/http"
	"github.com/example/session-planner/internal/scheduler"
	"github.com/example/session-planner/internal/watch"
)

const shutdownTimeout = 10 * time.Second

func (c *cli) serveCommand() *cobra.Command {
	var (
		addr     string
		origins  []string
		insecure bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the planner HTTP API",
		Long: `Run the planner HTTP API together with the periodic refresh of watched
schedules (PLANNER_REFRESH_CRON) and the import inbox (PLANNER_IMPORT_INBOX).

Examples:
  planner serve
  planner serve --addr 127.0.0.1:9000 --origin app.example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runServe(cmd.Context(), addr, httptransport.LiveOptions{
				OriginPatterns:     origins,
				InsecureSkipVerify: insecure,
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address; defaults to :$PLANNER_HTTP_PORT")
	cmd.Flags().StringSliceVar(&origins, "origin", nil, "Additional origins allowed to open live websocket connections")
	cmd.Flags().BoolVar(&insecure, "insecure-origins", false, "Accept live connections from any origin")
	return cmd
}

func (c *cli) runServe(ctx context.Context, addr string, live httptransport.LiveOptions) error {
	rt, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.logger

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	auth := newAuthenticator(rt.cfg, logger)
	if !auth.Enabled() {
		logger.Warn("PLANNER_API_TOKEN_HASH is not set, the API is unauthenticated")
	}

	if addr == "" {
		addr = fmt.Sprintf(":%d", rt.cfg.HTTPPort)
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:           newHandler(rt, auth, live),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	if rt.cfg.RefreshCron != "" {
		refresher, err := scheduler.New(rt.planner, scheduler.Options{
			Spec:     rt.cfg.RefreshCron,
			Location: rt.cfg.Location(),
		}, logger)
		if err != nil {
			_ = listener.Close()
			return err
		}
		refresher.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := refresher.Stop(stopCtx); err != nil {
				logger.Error("failed to stop refresh scheduler", "error", err)
			}
		}()
	}

	inboxDone := make(chan struct{})
	if rt.cfg.ImportInbox != "" {
		inbox := watch.NewInbox(rt.cfg.ImportInbox, rt.planner, watch.Options{}, logger)
		go func() {
			defer close(inboxDone)
			if err := inbox.Run(ctx); err != nil {
				logger.Error("import inbox stopped", "error", err)
			}
		}()
	} else {
		close(inboxDone)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("planner API listening", "addr", listener.Addr().String())
	err = server.Serve(listener)
	cancel()
	<-inboxDone
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server encountered error: %w", err)
	}
	return nil
}
