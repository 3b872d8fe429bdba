package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/pario-ai/parley/pkg/api"
	"github.com/pario-ai/parley/pkg/audit"
	"github.com/pario-ai/parley/pkg/config"
	"github.com/pario-ai/parley/pkg/conversation"
	"github.com/pario-ai/parley/pkg/exchange"
	"github.com/pario-ai/parley/pkg/llm"
	"github.com/pario-ai/parley/pkg/metrics"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the conversation API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, os.Stderr)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to parley config file")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if len(cfg.Providers) == 0 {
		logger.Warn("no providers configured; prompts will fail with 502")
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(cfg.Metrics.Namespace, reg)

	convs, err := conversation.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer convs.Close()

	audits, err := audit.NewStore(ctx, cfg.Audit.Driver, cfg.Audit.DBPath, cfg.Audit.DatabaseURL)
	if err != nil {
		return err
	}
	defer audits.Close()

	writer := audit.NewWriter(audits, logger,
		audit.WithMetrics(m),
		audit.WithWriteTimeout(cfg.Audit.WriteTimeout),
	)
	client := llm.New(cfg.Providers, logger, llm.WithTimeout(cfg.Completion.Timeout))
	svc := exchange.NewService(convs, client, writer, m, logger, otel.Tracer("github.com/pario-ai/parley"))

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.New(convs, svc, audits, reg, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("parley listening", "addr", cfg.Listen, "audit_driver", cfg.Audit.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
