package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ivankudzin/amour/internal/app/apiapp"
	"github.com/ivankudzin/amour/internal/config"
	"github.com/ivankudzin/amour/internal/infra/logger"
	pgrepo "github.com/ivankudzin/amour/internal/repo/postgres"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "amour",
		Short:         "Matching, messaging and notification backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), cfgPath)
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", defaultConfigPath(), "path to the yaml config")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), cfgPath)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return migrate(cmd.Context(), cfgPath)
		},
	})
	return root
}

func defaultConfigPath() string {
	if p := os.Getenv("APP_CONFIG"); p != "" {
		return p
	}
	return "configs/config.yaml"
}

func setup(cfgPath string) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logger.New(cfg.Log.Level, cfg.Env)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

func serve(parent context.Context, cfgPath string) error {
	cfg, log, err := setup(cfgPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Sync()
	}()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := apiapp.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("create api app: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Run()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown api app", zap.Error(err))
			return err
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("api server failed", zap.Error(err))
			return err
		}
		return nil
	}
}

func migrate(ctx context.Context, cfgPath string) error {
	cfg, log, err := setup(cfgPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Sync()
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pgrepo.Migrate(ctx, pool); err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}
