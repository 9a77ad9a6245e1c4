package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"ledgersync/internal/shared/config"
	"ledgersync/internal/shared/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	if deps.Scheduler != nil {
		deps.Scheduler.Start()
	}

	srv, err := StartServer(ServerConfig{
		Handler:    NewRouter(deps, logger),
		Addr:       cfg.Server.Addr(),
		TLSEnabled: cfg.TLS.Enabled,
		CertPath:   cfg.TLS.CertPath,
		KeyPath:    cfg.TLS.KeyPath,
	}, logger)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case err := <-srv.Errors():
		logger.Error("Server stopped unexpectedly", zap.Error(err))
	}

	GracefulShutdown(srv, deps, 30*time.Second, logger)
	return nil
}
