package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/efebarandurmaz/medrag/internal/app"
	"github.com/efebarandurmaz/medrag/internal/config"
	"github.com/efebarandurmaz/medrag/internal/logging"
	"github.com/efebarandurmaz/medrag/internal/server"
	temporalmod "github.com/efebarandurmaz/medrag/internal/temporal"
)

func main() {
	configPath := ""
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	if err := run(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}

	c, err := app.DialTemporal(cfg.Temporal, logger)
	if err != nil {
		a.Close(ctx)
		return err
	}
	if c == nil {
		a.Close(ctx)
		return errors.New("temporal.host is not configured")
	}

	w, err := temporalmod.StartWorker(c, cfg.Temporal.TaskQueue, &temporalmod.Activities{Ingester: a.Service})
	if err != nil {
		c.Close()
		a.Close(ctx)
		return err
	}
	logger.Info("worker started",
		zap.String("task_queue", cfg.Temporal.TaskQueue),
		zap.String("namespace", cfg.Temporal.Namespace),
		zap.String("llm_provider", a.ProviderName()))

	shutdown := server.NewShutdownHandler(&server.ShutdownConfig{
		Timeout: cfg.Server.ShutdownTimeout,
		Logger:  logger,
	})
	shutdown.Register(server.TemporalWorkerShutdownHook(w.Stop))
	shutdown.Register(server.TemporalClientShutdownHook(c.Close))
	for _, hook := range a.ShutdownHooks() {
		shutdown.Register(hook)
	}
	shutdown.Start()
	shutdown.Wait()

	logger.Info("worker stopped")
	return nil
}
