package main

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"khata/internal/amqp"
	"khata/internal/backend"
	"khata/internal/cli"
	"khata/internal/config"
	applog "khata/internal/log"
	"khata/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel, applog.ComponentWorker)
	logger.Info("Starting khata-worker")

	if err := cfg.ValidateWorker(); err != nil {
		cli.Fatal(logger, "Configuration validation failed", err)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}
	// The worker consumes events; it never publishes them.
	backendCfg.AMQPURL = ""

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	factory := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger)
	res, err := factory.CreateBackend(ctx, backendCfg)
	if err != nil {
		cli.Fatal(logger, "Failed to create backend", err, "backend", backendCfg.Type.String())
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err)
		}
	}()

	mirror, err := factory.CreateMirror(ctx, backendCfg)
	if err != nil {
		cli.Fatal(logger, "Failed to create mirror", err)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize AMQP client", err)
	}
	defer amqpClient.Close()

	w := worker.NewMirrorWorker(res.Repository, mirror, cfg.MirrorBatchSize)

	// Catch up on rows written while the worker was down.
	logger.Info("Performing startup mirror sweep...")
	if err := w.StartupSweep(ctx); err != nil {
		logger.Error("Startup mirror sweep failed", applog.FieldError, err)
	}

	sweeper := worker.NewSweeper(w, cfg.MirrorInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := amqpClient.ConsumeEvents(gctx, w.HandleEvent)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		if err := sweeper.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", applog.FieldError, err)
	}

	cli.GracefulShutdown(logger, sweeper.Stop)
}
