package main

import (
	"context"
	"errors"
	"net/http"

	"khata/internal/auth"
	"khata/internal/backend"
	"khata/internal/cache"
	"khata/internal/cli"
	"khata/internal/config"
	"khata/internal/core"
	apphttp "khata/internal/http"
	applog "khata/internal/log"
	"khata/internal/services"
)

func main() {
	cli.LoadEnvFile()

	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel, applog.ComponentApp)
	if err := cfg.Validate(); err != nil {
		cli.Fatal(logger, "Configuration validation failed", err)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}

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

	summaries := cache.NewLRUCache[core.Summary](cfg.CacheSize, cfg.CacheTTL)
	monthly := cache.NewLRUCache[[]core.MonthTotals](cfg.CacheSize, cfg.CacheTTL)
	janitor := cache.NewJanitor(summaries, monthly)
	janitor.Start(cfg.CacheTTL)

	verifier, err := auth.NewVerifier(cfg.JWTSecret)
	if err != nil {
		cli.Fatal(logger, "Failed to create token verifier", err)
	}

	repo := res.Repository
	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Ledger:    services.NewLedgerService(repo, res.Publisher, summaries, monthly),
		Dashboard: services.NewDashboardService(repo, summaries, cfg.DashboardWindowDays),
		Reports:   services.NewReportService(repo, monthly),
		Pinger:    repo,
		Verifier:  verifier,
		Logger:    logger.WithComponent(applog.ComponentHTTP),
	}, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
		Janitor:            janitor,
	})
	if err != nil {
		cli.Fatal(logger, "Failed to create server", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting khata server",
			"port", cfg.Port,
			"backend", backendCfg.Type.String(),
			"change_events", res.Publisher != nil)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		}
	}

	cli.GracefulShutdown(logger, func(ctx context.Context) error {
		return srv.Shutdown(ctx)
	})
}
