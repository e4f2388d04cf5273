package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sbmod/internal/analytics"
	"sbmod/internal/bot"
	"sbmod/internal/config"
	"sbmod/internal/modlog"
	"sbmod/internal/storage"
	"sbmod/internal/supervisor"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	preflightCtx, cancelPreflight := context.WithTimeout(context.Background(), 10*time.Second)
	report := config.Preflight(preflightCtx, cfg, store)
	cancelPreflight()
	for _, warning := range report.Warnings {
		logger.Warn("preflight", zap.String("warning", warning))
	}
	if !report.OK() {
		logger.Fatal("preflight failed", zap.String("report", report.Summary()))
	}

	settingsStore := storage.NewSettingsStore(store, cfg.DefaultPrefix, cfg.DefaultLanguage)
	modLogger := modlog.NewLogger(store, logger)
	analyticsService := analytics.New(store)

	botSvc, err := bot.New(cfg, logger, store, settingsStore, modLogger, analyticsService)
	if err != nil {
		logger.Fatal("bot init failed", zap.Error(err))
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	sup := supervisor.New(cfg.Supervisor, logger)
	startErr := make(chan error, 1)
	go func() {
		startErr <- sup.Run(runCtx, "gateway", func(ctx context.Context) error {
			return botSvc.Start()
		})
	}()

	var server *http.Server
	if cfg.Health.Enabled {
		server = &http.Server{Addr: cfg.Health.Addr}
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		go func() {
			logger.Info("health endpoint enabled", zap.String("addr", cfg.Health.Addr))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("health server error", zap.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-startErr:
		if err != nil {
			logger.Fatal("bot start failed", zap.Error(err))
		}
		logger.Info("bot started")
		<-sigCh
	case <-sigCh:
	}
	logger.Info("shutdown requested")
	cancelRun()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if server != nil {
		_ = server.Shutdown(ctx)
	}
	botSvc.Close(ctx)
}
