package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"warden-mod/internal/bot"
	"warden-mod/internal/config"
	"warden-mod/internal/ledger"
	"warden-mod/internal/modules/audit"
	"warden-mod/internal/storage"
	"warden-mod/internal/tempact"

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

	auditLogger := audit.NewLogger(store, logger)
	warnLedger := ledger.New(store, auditLogger)
	tracker := tempact.New(store, auditLogger, logger)

	botSvc, err := bot.New(cfg, logger, store, warnLedger, tracker, auditLogger)
	if err != nil {
		logger.Fatal("bot init failed", zap.Error(err))
	}

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()

	if err := botSvc.Start(runCtx); err != nil {
		logger.Fatal("bot start failed", zap.Error(err))
	}
	logger.Info("bot started")

	sweeper := tempact.NewSweeper(tracker, botSvc, time.Duration(cfg.SweepIntervalSeconds)*time.Second, logger)
	go sweeper.Run(runCtx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown requested")
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	botSvc.Close(ctx)
}
