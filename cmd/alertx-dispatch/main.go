package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ashharzawarsyed/alertx-sub004/internal/common/logger"
	"github.com/ashharzawarsyed/alertx-sub004/internal/config"
	"github.com/ashharzawarsyed/alertx-sub004/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. Logger
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.ServiceName)
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. Context cancelled on shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Service
	dispatchService, err := service.NewDispatchService(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to create dispatch service",
			zap.Error(err),
		)
	}
	defer dispatchService.Stop()

	// 5. Run
	serviceErrChan := make(chan error, 1)
	go func() {
		if err := dispatchService.Start(ctx); err != nil {
			serviceErrChan <- err
		}
	}()

	// 6. Wait for a signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down",
			zap.String("signal", sig.String()),
		)
		cancel()
	case err := <-serviceErrChan:
		log.Error("Service error",
			zap.Error(err),
		)
		cancel()
	}

	log.Info("Dispatch service stopped")
}
