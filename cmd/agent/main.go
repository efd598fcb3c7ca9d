package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Schera-ole/eidolon/internal/agent"
)

func main() {
	observerConfig, err := agent.NewObserverConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "Failed to parse configuration:", err)
		os.Exit(2)
	}

	level, err := zap.ParseAtomicLevel(observerConfig.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Invalid log level:", err)
		os.Exit(2)
	}
	zapConfig := zap.NewDevelopmentConfig()
	zapConfig.Level = level
	logger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to build logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	observer := agent.NewObserver(observerConfig, nil, sugar)
	if err := observer.Run(ctx); err != nil {
		sugar.Errorw("observer failed", "error", err)
		logger.Sync()
		os.Exit(1)
	}
	sugar.Info("Shutting down...")
}
