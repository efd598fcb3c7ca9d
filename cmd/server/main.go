package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Schera-ole/eidolon"
	"github.com/Schera-ole/eidolon/internal/config"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	agentConfig, err := config.LoadConfig(args)
	if err != nil {
		return err
	}

	logger, err := newLogger(agentConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	agent, err := eidolon.New(agentConfig, eidolon.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	if err := agent.Start(ctx); err != nil {
		return err
	}
	if !agentConfig.Enabled {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(agent.Wait)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return agent.Stop(shutdownCtx)
	})
	return g.Wait()
}

func newLogger(level string) (*zap.SugaredLogger, error) {
	atomicLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = atomicLevel
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
