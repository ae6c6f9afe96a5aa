// Package main runs the coordinator: the process that aggregates agent
// heartbeats into a system-wide readiness signal.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nugget/agentfabric/internal/boot"
	"github.com/nugget/agentfabric/internal/buildinfo"
	"github.com/nugget/agentfabric/internal/config"
	"github.com/nugget/agentfabric/internal/coordinator"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger.Info("starting coordinator", "version", buildinfo.Version, "commit", buildinfo.GitCommit)

	cfg, err := loadConfig(*configPath, logger)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}
	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			logger.Error("invalid log_level in config", "error", err)
			os.Exit(1)
		}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: config.ReplaceLogLevelNames,
		}))
	}

	b := boot.NewBus(cfg.Bus, logger)
	defer b.Close()

	c := coordinator.New(b, logger, coordinator.Config{
		RequiredAgents: cfg.Agents.Required,
		CheckInterval:  cfg.Coordinator.CheckInterval,
		ReadyTimeout:   cfg.Coordinator.ReadyTimeout,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	c.Run(ctx)
	logger.Info("coordinator stopped")
}

func loadConfig(explicit string, logger *slog.Logger) (*config.Config, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		logger.Warn("no config file found, using defaults", "error", err)
		return config.Default(), nil
	}
	return config.Load(path)
}
