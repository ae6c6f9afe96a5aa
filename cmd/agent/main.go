// Package main runs a generic debate-participant agent (proposer,
// critic, or any other named role): the runtime plumbing is identical
// across roles, so one binary hosts all of them, selected by -name.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nugget/agentfabric/internal/agent"
	"github.com/nugget/agentfabric/internal/boot"
	"github.com/nugget/agentfabric/internal/buildinfo"
	"github.com/nugget/agentfabric/internal/config"
	"github.com/nugget/agentfabric/internal/participant"
	"github.com/nugget/agentfabric/internal/toolcore"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	name := flag.String("name", "", "agent name (e.g. proposer, critic)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if *name == "" {
		logger.Error("-name is required")
		os.Exit(1)
	}

	logger.Info("starting agent", "name", *name, "version", buildinfo.Version, "commit", buildinfo.GitCommit)

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
	logger = logger.With("agent", *name)

	b := boot.NewBus(cfg.Bus, logger)
	defer b.Close()

	tools := toolcore.NewClient(*name, b)
	p := participant.New(*name, tools, logger, nil)

	rt := agent.NewRuntime(*name, b, p, logger)
	rt.HeartbeatInterval = cfg.Bus.HeartbeatInterval
	rt.HeartbeatTTL = cfg.Bus.HeartbeatTTL

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	if err := rt.Start(ctx); err != nil {
		logger.Error("agent stopped with error", "error", err)
	}
	logger.Info("agent stopped")
}

func loadConfig(explicit string, logger *slog.Logger) (*config.Config, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		logger.Warn("no config file found, using defaults", "error", err)
		return config.Default(), nil
	}
	return config.Load(path)
}
