// Package boot holds the bus-construction logic shared by every cmd/
// binary: each one loads the same config.Config shape and needs the
// same redis-or-inmem decision, so it lives here once instead of being
// copied into five main.go files.
package boot

import (
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/nugget/agentfabric/internal/bus"
	"github.com/nugget/agentfabric/internal/config"
)

// NewBus builds the Bus a cmd/ binary should run against: Redis when
// cfg.Bus.Driver is "redis", the in-process bus for "inmem" (local dev
// and tests, the driver config.Default selects).
func NewBus(cfg config.BusConfig, logger *slog.Logger) bus.Bus {
	if cfg.Driver == "inmem" {
		return bus.NewInMem()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return bus.NewRedis(client, logger)
}
