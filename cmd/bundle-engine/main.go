// Command bundle-engine is the composition-root binary for the road-trip
// data-integration engine: it loads configuration from the environment,
// builds the full corridor/POI/overlay/routing/elevation/bundle dependency
// graph, and serves liveness + metrics while the orchestrator is
// available for the out-of-scope client-facing router to call into.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ecodiatate/roam-bundle-engine/internal/app/server"
	"github.com/ecodiatate/roam-bundle-engine/internal/config"
	"github.com/ecodiatate/roam-bundle-engine/internal/logger"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   strings.ToLower(os.Getenv("LOG_CONSOLE")) == "true",
		Component: "orchestrator",
	}, os.Stdout)

	zl.Info().Str("addr", cfg.Addr).Str("version", Version).Msg("starting bundle-engine")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg, zl); err != nil {
		zl.Error().Err(err).Msg("server exited with error")
		return 1
	}
	zl.Info().Msg("server stopped")
	return 0
}
