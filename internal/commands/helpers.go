// Package commands implements the CLI subcommands for the halcyon binary.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/halcyon-systems/halcyon/internal/alert"
	"github.com/halcyon-systems/halcyon/internal/config"
	"github.com/halcyon-systems/halcyon/internal/engine"
	"github.com/halcyon-systems/halcyon/internal/platform"
	"github.com/halcyon-systems/halcyon/internal/provider"
	ddbprov "github.com/halcyon-systems/halcyon/internal/provider/dynamodb"
	"github.com/halcyon-systems/halcyon/internal/provider/memory"
	"github.com/halcyon-systems/halcyon/internal/provider/redis"
	"github.com/halcyon-systems/halcyon/pkg/types"
)

// newStore creates the configured storage provider.
func newStore(cfg *types.ProjectConfig, logger *slog.Logger) (provider.Store, error) {
	switch cfg.Provider {
	case "memory":
		return memory.New(), nil
	case "redis":
		rc, ok := cfg.Redis.(*redis.Config)
		if !ok || rc == nil {
			return nil, fmt.Errorf("redis config is required when provider is redis")
		}
		return redis.New(rc, logger), nil
	case "dynamodb":
		dc, ok := cfg.DynamoDB.(*ddbprov.Config)
		if !ok || dc == nil {
			return nil, fmt.Errorf("dynamodb config is required when provider is dynamodb")
		}
		return ddbprov.New(dc, logger)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// buildEngine loads halcyon.yaml from the working directory and assembles
// the engine with its store, platform client, and alert dispatcher. The
// returned cleanup stops the store.
func buildEngine(ctx context.Context) (*engine.Engine, *types.ProjectConfig, func(), error) {
	cfg, err := config.Load(".")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger()

	store, err := newStore(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := store.Start(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("starting store: %w", err)
	}
	cleanup := func() {
		if err := store.Stop(context.Background()); err != nil {
			logger.Warn("store shutdown failed", "error", err)
		}
	}

	dispatcher, err := alert.NewDispatcher(cfg.Alerts, logger)
	if err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("building alert sinks: %w", err)
	}

	client := platform.NewRESTClient(cfg.Platform, logger)
	eng := engine.New(ctx, store, client, dispatcher, cfg.InstanceID, cfg.Healing, logger)
	return eng, cfg, cleanup, nil
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("HALCYON_DEBUG") != "" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
