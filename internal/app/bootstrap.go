// Package app orchestrates process startup.
package app

import (
	"log/slog"
	"os"

	"fxengine/internal/infra"
	"fxengine/internal/infra/storage"
)

// Bootstrap performs the startup sequence and holds the long-lived handles
// the engine components share: configuration, the metrics registry and the
// persistence collaborator. Each is constructed once here and passed
// explicitly to every component.
type Bootstrap struct {
	Config  *infra.Config
	Store   *storage.Store
	Metrics *infra.Metrics
}

// NewBootstrap creates a new Bootstrap instance.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{Metrics: &infra.Metrics{}}
}

// Initialize loads configuration, installs the logger and opens storage.
func (b *Bootstrap) Initialize() error {
	configPath := os.Getenv("FX_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Store = store
	slog.Info("database initialized")

	return nil
}
