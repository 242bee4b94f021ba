package registry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Refresher periodically reloads the application set into the registry.
// A failed reload keeps the previous map so transient registry-store
// outages never drop live applications.
type Refresher struct {
	registry *Registry
	loader   Loader
	interval time.Duration
	logger   *zap.Logger
}

// NewRefresher wires a loader to a registry.
func NewRefresher(registry *Registry, loader Loader, interval time.Duration, logger *zap.Logger) *Refresher {
	return &Refresher{
		registry: registry,
		loader:   loader,
		interval: interval,
		logger:   logger,
	}
}

// LoadOnce performs a single load and swap. Used at startup where a
// failure should abort the process.
func (r *Refresher) LoadOnce(ctx context.Context) error {
	apps, err := r.loader.Load(ctx)
	if err != nil {
		return err
	}
	r.registry.Replace(apps)
	return nil
}

// Run refreshes on a ticker until the context is cancelled.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("application refresher started", zap.Duration("interval", r.interval))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("application refresher stopped")
			return
		case <-ticker.C:
			apps, err := r.loader.Load(ctx)
			if err != nil {
				r.logger.Warn("application refresh failed, keeping previous set",
					zap.Error(err),
					zap.Int("apps", r.registry.Len()))
				continue
			}
			r.registry.Replace(apps)
		}
	}
}
