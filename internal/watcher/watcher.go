// Package watcher implements the background validation sweep: executions
// whose validation window has elapsed are picked up and validated.
package watcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/halcyon-systems/halcyon/internal/provider"
	"github.com/halcyon-systems/halcyon/pkg/types"
)

// pollBatchSize caps how many pending executions one sweep picks up.
const pollBatchSize = 50

// Validator is the outcome-validation entrypoint the watcher drives.
type Validator interface {
	Validate(ctx context.Context, executionID string, window time.Duration) (*types.ValidationResult, error)
}

// Watcher periodically sweeps pending executions past their validation
// window and validates them.
type Watcher struct {
	store      provider.Store
	validator  Validator
	instanceID string
	logger     *slog.Logger
	config     types.WatcherConfig
	healing    types.HealingConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Watcher.
func New(store provider.Store, v Validator, instanceID string, cfg types.WatcherConfig, healing types.HealingConfig, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	healing.Normalize()
	return &Watcher{
		store:      store,
		validator:  v,
		instanceID: instanceID,
		logger:     logger,
		config:     cfg,
		healing:    healing,
	}
}

// Start begins the sweep loop. No-op when the watcher is disabled.
func (w *Watcher) Start(ctx context.Context) {
	if w.config.Enabled != nil && !*w.config.Enabled {
		w.logger.Info("watcher disabled")
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)

	interval, err := time.ParseDuration(w.config.Interval)
	if err != nil || interval <= 0 {
		interval = 15 * time.Second
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.logger.Info("watcher started", "interval", interval)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		// Run immediately on start
		w.sweep(ctx)

		for {
			select {
			case <-ctx.Done():
				w.logger.Info("watcher stopping")
				return
			case <-ticker.C:
				w.sweep(ctx)
			}
		}
	}()
}

// Stop gracefully shuts down the watcher.
func (w *Watcher) Stop(ctx context.Context) {
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("watcher stopped")
	case <-ctx.Done():
		w.logger.Warn("watcher stop timed out")
	}
}

// sweep validates every pending execution whose window has elapsed.
func (w *Watcher) sweep(ctx context.Context) {
	window := time.Duration(w.healing.ValidationWindowSeconds) * time.Second
	cutoff := time.Now().Add(-window)

	pending, err := w.store.ListPendingExecutions(ctx, w.instanceID, cutoff, pollBatchSize)
	if err != nil {
		w.logger.Error("failed to list pending executions", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}
	w.logger.Debug("validation sweep", "pending", len(pending))

	for _, exec := range pending {
		if ctx.Err() != nil {
			return
		}
		if _, err := w.validator.Validate(ctx, exec.ExecutionID, window); err != nil {
			w.logger.Error("validation failed",
				"execution", exec.ExecutionID, "automation", exec.AutomationID, "error", err)
		}
	}
}
