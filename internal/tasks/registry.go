// Package tasks implements a supervised fire-and-forget task set with a
// drain-on-shutdown contract. Cascades triggered by failed validations run
// here so validate() can return without waiting, while shutdown still waits
// for in-flight remediation to finish recording.
package tasks

import (
	"context"
	"log/slog"
	"sync"
)

// Registry tracks detached background tasks.
type Registry struct {
	logger *slog.Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	cancel context.CancelFunc
	ctx    context.Context
	closed bool
}

// NewRegistry creates a Registry. Tasks inherit from the given parent
// context and are cancelled when Drain's grace period expires.
func NewRegistry(parent context.Context, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Registry{
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Go runs fn in a tracked goroutine. Returns false if the registry is
// already draining; the caller should treat that as "task not scheduled".
func (r *Registry) Go(name string, fn func(ctx context.Context)) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Warn("task rejected, registry draining", "task", name)
		return false
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("background task panicked", "task", name, "panic", rec)
			}
		}()
		fn(r.ctx)
	}()
	return true
}

// Drain stops accepting new tasks and waits for in-flight ones. When the
// context expires first, remaining tasks are cancelled and Drain returns the
// context error.
func (r *Registry) Drain(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.logger.Warn("drain grace period expired, cancelling remaining tasks")
		r.cancel()
		<-done
		return ctx.Err()
	}
}
