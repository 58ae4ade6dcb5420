package hosting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"

	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
)

// BackgroundService runs until ctx is done or it fails.
// Run returning nil after ctx is cancelled is a clean stop.
type BackgroundService interface {
	Name() string
	Run(ctx context.Context) error
}

// ServiceFunc adapts a function to BackgroundService.
type ServiceFunc struct {
	ServiceName string
	Fn          func(ctx context.Context) error
}

func (s ServiceFunc) Name() string                  { return s.ServiceName }
func (s ServiceFunc) Run(ctx context.Context) error { return s.Fn(ctx) }

// Host runs background services together. The first failure cancels the rest.
type Host struct {
	mu       sync.Mutex
	services []BackgroundService
	logger   *slog.Logger
}

// NewHost returns a host for services.
func NewHost(logger *slog.Logger, services ...BackgroundService) *Host {
	if logger == nil {
		logger = slog.Default()
	}

	return &Host{services: services, logger: logger}
}

// Add registers more services. Services added after Run has started are not run.
func (h *Host) Add(services ...BackgroundService) {
	h.mu.Lock()
	h.services = append(h.services, services...)
	h.mu.Unlock()
}

// Run starts every service and blocks until all have returned.
// It returns the first service error; cancellation of ctx is not an error.
func (h *Host) Run(ctx context.Context) error {
	h.mu.Lock()
	services := append([]BackgroundService(nil), h.services...)
	h.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	for _, s := range services {
		g.Go(func() error { return h.run(gctx, s) })
	}

	h.logger.InfoContext(ctx, "host started", "services", len(services))

	err := g.Wait()
	if err != nil {
		h.logger.ErrorContext(ctx, "host stopped", "error", err)
		return err
	}

	h.logger.InfoContext(ctx, "host stopped")

	return nil
}

func (h *Host) run(ctx context.Context, s BackgroundService) (err error) {
	name := s.Name()
	log := h.logger.With("service", name)

	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "service panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("service %s: %w: %v", name, berr.ErrPanic, r)
		}
	}()

	log.InfoContext(ctx, "service starting")

	err = s.Run(ctx)
	if err != nil && !(errors.Is(err, context.Canceled) && ctx.Err() != nil) {
		log.ErrorContext(ctx, "service failed", "error", err)
		return fmt.Errorf("service %s: %w", name, err)
	}

	log.InfoContext(ctx, "service stopped")

	return nil
}
