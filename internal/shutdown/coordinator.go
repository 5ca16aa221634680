package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Func is one shutdown action.
type Func func(ctx context.Context) error

// Step names a shutdown action for logging.
type Step struct {
	Name string
	Fn   Func
}

// Coordinator runs shutdown phases in registration order. Steps inside a
// phase run concurrently. A failing step does not stop later phases; every
// error is returned joined.
type Coordinator struct {
	logger  *zap.Logger
	timeout time.Duration

	mu     sync.Mutex
	phases [][]Step
}

// NewCoordinator creates a coordinator bounded by timeout.
func NewCoordinator(logger *zap.Logger, timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{logger: logger.Named("shutdown"), timeout: timeout}
}

// Then appends a phase with a single step.
func (c *Coordinator) Then(name string, fn Func) *Coordinator {
	return c.Parallel(Step{Name: name, Fn: fn})
}

// Parallel appends a phase whose steps run at the same time.
func (c *Coordinator) Parallel(steps ...Step) *Coordinator {
	if len(steps) == 0 {
		return c
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phases = append(c.phases, steps)
	return c
}

// Run blocks until ctx ends or SIGINT/SIGTERM arrives, then shuts down.
func (c *Coordinator) Run(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()
	c.logger.Info("shutdown signal received", zap.NamedError("cause", context.Cause(sigCtx)))
	return c.Shutdown(context.Background())
}

// Shutdown executes every phase within the configured timeout.
func (c *Coordinator) Shutdown(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	c.mu.Lock()
	phases := append([][]Step(nil), c.phases...)
	c.mu.Unlock()

	var errs []error
	for _, phase := range phases {
		errs = append(errs, c.runPhase(ctx, phase)...)
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		c.logger.Error("shutdown completed with errors", zap.Int("failures", len(errs)), zap.Error(err))
		return err
	}
	c.logger.Info("graceful shutdown complete")
	return nil
}

func (c *Coordinator) runPhase(ctx context.Context, steps []Step) []error {
	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, step := range steps {
		step := step
		g.Go(func() error {
			start := time.Now()
			if err := step.Fn(gctx); err != nil {
				c.logger.Error("shutdown step failed", zap.String("step", step.Name), zap.Error(err))
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", step.Name, err))
				mu.Unlock()
				return nil
			}
			c.logger.Info("shutdown step complete", zap.String("step", step.Name), zap.Duration("took", time.Since(start)))
			return nil
		})
	}
	_ = g.Wait()
	return errs
}
