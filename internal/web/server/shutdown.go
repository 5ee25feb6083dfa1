package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ShutdownHook runs while the server drains, e.g. to close the adapter
type ShutdownHook func(ctx context.Context) error

// ShutdownConfig holds graceful shutdown configuration
type ShutdownConfig struct {
	// Timeout bounds the hooks and the drain together
	Timeout time.Duration
	// Signals default to SIGINT and SIGTERM
	Signals []os.Signal
}

// DefaultShutdownConfig returns a 30s timeout on SIGINT and SIGTERM
func DefaultShutdownConfig() *ShutdownConfig {
	return &ShutdownConfig{
		Timeout: 30 * time.Second,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// GracefulShutdown runs a server until a signal or context cancellation,
// then drains it and runs the registered hooks
type GracefulShutdown struct {
	server  *Server
	timeout time.Duration
	signals []os.Signal
	logger  *zap.Logger

	mu    sync.Mutex
	hooks []ShutdownHook

	once sync.Once
	done chan struct{}
	err  error
}

// NewGracefulShutdown wraps server
func NewGracefulShutdown(server *Server, config *ShutdownConfig) *GracefulShutdown {
	if config == nil {
		config = DefaultShutdownConfig()
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if len(config.Signals) == 0 {
		config.Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	return &GracefulShutdown{
		server:  server,
		timeout: config.Timeout,
		signals: config.Signals,
		logger:  server.logger,
		done:    make(chan struct{}),
	}
}

// RegisterHook adds a hook; hooks run in registration order after the drain
func (gs *GracefulShutdown) RegisterHook(hook ShutdownHook) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.hooks = append(gs.hooks, hook)
}

// Run serves until ctx is done, a signal arrives or the server fails
func (gs *GracefulShutdown) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := gs.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, gs.signals...)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		gs.logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case <-ctx.Done():
		gs.logger.Info("context cancelled, shutting down")
	case err := <-errCh:
		return err
	}
	return gs.Shutdown()
}

// Shutdown drains the server then runs the hooks. Every hook runs even when
// an earlier one fails; the errors are combined.
func (gs *GracefulShutdown) Shutdown() error {
	gs.once.Do(func() {
		gs.logger.Info("initiating graceful shutdown", zap.Duration("timeout", gs.timeout))
		ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
		defer cancel()

		var errs error
		if err := gs.server.Shutdown(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("server shutdown: %w", err))
		}

		gs.mu.Lock()
		hooks := append([]ShutdownHook(nil), gs.hooks...)
		gs.mu.Unlock()
		for i, hook := range hooks {
			if err := hook(ctx); err != nil {
				gs.logger.Warn("shutdown hook failed", zap.Int("hook", i), zap.Error(err))
				errs = multierr.Append(errs, err)
			}
		}

		gs.err = errs
		if errs == nil {
			gs.logger.Info("shutdown completed")
		}
		close(gs.done)
	})
	<-gs.done
	return gs.err
}

// Wait blocks until shutdown completes
func (gs *GracefulShutdown) Wait() error {
	<-gs.done
	return gs.err
}
