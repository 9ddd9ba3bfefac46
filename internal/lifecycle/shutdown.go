// Package lifecycle turns process signals into compile cancellation and
// runs the driver's shutdown hooks.
package lifecycle

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Handler cancels running compilations on the first signal and then runs
// its hooks. A Handler is single use.
type Handler struct {
	mu           sync.Mutex
	hooks        []Hook
	timeout      time.Duration
	signals      []os.Signal
	logger       *slog.Logger
	shutdownCh   chan struct{}
	doneCh       chan struct{}
	started      bool
	canceled     atomic.Bool
	shutdownOnce sync.Once
	doneOnce     sync.Once
}

// Hook is a function called during shutdown.
type Hook struct {
	Name     string
	Priority int // Lower priority runs first
	Fn       func(ctx context.Context) error
}

// Config configures a Handler.
type Config struct {
	// Timeout bounds the hooks as a whole (default: 10s)
	Timeout time.Duration
	// Signals to listen for (default: SIGTERM, SIGINT)
	Signals []os.Signal
	Logger  *slog.Logger
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
		Signals: []os.Signal{syscall.SIGTERM, syscall.SIGINT},
	}
}

// New creates a handler.
func New(config *Config) *Handler {
	if config == nil {
		config = DefaultConfig()
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		timeout:    timeout,
		signals:    config.Signals,
		logger:     logger,
		shutdownCh: make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// RegisterHook adds a shutdown hook.
func (h *Handler) RegisterHook(name string, priority int, fn func(ctx context.Context) error) {
	h.Register(Hook{Name: name, Priority: priority, Fn: fn})
}

// Register adds hook, keeping hooks ordered by priority.
func (h *Handler) Register(hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.hooks = append(h.hooks, hook)
	for i := len(h.hooks) - 1; i > 0; i-- {
		if h.hooks[i].Priority < h.hooks[i-1].Priority {
			h.hooks[i], h.hooks[i-1] = h.hooks[i-1], h.hooks[i]
		}
	}
}

// Start begins listening for signals. The listener ends when a signal
// arrives or Shutdown is called.
func (h *Handler) Start() {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.mu.Unlock()

	sigCh := make(chan os.Signal, 1)
	if len(h.signals) > 0 {
		signal.Notify(sigCh, h.signals...)
	}

	go func() {
		select {
		case sig := <-sigCh:
			signal.Stop(sigCh)
			h.logger.Info("signal received, canceling compilation", "signal", sig.String())
			h.trigger()
			h.shutdown()
		case <-h.shutdownCh:
			signal.Stop(sigCh)
			h.shutdown()
		}
	}()
}

// Shutdown cancels running compilations and runs the hooks. It is a no-op
// before Start.
func (h *Handler) Shutdown() {
	h.mu.Lock()
	started := h.started
	h.mu.Unlock()
	if !started {
		return
	}
	h.trigger()
}

func (h *Handler) trigger() {
	h.shutdownOnce.Do(func() {
		h.canceled.Store(true)
		close(h.shutdownCh)
	})
}

// Canceled reports whether shutdown has begun. It is meant to be the
// cancellation predicate of a compile request.
func (h *Handler) Canceled() bool {
	return h.canceled.Load()
}

// Context returns a child of parent canceled when shutdown begins.
func (h *Handler) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-h.shutdownCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Wait blocks until the hooks have run.
func (h *Handler) Wait() {
	<-h.doneCh
}

// WaitWithTimeout blocks until the hooks have run or timeout passes.
func (h *Handler) WaitWithTimeout(timeout time.Duration) bool {
	select {
	case <-h.doneCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Done returns a channel that closes when the hooks have run.
func (h *Handler) Done() <-chan struct{} {
	return h.doneCh
}

// Stopping returns a channel that closes when shutdown begins.
func (h *Handler) Stopping() <-chan struct{} {
	return h.shutdownCh
}

func (h *Handler) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	hooks := make([]Hook, len(h.hooks))
	copy(hooks, h.hooks)
	h.mu.Unlock()

	for _, hook := range hooks {
		if err := hook.Fn(ctx); err != nil {
			h.logger.Warn("shutdown hook failed", "hook", hook.Name, "error", err)
		}
	}

	h.doneOnce.Do(func() {
		close(h.doneCh)
	})
}

// Common hooks

// MetricsHook writes the driver metrics before telemetry is shut down.
func MetricsHook(flushFn func(ctx context.Context) error) Hook {
	return Hook{
		Name:     "metrics",
		Priority: 70,
		Fn:       flushFn,
	}
}

// TracingHook flushes and stops the tracer provider.
func TracingHook(shutdownFn func(ctx context.Context) error) Hook {
	return Hook{
		Name:     "tracing",
		Priority: 80,
		Fn:       shutdownFn,
	}
}

// AuditLoggerHook closes the audit log last so that it sees every event.
func AuditLoggerHook(closeFn func() error) Hook {
	return Hook{
		Name:     "audit-logger",
		Priority: 95,
		Fn: func(ctx context.Context) error {
			return closeFn()
		},
	}
}
