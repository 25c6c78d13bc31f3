package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"
)

// Common errors.
var (
	// ErrAlreadyShutdown indicates shutdown was already initiated.
	ErrAlreadyShutdown = errors.New("shutdown already initiated")

	// ErrHandlerFailed indicates one or more handlers failed.
	ErrHandlerFailed = errors.New("one or more shutdown handlers failed")
)

// Handler is implemented by components that need an orderly stop.
// The context is cancelled when the shutdown deadline passes.
type Handler interface {
	OnShutdown(ctx context.Context) error
}

// Func adapts a function to the Handler interface.
type Func func(ctx context.Context) error

// OnShutdown implements Handler.
func (f Func) OnShutdown(ctx context.Context) error {
	return f(ctx)
}

// Config configures a Coordinator. The zero value is usable.
type Config struct {
	// DefaultTimeout bounds ShutdownWithTimeout when given zero.
	// Default: 30 seconds.
	DefaultTimeout time.Duration

	// DefaultPhase is assigned to handlers registered without one.
	// Default: 100.
	DefaultPhase int

	// OnProgress, if set, is called as each handler finishes.
	OnProgress func(name string, phase int, took time.Duration, err error)
}

type registration struct {
	name    string
	phase   int
	handler Handler
}

// Coordinator runs registered handlers in ascending phase order when
// shutdown is initiated. Handlers within a phase run concurrently; a
// failing handler never blocks the rest.
type Coordinator struct {
	mu       sync.Mutex
	cfg      Config
	handlers []registration
	started  bool
	done     chan struct{}
	err      error
}

// NewCoordinator creates a coordinator.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.DefaultPhase == 0 {
		cfg.DefaultPhase = 100
	}
	return &Coordinator{cfg: cfg, done: make(chan struct{})}
}

// Register adds a handler at the default phase.
func (c *Coordinator) Register(name string, h Handler) {
	c.RegisterWithPhase(name, h, c.cfg.DefaultPhase)
}

// RegisterWithPhase adds a handler. Lower phases stop first.
func (c *Coordinator) RegisterWithPhase(name string, h Handler, phase int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, registration{name: name, phase: phase, handler: h})
}

// RegisterFunc adds a function handler at the default phase.
func (c *Coordinator) RegisterFunc(name string, fn func(ctx context.Context) error) {
	c.Register(name, Func(fn))
}

// RegisterFuncWithPhase adds a function handler at the given phase.
func (c *Coordinator) RegisterFuncWithPhase(name string, fn func(ctx context.Context) error, phase int) {
	c.RegisterWithPhase(name, Func(fn), phase)
}

// Shutdown runs all handlers once. A second call returns
// ErrAlreadyShutdown without re-running anything.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyShutdown
	}
	c.started = true
	handlers := make([]registration, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	sort.SliceStable(handlers, func(i, j int) bool {
		return handlers[i].phase < handlers[j].phase
	})

	var failed []string
	for start := 0; start < len(handlers); {
		end := start
		for end < len(handlers) && handlers[end].phase == handlers[start].phase {
			end++
		}
		failed = append(failed, c.runPhase(ctx, handlers[start:end])...)
		start = end
	}

	c.mu.Lock()
	if len(failed) > 0 {
		c.err = fmt.Errorf("%w: %v", ErrHandlerFailed, failed)
	}
	err := c.err
	c.mu.Unlock()
	close(c.done)
	return err
}

// ShutdownWithTimeout runs Shutdown under a deadline. A zero timeout
// uses the configured default.
func (c *Coordinator) ShutdownWithTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = c.cfg.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.Shutdown(ctx)
}

// HandleSignals arranges for SIGTERM and SIGINT to initiate shutdown
// with the default timeout. It returns immediately.
func (c *Coordinator) HandleSignals() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-ch
		signal.Stop(ch)
		c.ShutdownWithTimeout(0) //nolint:errcheck
	}()
}

// Done is closed when shutdown has completed.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Err reports the shutdown outcome. Valid once Done is closed.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Coordinator) runPhase(ctx context.Context, regs []registration) []string {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []string
	)
	for _, r := range regs {
		wg.Add(1)
		go func(r registration) {
			defer wg.Done()
			start := time.Now()
			err := r.handler.OnShutdown(ctx)
			if c.cfg.OnProgress != nil {
				c.cfg.OnProgress(r.name, r.phase, time.Since(start), err)
			}
			if err != nil {
				mu.Lock()
				failed = append(failed, r.name)
				mu.Unlock()
			}
		}(r)
	}
	wg.Wait()
	return failed
}
