// Package scheduler runs the supervisor loop alongside an optional
// application context.
//
// At most two goroutines exist: the supervisor, which owns every
// connectivity component, and the application, which runs Hooks.Setup once
// and then Hooks.Loop until shutdown. The two share only atomic state, such
// as the status code and the init-failure flag.
package scheduler

import (
	"context"
	"runtime/debug"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-node/internal/clock"
)

// panicBackoff is slept after a recovered application panic.
const panicBackoff = 100 * time.Millisecond

// Hooks are the application entry points. All are optional.
type Hooks struct {
	// Setup runs once. With Loop set it runs on the application goroutine
	// before the first Loop call; otherwise it runs inline during boot.
	Setup func()

	// Loop runs repeatedly on the application goroutine until ctx is
	// cancelled.
	Loop func(ctx context.Context)

	// Connected runs on the supervisor goroutine once per iteration while
	// the session is up.
	Connected func()

	// Finish runs once after the supervisor is started.
	Finish func()
}

// Supervisor is the connectivity loop driven by the scheduler.
type Supervisor interface {
	Boot() error
	Start() error
	SetConnected(fn func())
	Run(ctx context.Context) error
}

// Logger defines the logging interface for the scheduler.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Scheduler starts the supervisor and application contexts.
type Scheduler struct {
	clock  clock.Clock
	logger Logger

	panics     atomic.Uint64
	iterations atomic.Uint64
}

// New creates a scheduler.
func New(clk clock.Clock) *Scheduler {
	return &Scheduler{clock: clk, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (s *Scheduler) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Run boots sup, starts the application context if hooks.Loop is set and
// runs the supervisor until ctx is cancelled.
//
// Boot order: Boot (watchdog armed, Cyan), Setup (inline only without
// Loop), Start (Red), Finish, then the loop.
func (s *Scheduler) Run(ctx context.Context, sup Supervisor, hooks Hooks) error {
	if err := sup.Boot(); err != nil {
		return err
	}
	if hooks.Connected != nil {
		sup.SetConnected(hooks.Connected)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	switch {
	case hooks.Loop != nil:
		g.Go(func() error {
			s.application(gctx, hooks)
			return nil
		})
	case hooks.Setup != nil:
		s.guard("setup", hooks.Setup)
	}

	if err := sup.Start(); err != nil {
		cancel()
		_ = g.Wait()
		return err
	}
	if hooks.Finish != nil {
		s.guard("finish", hooks.Finish)
	}

	g.Go(func() error {
		return sup.Run(gctx)
	})
	return g.Wait()
}

// application is the body of the application goroutine.
func (s *Scheduler) application(ctx context.Context, hooks Hooks) {
	s.logger.Info("application context started")
	if hooks.Setup != nil {
		s.guard("setup", hooks.Setup)
	}
	for ctx.Err() == nil {
		s.iterations.Add(1)
		if !s.guard("loop", func() { hooks.Loop(ctx) }) {
			s.clock.Sleep(panicBackoff)
		}
	}
	s.logger.Info("application context stopped")
}

// guard runs fn, recovering and logging a panic. It reports whether fn
// returned normally.
func (s *Scheduler) guard(name string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.panics.Add(1)
			s.logger.Error("application panic recovered",
				"hook", name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			ok = false
		}
	}()
	fn()
	return true
}

// Panics returns the number of recovered application panics.
func (s *Scheduler) Panics() uint64 {
	return s.panics.Load()
}

// Iterations returns the number of Loop calls.
func (s *Scheduler) Iterations() uint64 {
	return s.iterations.Load()
}
