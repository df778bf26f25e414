package watchdog

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/clock"
)

// Software is a clock-driven deadline that calls a reset function on
// expiry.
type Software struct {
	clock  clock.Clock
	reset  func()
	logger Logger

	mu      sync.Mutex
	timer   clock.Timer
	timeout time.Duration

	expired atomic.Bool
	feeds   atomic.Uint64
}

// NewSoftware creates an unarmed software watchdog. reset is called once,
// from the timer goroutine, if the deadline passes.
func NewSoftware(clk clock.Clock, reset func()) *Software {
	return &Software{
		clock:  clk,
		reset:  reset,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for arm and expiry messages.
func (s *Software) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Arm starts the countdown.
func (s *Software) Arm(timeout time.Duration) error {
	if timeout <= 0 {
		return ErrInvalidTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		return ErrAlreadyArmed
	}
	s.timeout = timeout
	s.timer = s.clock.AfterFunc(timeout, s.expire)
	s.logger.Info("watchdog armed", "timeout", timeout)
	return nil
}

// Feed pushes the deadline back by the full timeout. Feeding an unarmed or
// expired watchdog does nothing.
func (s *Software) Feed() {
	if s.expired.Load() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer == nil {
		return
	}
	s.timer.Reset(s.timeout)
	s.feeds.Add(1)
}

// Feeds returns the number of accepted feeds.
func (s *Software) Feeds() uint64 {
	return s.feeds.Load()
}

// Expired reports whether the deadline passed.
func (s *Software) Expired() bool {
	return s.expired.Load()
}

// Stop disarms the timer for a clean process exit.
func (s *Software) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
}

func (s *Software) expire() {
	if !s.expired.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	timeout := s.timeout
	s.mu.Unlock()

	s.logger.Error("watchdog expired, resetting", "timeout", timeout, "feeds", s.feeds.Load())
	if s.reset != nil {
		s.reset()
	}
}
