package link

import (
	"context"
	"fmt"
	"net"

	"github.com/nerrad567/gray-logic-node/internal/clock"
)

// PHY is the wired interface capability.
type PHY interface {
	Start() error
	LinkUp() bool
	LocalAddress() string
	HardwareAddress() net.HardwareAddr
	OnDisconnect(fn func())
}

// WiredConfig holds the wired acquisition policy.
type WiredConfig struct {
	// Poll bounds the wait for carrier.
	Poll PollPolicy

	// AddressPoll bounds the wait for an address once carrier is up.
	AddressPoll PollPolicy
}

// Wired acquires an Ethernet link.
type Wired struct {
	phy    PHY
	cfg    WiredConfig
	clock  clock.Clock
	feeder Feeder
	latch  Latch
	logger Logger

	// started is only touched by Acquire, which the supervisor calls from
	// one goroutine.
	started bool
}

// NewWired creates a wired link manager and registers for PHY disconnect
// events.
func NewWired(phy PHY, cfg WiredConfig, clk clock.Clock, feeder Feeder) *Wired {
	if cfg.Poll.Attempts == 0 && cfg.Poll.Interval == 0 {
		cfg.Poll = DefaultPollPolicy()
	}
	if cfg.AddressPoll.Attempts == 0 && cfg.AddressPoll.Interval == 0 {
		cfg.AddressPoll = PollPolicy{Attempts: DefaultAddressPollAttempts, Interval: DefaultPollInterval}
	}
	w := &Wired{
		phy:    phy,
		cfg:    cfg,
		clock:  clk,
		feeder: feeder,
		logger: noopLogger{},
	}
	phy.OnDisconnect(w.latch.set)
	return w
}

// SetLogger sets the logger for acquisition progress.
func (w *Wired) SetLogger(logger Logger) {
	if logger != nil {
		w.logger = logger
	}
}

// Kind returns "ethernet".
func (w *Wired) Kind() string { return "ethernet" }

// Events returns the disconnect latch.
func (w *Wired) Events() *Latch { return &w.latch }

// IsUp reports whether the PHY has carrier and an address.
func (w *Wired) IsUp() bool {
	return w.phy.LinkUp() && w.phy.LocalAddress() != ""
}

// HardwareAddress returns the PHY's MAC address.
func (w *Wired) HardwareAddress() net.HardwareAddr { return w.phy.HardwareAddress() }

// Acquire starts the PHY until a Start succeeds, then waits for carrier
// and an address. A failed Start waits one poll interval before returning,
// so an interface that appears later is picked up by the next Acquire.
func (w *Wired) Acquire(ctx context.Context) (*Handle, error) {
	if !w.started {
		if err := w.phy.Start(); err != nil {
			w.clock.Sleep(w.cfg.Poll.Interval)
			return nil, fmt.Errorf("%w: starting interface: %w", ErrRejected, err)
		}
		w.started = true
	}

	w.latch.clear()
	if err := w.cfg.Poll.Poll(ctx, w.clock, &w.latch, w.phy.LinkUp); err != nil {
		return nil, err
	}
	hasAddress := func() bool { return w.phy.LocalAddress() != "" }
	if err := w.cfg.AddressPoll.Poll(ctx, w.clock, &w.latch, hasAddress); err != nil {
		return nil, err
	}

	if w.feeder != nil {
		w.feeder.Feed()
	}
	addr := w.phy.LocalAddress()
	w.logger.Info("ethernet connected", "address", addr)
	return &Handle{mgr: w, address: addr}, nil
}
