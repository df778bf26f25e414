package link

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/nerrad567/gray-logic-node/internal/clock"
)

// Association describes one attempt to join a network.
type Association struct {
	SSID       string
	Password   string
	Username   string
	Enterprise bool

	// BSSID pins the attempt to one access point. Nil lets the driver pick.
	BSSID   net.HardwareAddr
	Channel int
}

// Pinned reports whether the association targets a specific BSSID.
func (a Association) Pinned() bool {
	return len(a.BSSID) > 0
}

// Radio is the wireless driver capability.
type Radio interface {
	Scan(ctx context.Context) ([]ScanResult, error)
	Begin(a Association) error
	Connected() bool
	Disconnect()
	LocalAddress() string
	HardwareAddress() net.HardwareAddr

	// OnDisconnect registers fn to run on every unsolicited disconnect
	// event. Teardowns caused by Disconnect or Begin are not reported, even
	// when the driver learns of them later. fn may be called from any
	// goroutine.
	OnDisconnect(fn func())
}

// WirelessConfig holds the network credentials and acquisition policy.
type WirelessConfig struct {
	SSID       string
	Password   string
	Username   string
	Enterprise bool

	// Scan enables scanning and BSSID pinning. When false every attempt is
	// unpinned and there is no runner-up retry.
	Scan bool

	Poll PollPolicy
}

// Wireless acquires a Wi-Fi link.
type Wireless struct {
	radio  Radio
	cfg    WirelessConfig
	clock  clock.Clock
	feeder Feeder
	latch  Latch
	logger Logger

	mu          sync.Mutex
	lastRanking Ranking
}

// NewWireless creates a wireless link manager and registers for the radio's
// disconnect events. A zero Poll policy is replaced with the default.
func NewWireless(radio Radio, cfg WirelessConfig, clk clock.Clock, feeder Feeder) *Wireless {
	if cfg.Poll.Attempts == 0 && cfg.Poll.Interval == 0 {
		cfg.Poll = DefaultPollPolicy()
	}
	w := &Wireless{
		radio:  radio,
		cfg:    cfg,
		clock:  clk,
		feeder: feeder,
		logger: noopLogger{},
	}
	radio.OnDisconnect(w.latch.set)
	return w
}

// SetLogger sets the logger for acquisition progress.
func (w *Wireless) SetLogger(logger Logger) {
	if logger != nil {
		w.logger = logger
	}
}

// Kind returns "wifi".
func (w *Wireless) Kind() string { return "wifi" }

// Events returns the disconnect latch.
func (w *Wireless) Events() *Latch { return &w.latch }

// IsUp reports whether the radio is associated.
func (w *Wireless) IsUp() bool { return w.radio.Connected() }

// HardwareAddress returns the radio's MAC address.
func (w *Wireless) HardwareAddress() net.HardwareAddr { return w.radio.HardwareAddress() }

// LastRanking returns the candidates chosen by the most recent scan.
func (w *Wireless) LastRanking() Ranking {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastRanking
}

// Acquire disconnects, optionally scans, then associates pinned to the best
// candidate. If that attempt fails and a runner-up exists, it makes exactly
// one more attempt against the runner-up.
func (w *Wireless) Acquire(ctx context.Context) (*Handle, error) {
	w.radio.Disconnect()

	var ranking Ranking
	if w.cfg.Scan {
		results, err := w.radio.Scan(ctx)
		if err != nil {
			w.logger.Warn("wifi scan failed, associating unpinned", "error", err)
		} else {
			ranking = Rank(results, w.cfg.SSID, w.cfg.Enterprise)
			w.logger.Debug("wifi scan complete",
				"results", len(results),
				"best", candidateString(ranking.Best),
				"second", candidateString(ranking.Second),
			)
		}
	}
	w.mu.Lock()
	w.lastRanking = ranking
	w.mu.Unlock()

	err := w.attempt(ctx, w.association(ranking.Best))
	if err != nil && ranking.Best != nil && ranking.Second != nil {
		w.logger.Info("wifi best candidate failed, trying runner-up",
			"error", err,
			"bssid", ranking.Second.BSSID.String(),
		)
		err = w.attempt(ctx, w.association(ranking.Second))
	}
	if err != nil {
		return nil, err
	}

	if w.feeder != nil {
		w.feeder.Feed()
	}
	addr := w.radio.LocalAddress()
	w.logger.Info("wifi connected", "ssid", w.cfg.SSID, "address", addr)
	return &Handle{mgr: w, address: addr}, nil
}

func (w *Wireless) attempt(ctx context.Context, a Association) error {
	w.latch.clear()
	w.logger.Debug("wifi associating", "ssid", a.SSID, "pinned", a.Pinned(), "bssid", a.BSSID.String())

	if err := w.radio.Begin(a); err != nil {
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
	return w.cfg.Poll.Poll(ctx, w.clock, &w.latch, w.radio.Connected)
}

func (w *Wireless) association(c *Candidate) Association {
	a := Association{
		SSID:       w.cfg.SSID,
		Password:   w.cfg.Password,
		Username:   w.cfg.Username,
		Enterprise: w.cfg.Enterprise,
	}
	if c != nil {
		a.BSSID = c.BSSID
		a.Channel = c.Channel
	}
	return a
}

func candidateString(c *Candidate) string {
	if c == nil {
		return "none"
	}
	return fmt.Sprintf("%s ch%d %ddBm", c.BSSID, c.Channel, c.RSSI)
}
