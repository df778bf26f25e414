// Package linktest provides scripted Radio and PHY implementations for tests.
package linktest

import (
	"context"
	"net"
	"sync"

	"github.com/nerrad567/gray-logic-node/internal/link"
)

// DefaultMAC is the hardware address reported by the fakes unless
// overridden.
var DefaultMAC = net.HardwareAddr{0x24, 0x0a, 0xc4, 0xab, 0xcd, 0xef}

// Radio is a scripted link.Radio.
type Radio struct {
	mu sync.Mutex

	// Results is returned by Scan.
	Results []link.ScanResult
	// ScanErr, if set, is returned by Scan instead of Results.
	ScanErr error
	// BeginErr, if set, is returned by Begin.
	BeginErr error
	// Accept decides whether an association succeeds. Nil accepts all.
	Accept func(a link.Association) bool
	// OnPoll runs on every Connected call, outside the lock.
	OnPoll func()

	Addr string
	MAC  net.HardwareAddr

	connected   bool
	begins      []link.Association
	scans       int
	disconnects int
	handlers    []func()
}

// NewRadio returns a radio that accepts every association.
func NewRadio(results ...link.ScanResult) *Radio {
	return &Radio{Results: results, Addr: "192.168.1.50", MAC: DefaultMAC}
}

func (r *Radio) Scan(context.Context) ([]link.ScanResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scans++
	if r.ScanErr != nil {
		return nil, r.ScanErr
	}
	return append([]link.ScanResult(nil), r.Results...), nil
}

func (r *Radio) Begin(a link.Association) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.begins = append(r.begins, a)
	if r.BeginErr != nil {
		return r.BeginErr
	}
	r.connected = r.Accept == nil || r.Accept(a)
	return nil
}

func (r *Radio) Connected() bool {
	r.mu.Lock()
	hook := r.OnPoll
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

func (r *Radio) Disconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnects++
	r.connected = false
}

func (r *Radio) LocalAddress() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		return ""
	}
	return r.Addr
}

func (r *Radio) HardwareAddress() net.HardwareAddr {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.MAC
}

func (r *Radio) OnDisconnect(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, fn)
}

// SetConnected changes association state without raising an event.
func (r *Radio) SetConnected(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = v
}

// Drop simulates an unsolicited disconnect: state goes down and every
// registered handler runs.
func (r *Radio) Drop() {
	r.mu.Lock()
	r.connected = false
	handlers := append([]func(){}, r.handlers...)
	r.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

// Begins returns every association attempted so far.
func (r *Radio) Begins() []link.Association {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]link.Association(nil), r.begins...)
}

// Scans returns the number of Scan calls.
func (r *Radio) Scans() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scans
}

// PHY is a scripted link.PHY.
type PHY struct {
	mu sync.Mutex

	StartErr error
	// UpAfter is the number of LinkUp polls that report no carrier after
	// Start. Negative means never.
	UpAfter int

	Addr string
	MAC  net.HardwareAddr

	started  int
	polls    int
	up       bool
	handlers []func()
}

// NewPHY returns a PHY that has carrier and an address immediately.
func NewPHY() *PHY {
	return &PHY{Addr: "10.0.0.20", MAC: DefaultMAC}
}

// SetStartErr changes the error returned by later Start calls.
func (p *PHY) SetStartErr(err error) {
	p.mu.Lock()
	p.StartErr = err
	p.mu.Unlock()
}

func (p *PHY) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started++
	return p.StartErr
}

func (p *PHY) LinkUp() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.up && p.UpAfter >= 0 {
		if p.polls >= p.UpAfter {
			p.up = true
		}
		p.polls++
	}
	return p.up
}

func (p *PHY) LocalAddress() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.up {
		return ""
	}
	return p.Addr
}

func (p *PHY) HardwareAddress() net.HardwareAddr {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.MAC
}

func (p *PHY) OnDisconnect(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, fn)
}

// Drop removes carrier and raises a disconnect event. The next acquisition
// regains carrier after UpAfter polls.
func (p *PHY) Drop() {
	p.mu.Lock()
	p.up = false
	p.polls = 0
	handlers := append([]func(){}, p.handlers...)
	p.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

// Starts returns the number of Start calls.
func (p *PHY) Starts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// AP builds a scan result.
func AP(ssid string, last byte, channel, rssi int, sec link.Security) link.ScanResult {
	return link.ScanResult{
		SSID:     ssid,
		BSSID:    net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, last},
		Channel:  channel,
		RSSI:     rssi,
		Security: sec,
	}
}
