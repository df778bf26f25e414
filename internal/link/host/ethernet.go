package host

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/link"
)

// defaultCarrierPoll is how often Ethernet checks for carrier loss.
const defaultCarrierPoll = 250 * time.Millisecond

// Ethernet implements link.PHY for a wired interface.
type Ethernet struct {
	name     string
	interval time.Duration
	lookup   interfaceFunc
	addrs    addrsFunc

	mu        sync.Mutex
	callbacks []func()
	stop      chan struct{}
	stopped   sync.WaitGroup
}

// NewEthernet returns a PHY for the named interface.
func NewEthernet(name string) *Ethernet {
	return &Ethernet{
		name:     name,
		interval: defaultCarrierPoll,
		lookup:   net.InterfaceByName,
		addrs:    systemAddrs,
	}
}

// Start verifies the interface exists and begins watching for carrier loss.
func (e *Ethernet) Start() error {
	if _, err := e.lookup(e.name); err != nil {
		return fmt.Errorf("interface %s: %w", e.name, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stop != nil {
		return nil
	}
	e.stop = make(chan struct{})
	e.stopped.Add(1)
	go e.watch(e.stop)
	return nil
}

// Close stops the carrier watcher.
func (e *Ethernet) Close() {
	e.mu.Lock()
	stop := e.stop
	e.stop = nil
	e.mu.Unlock()
	if stop != nil {
		close(stop)
		e.stopped.Wait()
	}
}

func (e *Ethernet) watch(stop <-chan struct{}) {
	defer e.stopped.Done()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	wasUp := e.LinkUp()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			up := e.LinkUp()
			if wasUp && !up {
				e.fire()
			}
			wasUp = up
		}
	}
}

func (e *Ethernet) fire() {
	e.mu.Lock()
	callbacks := append([]func(){}, e.callbacks...)
	e.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

// LinkUp reports whether the interface is up with carrier.
func (e *Ethernet) LinkUp() bool {
	iface, err := e.lookup(e.name)
	if err != nil {
		return false
	}
	return iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagRunning != 0
}

// LocalAddress returns the interface's IPv4 address, or "".
func (e *Ethernet) LocalAddress() string {
	iface, err := e.lookup(e.name)
	if err != nil {
		return ""
	}
	addrs, err := e.addrs(iface)
	if err != nil {
		return ""
	}
	return firstIPv4(addrs)
}

// HardwareAddress returns the interface MAC, or nil.
func (e *Ethernet) HardwareAddress() net.HardwareAddr {
	iface, err := e.lookup(e.name)
	if err != nil {
		return nil
	}
	return iface.HardwareAddr
}

// OnDisconnect registers fn to run on carrier loss.
func (e *Ethernet) OnDisconnect(fn func()) {
	e.mu.Lock()
	e.callbacks = append(e.callbacks, fn)
	e.mu.Unlock()
}

var _ link.PHY = (*Ethernet)(nil)
