//go:build linux

package watchdog

import (
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// magicClose disarms drivers that support it when written before close.
const magicClose = "V"

// Device drives a kernel watchdog (/dev/watchdog). When the deadline passes
// the kernel resets the machine.
type Device struct {
	mu     sync.Mutex
	file   *os.File
	logger Logger
	armed  bool
}

// OpenDevice opens the watchdog device at path. Opening the device already
// starts the hardware countdown with the driver's default timeout.
func OpenDevice(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("opening watchdog device %s: %w", path, err)
	}
	return &Device{file: f, logger: noopLogger{}}, nil
}

// SetLogger sets the logger.
func (d *Device) SetLogger(logger Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// Identity returns the driver's identity string.
func (d *Device) Identity() (string, error) {
	info, err := unix.IoctlGetWatchdogInfo(int(d.file.Fd()))
	if err != nil {
		return "", fmt.Errorf("reading watchdog info: %w", err)
	}
	n := 0
	for n < len(info.Identity) && info.Identity[n] != 0 {
		n++
	}
	return string(info.Identity[:n]), nil
}

// Arm sets the hardware timeout, rounded up to whole seconds.
func (d *Device) Arm(timeout time.Duration) error {
	if timeout <= 0 {
		return ErrInvalidTimeout
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.armed {
		return ErrAlreadyArmed
	}

	secs := int((timeout + time.Second - 1) / time.Second)
	if err := unix.IoctlSetPointerInt(int(d.file.Fd()), unix.WDIOC_SETTIMEOUT, secs); err != nil {
		return fmt.Errorf("setting watchdog timeout: %w", err)
	}
	d.armed = true
	d.logger.Info("hardware watchdog armed", "timeout", timeout)
	return nil
}

// Feed sends a keepalive to the driver.
func (d *Device) Feed() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := unix.IoctlWatchdogKeepalive(int(d.file.Fd())); err != nil {
		d.logger.Error("watchdog keepalive failed", "error", err)
	}
}

// Close disarms the watchdog (on drivers without nowayout) and closes the
// device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.file.WriteString(magicClose); err != nil {
		d.logger.Error("writing watchdog magic close", "error", err)
	}
	return d.file.Close()
}
