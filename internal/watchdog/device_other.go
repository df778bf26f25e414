//go:build !linux

package watchdog

import "time"

// Device is unavailable on this platform.
type Device struct{}

// OpenDevice always returns ErrUnsupported.
func OpenDevice(string) (*Device, error) {
	return nil, ErrUnsupported
}

func (d *Device) SetLogger(Logger)          {}
func (d *Device) Identity() (string, error) { return "", ErrUnsupported }
func (d *Device) Arm(time.Duration) error   { return ErrUnsupported }
func (d *Device) Feed()                     {}
func (d *Device) Close() error              { return nil }
