package watchdog

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/clock"
)

func newFake() *clock.Fake {
	return clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
}

// ============================================================================
// Software
// ============================================================================

func TestSoftwareExpiresWithoutFeed(t *testing.T) {
	clk := newFake()
	var resets atomic.Int32
	wd := NewSoftware(clk, func() { resets.Add(1) })

	if err := wd.Arm(DefaultTimeout); err != nil {
		t.Fatalf("Arm() error = %v", err)
	}

	clk.Advance(DefaultTimeout - time.Millisecond)
	if resets.Load() != 0 {
		t.Fatal("reset before the window elapsed")
	}
	clk.Advance(time.Millisecond)
	if resets.Load() != 1 {
		t.Fatalf("resets = %d, want 1", resets.Load())
	}
	if !wd.Expired() {
		t.Error("Expired() = false after reset")
	}

	clk.Advance(10 * DefaultTimeout)
	if resets.Load() != 1 {
		t.Errorf("reset ran %d times, want exactly once", resets.Load())
	}
}

func TestSoftwareFeedPostponesExpiry(t *testing.T) {
	clk := newFake()
	var resets atomic.Int32
	wd := NewSoftware(clk, func() { resets.Add(1) })
	if err := wd.Arm(DefaultTimeout); err != nil {
		t.Fatalf("Arm() error = %v", err)
	}

	for i := 0; i < 5; i++ {
		clk.Advance(50 * time.Second)
		wd.Feed()
	}
	if resets.Load() != 0 {
		t.Fatal("reset despite regular feeds")
	}
	if wd.Feeds() != 5 {
		t.Errorf("Feeds() = %d, want 5", wd.Feeds())
	}

	clk.Advance(DefaultTimeout)
	if resets.Load() != 1 {
		t.Errorf("resets = %d, want 1 after feeds stopped", resets.Load())
	}
}

func TestSoftwareFeedIgnoredBeforeArmAndAfterExpiry(t *testing.T) {
	clk := newFake()
	wd := NewSoftware(clk, nil)

	wd.Feed()
	if wd.Feeds() != 0 {
		t.Errorf("Feeds() = %d before arm, want 0", wd.Feeds())
	}

	if err := wd.Arm(time.Second); err != nil {
		t.Fatalf("Arm() error = %v", err)
	}
	clk.Advance(time.Second)
	wd.Feed()
	if wd.Feeds() != 0 {
		t.Errorf("Feeds() = %d after expiry, want 0", wd.Feeds())
	}
}

func TestSoftwareArmErrors(t *testing.T) {
	wd := NewSoftware(newFake(), nil)

	if err := wd.Arm(0); !errors.Is(err, ErrInvalidTimeout) {
		t.Errorf("Arm(0) error = %v, want ErrInvalidTimeout", err)
	}
	if err := wd.Arm(time.Minute); err != nil {
		t.Fatalf("Arm() error = %v", err)
	}
	if err := wd.Arm(time.Minute); !errors.Is(err, ErrAlreadyArmed) {
		t.Errorf("second Arm() error = %v, want ErrAlreadyArmed", err)
	}
}

func TestSoftwareStop(t *testing.T) {
	clk := newFake()
	var resets atomic.Int32
	wd := NewSoftware(clk, func() { resets.Add(1) })
	if err := wd.Arm(time.Second); err != nil {
		t.Fatalf("Arm() error = %v", err)
	}
	wd.Stop()
	clk.Advance(time.Minute)
	if resets.Load() != 0 {
		t.Error("reset after Stop")
	}
}

// ============================================================================
// Device
// ============================================================================

func TestOpenDeviceMissing(t *testing.T) {
	_, err := OpenDevice(t.TempDir() + "/watchdog")
	if err == nil {
		t.Fatal("OpenDevice() on a missing path should fail")
	}
}

var (
	_ Timer = (*Software)(nil)
	_ Timer = (*Device)(nil)
)
