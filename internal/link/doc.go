// Package link brings up the node's network interface and reports whether
// it is still usable.
//
// Two implementations share the Manager interface:
//   - Wireless scans for access points, ranks the candidates for the
//     configured SSID and associates pinned to the strongest BSSID, falling
//     back once to the runner-up.
//   - Wired waits for the PHY to report carrier and then for an address.
//
// Both poll with a bounded PollPolicy through an injectable clock, and both
// abort early when the driver reports a disconnect event while waiting.
// Acquisition never loops internally: on failure the caller starts again
// from a fresh scan.
//
// Disconnect events from the driver are latched in a Latch. Callers consult
// Latch.Fired to detect loss between polls; only this package clears it.
//
// Usage:
//
//	mgr := link.NewWireless(radio, link.WirelessConfig{SSID: "plant-net", Scan: true}, clk, wd)
//	handle, err := mgr.Acquire(ctx)
//	if err != nil {
//	    // errors.Is(err, link.ErrTimeout) or link.ErrRejected; retry later
//	}
//	log.Info("link up", "address", handle.Address())
package link
