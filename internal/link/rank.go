package link

import "net"

// Security classifies an access point's authentication scheme.
type Security int

const (
	SecurityOpen Security = iota
	SecurityPSK
	SecurityEnterprise
)

// String returns the security class name.
func (s Security) String() string {
	switch s {
	case SecurityOpen:
		return "open"
	case SecurityPSK:
		return "psk"
	case SecurityEnterprise:
		return "enterprise"
	default:
		return "unknown"
	}
}

// ScanResult is one access point seen by a scan.
type ScanResult struct {
	SSID     string
	BSSID    net.HardwareAddr
	Channel  int
	RSSI     int
	Security Security
}

// Candidate is an access point eligible for association.
type Candidate struct {
	BSSID   net.HardwareAddr
	Channel int
	RSSI    int
}

// Ranking holds the strongest and runner-up candidates from a scan. Either
// may be nil.
type Ranking struct {
	Best   *Candidate
	Second *Candidate
}

// Rank selects the two strongest access points whose SSID matches ssid and
// whose security class matches the configuration: enterprise networks only
// when enterprise is set, and vice versa.
//
// Comparisons are strict so that on equal signal the one seen first keeps
// its place.
func Rank(results []ScanResult, ssid string, enterprise bool) Ranking {
	var r Ranking
	for i := range results {
		res := &results[i]
		if res.SSID != ssid {
			continue
		}
		if (res.Security == SecurityEnterprise) != enterprise {
			continue
		}

		c := &Candidate{BSSID: res.BSSID, Channel: res.Channel, RSSI: res.RSSI}
		switch {
		case r.Best == nil || c.RSSI > r.Best.RSSI:
			r.Second = r.Best
			r.Best = c
		case r.Second == nil || c.RSSI > r.Second.RSSI:
			r.Second = c
		}
	}
	return r
}
