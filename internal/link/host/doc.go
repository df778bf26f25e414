// Package host adapts the operating system's network stack to the link
// package's Radio and PHY capabilities.
//
// NMRadio drives Wi-Fi through the NetworkManager CLI (nmcli): terse-mode
// scans, BSSID-pinned association for WPA-PSK and PEAP/MSCHAPv2 networks,
// and a long-running "nmcli device monitor" whose output raises disconnect
// events.
//
// Ethernet reads carrier and addresses from the kernel through the net
// package and watches for carrier loss on a short poll.
package host
