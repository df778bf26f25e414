package host

import (
	"net"
)

// interfaceFunc looks up an interface by name. Replaced in tests.
type interfaceFunc func(name string) (*net.Interface, error)

// addrsFunc lists an interface's addresses. Replaced in tests.
type addrsFunc func(iface *net.Interface) ([]net.Addr, error)

func systemAddrs(iface *net.Interface) ([]net.Addr, error) {
	return iface.Addrs()
}

// firstIPv4 returns the first global IPv4 address in addrs, or "".
func firstIPv4(addrs []net.Addr) string {
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip4 := ip.To4(); ip4 != nil && !ip4.IsLinkLocalUnicast() && !ip4.IsLoopback() {
			return ip4.String()
		}
	}
	return ""
}
