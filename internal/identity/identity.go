// Package identity derives the node's stable identifiers from its hardware
// address and expands templates such as "node-%s" into hostnames, client IDs
// and topics.
//
// The hardware address is often unknown until the link driver has started,
// so the Resolver reads it lazily on first use and caches it for the life of
// the process.
//
// Thread Safety:
//   - A Resolver is owned by the supervisor goroutine. Expand reuses an
//     internal scratch buffer and must not be called concurrently.
package identity

import (
	"encoding/hex"
	"errors"
	"net"
	"strings"
)

// Placeholder is the token replaced by the hardware address tail.
const Placeholder = "%s"

// scratchSize is the initial capacity of the expansion buffer.
const scratchSize = 256

// ErrNoHardwareAddress is returned while the link has not reported a usable
// hardware address yet.
var ErrNoHardwareAddress = errors.New("identity: hardware address not available")

// AddressSource provides the hardware address of the network interface.
type AddressSource interface {
	HardwareAddress() net.HardwareAddr
}

// Identity is the resolved, immutable device identity.
type Identity struct {
	// Address is the 6-byte hardware address.
	Address net.HardwareAddr

	// Tail is the last three address bytes as uppercase hex ("ABCDEF").
	Tail string

	// Full is all six bytes as uppercase hex without separators.
	Full string
}

// FromAddress builds an Identity from a hardware address.
func FromAddress(addr net.HardwareAddr) (Identity, error) {
	if len(addr) != 6 || isZero(addr) {
		return Identity{}, ErrNoHardwareAddress
	}
	full := strings.ToUpper(hex.EncodeToString(addr))
	return Identity{
		Address: append(net.HardwareAddr(nil), addr...),
		Tail:    full[6:],
		Full:    full,
	}, nil
}

// Resolver resolves the Identity once and expands templates with it.
type Resolver struct {
	source   AddressSource
	id       Identity
	resolved bool
	scratch  []byte
}

// NewResolver creates a Resolver reading from source.
func NewResolver(source AddressSource) *Resolver {
	return &Resolver{
		source:  source,
		scratch: make([]byte, 0, scratchSize),
	}
}

// Identity returns the resolved identity, reading the hardware address on
// the first successful call.
func (r *Resolver) Identity() (Identity, error) {
	if r.resolved {
		return r.id, nil
	}
	id, err := FromAddress(r.source.HardwareAddress())
	if err != nil {
		return Identity{}, err
	}
	r.id = id
	r.resolved = true
	return r.id, nil
}

// Expand replaces every "%s" in tmpl with the address tail.
//
// A template without a placeholder is returned as-is without allocating.
// If the identity cannot be resolved yet, the template is returned
// unchanged together with ErrNoHardwareAddress.
func (r *Resolver) Expand(tmpl string) (string, error) {
	if !strings.Contains(tmpl, Placeholder) {
		return tmpl, nil
	}
	id, err := r.Identity()
	if err != nil {
		return tmpl, err
	}

	buf := r.scratch[:0]
	rest := tmpl
	for {
		i := strings.Index(rest, Placeholder)
		if i < 0 {
			buf = append(buf, rest...)
			break
		}
		buf = append(buf, rest[:i]...)
		buf = append(buf, id.Tail...)
		rest = rest[i+len(Placeholder):]
	}
	r.scratch = buf
	return string(buf), nil
}

func isZero(addr net.HardwareAddr) bool {
	for _, b := range addr {
		if b != 0 {
			return false
		}
	}
	return true
}
