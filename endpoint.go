// Package omgpp implements the networking core of a lightweight,
// bidirectional, multi-client application protocol running atop a
// reliable-UDP transport: connection lifecycle tracking, an admission
// handshake, and a framing/dispatch layer multiplexing application
// messages, RPC calls, and named commands over one binary envelope.
//
// Server and client endpoint cores live in the sibling server and client
// packages; this package holds the types shared between them.
package omgpp

import (
	"crypto/md5"
	"net/netip"

	"github.com/google/uuid"
)

// Endpoint is a peer address, normalized to its 16-octet IPv6 form (IPv4
// addresses are stored IPv4-mapped). Two Endpoints compare equal iff they
// refer to the same normalized (ip, port) pair.
type Endpoint struct {
	addr netip.Addr
	port uint16
}

// NewEndpoint normalizes addr (mapping IPv4 to IPv4-mapped IPv6) and pairs
// it with port.
func NewEndpoint(addr netip.Addr, port uint16) Endpoint {
	if addr.Is4() {
		addr = netip.AddrFrom16(addr.As16())
	}
	return Endpoint{addr: addr, port: port}
}

// EndpointFromAddrPort is a convenience wrapper around NewEndpoint.
func EndpointFromAddrPort(ap netip.AddrPort) Endpoint {
	return NewEndpoint(ap.Addr(), ap.Port())
}

// Addr returns the normalized (IPv4-mapped IPv6 where applicable) address.
func (e Endpoint) Addr() netip.Addr {
	return e.addr
}

// Port returns the port.
func (e Endpoint) Port() uint16 {
	return e.port
}

// IsValid reports whether e holds a usable address.
func (e Endpoint) IsValid() bool {
	return e.addr.IsValid()
}

// String returns "ip:port" using the normalized IPv6 textual form, which is
// also the exact input to the identity hash in IdentityFromEndpoint.
func (e Endpoint) String() string {
	return e.addr.String() + ":" + portString(e.port)
}

func portString(p uint16) string {
	if p == 0 {
		return "0"
	}
	var buf [5]byte
	i := len(buf)
	for p > 0 {
		i--
		buf[i] = byte('0' + p%10)
		p /= 10
	}
	return string(buf[i:])
}

// Identity is a stable, deterministic, non-cryptographic 128-bit peer key
// derived from an Endpoint. It is backed by a uuid.UUID purely for its
// byte layout and formatting; it carries no version/variant semantics and
// is not an authentication token. Two distinct peers seen at the same
// (ip, port) at different times share an identity, by design.
type Identity uuid.UUID

// IdentityFromEndpoint derives the Identity for e by hashing its
// normalized "ip:port" textual form with MD5. This matches the reference
// implementation's derivation exactly, so on-wire peer identities stay
// interoperable with other implementations of this protocol.
func IdentityFromEndpoint(e Endpoint) Identity {
	return Identity(md5.Sum([]byte(e.String())))
}

// String renders the identity the same way uuid.UUID does.
func (id Identity) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether id is the zero identity.
func (id Identity) IsZero() bool {
	return id == Identity{}
}
