// Package core contains the address types shared by the nsh client, daemon
// and tunnel.
package core

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"hop.computer/nsh/common"
	"hop.computer/nsh/keys"
)

// AddrError is returned when a network or peer address cannot be parsed.
type AddrError struct {
	Addr string
	Err  error
}

func (e *AddrError) Error() string {
	return fmt.Sprintf("invalid address %q: %s", e.Addr, e.Err)
}

func (e *AddrError) Unwrap() error {
	return e.Err
}

// NetAddr is a host (IP or name) and a port.
type NetAddr struct {
	Host string
	Port uint16
}

// ParseNetAddr parses host, host:port, [v6] or [v6]:port. A missing port is
// replaced by defaultPort.
func ParseNetAddr(in string, defaultPort uint16) (NetAddr, error) {
	if in == "" {
		return NetAddr{}, &AddrError{Addr: in, Err: fmt.Errorf("empty host")}
	}
	host, portStr, err := net.SplitHostPort(in)
	if err != nil {
		// A bare host, possibly a bracketed or unbracketed IPv6 literal.
		host = strings.TrimSuffix(strings.TrimPrefix(in, "["), "]")
		if strings.ContainsAny(host, "[]") || (strings.Contains(host, ":") && net.ParseIP(host) == nil) {
			return NetAddr{}, &AddrError{Addr: in, Err: err}
		}
		portStr = ""
	} else if portStr == "" {
		return NetAddr{}, &AddrError{Addr: in, Err: fmt.Errorf("empty port")}
	}
	if host == "" {
		return NetAddr{}, &AddrError{Addr: in, Err: fmt.Errorf("empty host")}
	}
	if strings.ContainsAny(host, "@/ ") {
		return NetAddr{}, &AddrError{Addr: in, Err: fmt.Errorf("invalid host %q", host)}
	}
	port := defaultPort
	if portStr != "" {
		p, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return NetAddr{}, &AddrError{Addr: in, Err: fmt.Errorf("invalid port %q", portStr)}
		}
		port = uint16(p)
	}
	return NetAddr{Host: host, Port: port}, nil
}

// String returns host:port, with brackets around IPv6 literals.
func (a NetAddr) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}

// IsIP is true if Host is an IP literal.
func (a NetAddr) IsIP() bool {
	return net.ParseIP(a.Host) != nil
}

// RequiresProxy is true for overlay-network names that can only be reached
// through a SOCKS5 proxy.
func (a NetAddr) RequiresProxy() bool {
	h := strings.ToLower(a.Host)
	return strings.HasSuffix(h, ".onion") || strings.HasSuffix(h, ".i2p")
}

// RemoteHost is a peer: the identity it must prove and where to reach it.
type RemoteHost struct {
	ID   keys.PublicKey
	Addr NetAddr
}

// ParseRemoteHost parses <identity>@<host>[:port]. The identity is everything
// before the first @, the rest must be a NetAddr.
func ParseRemoteHost(in string) (RemoteHost, error) {
	id, addr, ok := strings.Cut(in, "@")
	if !ok {
		return RemoteHost{}, &AddrError{Addr: in, Err: fmt.Errorf("expected <identity>@<host>[:port]")}
	}
	pk, err := keys.ParsePublicKey(id)
	if err != nil {
		return RemoteHost{}, &AddrError{Addr: in, Err: err}
	}
	na, err := ParseNetAddr(addr, common.DefaultPort)
	if err != nil {
		return RemoteHost{}, &AddrError{Addr: in, Err: err}
	}
	return RemoteHost{ID: pk, Addr: na}, nil
}

// String returns <identity>@<host>:<port>.
func (r RemoteHost) String() string {
	return r.ID.String() + "@" + r.Addr.String()
}
