// Package connpool hands out TCP connections for probing a single
// backend address. Name resolution happens once, at pool creation, so
// every probe measures the backend and not the resolver.
package connpool

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// Family is the address family a connection was established over.
type Family int

const (
	Unknown Family = iota
	IPv4
	IPv6
)

// Pool dials probe connections to one backend. A backend may resolve to
// both an IPv4 and an IPv6 address; Get tries IPv4 first.
type Pool struct {
	addr string
	v4   string
	v6   string
}

// New resolves addr (host:port) and builds a pool over the first address
// of each family found.
func New(addr string) (*Pool, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("connpool: %w", err)
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, fmt.Errorf("connpool: resolving %q: %w", host, err)
	}
	p := &Pool{addr: addr}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			if p.v4 == "" {
				p.v4 = net.JoinHostPort(v4.String(), port)
			}
		} else if p.v6 == "" {
			p.v6 = net.JoinHostPort(ip.String(), port)
		}
	}
	if p.v4 == "" && p.v6 == "" {
		return nil, fmt.Errorf("connpool: no usable address for %q", host)
	}
	return p, nil
}

// Addr returns the address the pool was created for.
func (p *Pool) Addr() string { return p.addr }

// Get dials a new connection, giving up at deadline. The returned Family
// says which address family answered.
func (p *Pool) Get(deadline time.Time) (net.Conn, Family, error) {
	d := net.Dialer{Deadline: deadline}
	var lastErr error
	if p.v4 != "" {
		conn, err := d.Dial("tcp4", p.v4)
		if err == nil {
			return conn, IPv4, nil
		}
		lastErr = err
	}
	if p.v6 != "" {
		conn, err := d.Dial("tcp6", p.v6)
		if err == nil {
			return conn, IPv6, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("connpool: no address to dial")
	}
	return nil, Unknown, lastErr
}

// Close releases the pool. Connections are closed by their users; the
// pool itself holds no open sockets.
func (p *Pool) Close() {
	p.v4 = ""
	p.v6 = ""
}
