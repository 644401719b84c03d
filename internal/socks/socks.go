package socks

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// ContextDialer mirrors the net.Dialer interface.
type ContextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Proxy identifies the SOCKS server to negotiate with.
type Proxy struct {
	Host    string
	Port    int
	Version int

	// UserID and Password enable username/password auth for version 5.
	// Version 4 sends UserID in the connect request and ignores Password.
	UserID   string
	Password string
}

func (p Proxy) address() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// Request describes a single CONNECT through a SOCKS proxy.
type Request struct {
	Proxy    Proxy
	DestHost string
	DestPort int

	// Timeout bounds the proxy dial and negotiation. The deadline applied is
	// the earlier of this and any deadline already on the context.
	Timeout time.Duration
}

func (r Request) destination() string {
	return net.JoinHostPort(r.DestHost, strconv.Itoa(r.DestPort))
}

// deadline returns the effective negotiation deadline, or the zero time when
// neither the request nor the context bounds it.
func (r Request) deadline(ctx context.Context) time.Time {
	var dl time.Time
	if r.Timeout > 0 {
		dl = time.Now().Add(r.Timeout)
	}
	if d, ok := ctx.Deadline(); ok && (dl.IsZero() || d.Before(dl)) {
		dl = d
	}
	return dl
}

// Dial performs the SOCKS handshake for req and returns the tunneled
// connection. forward is used to reach the proxy itself; nil means a plain
// net.Dialer.
func Dial(ctx context.Context, forward ContextDialer, req Request) (net.Conn, error) {
	if forward == nil {
		forward = &net.Dialer{}
	}

	switch req.Proxy.Version {
	case 5:
		return dialSOCKS5(ctx, forward, req)
	case 4:
		return dialSOCKS4(ctx, forward, req)
	default:
		return nil, fmt.Errorf("unsupported socks version: %d", req.Proxy.Version)
	}
}
