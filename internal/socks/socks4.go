package socks

import (
	"context"
	"fmt"
	"net"
	"net/url"

	wzsocks "github.com/wzshiming/socks4"
)

// dialSOCKS4 tunnels a CONNECT through a SOCKS4 proxy. Literal destination
// addresses use plain SOCKS4 framing; hostname destinations use the 4a
// extension, leaving resolution to the proxy.
func dialSOCKS4(ctx context.Context, forward ContextDialer, req Request) (net.Conn, error) {
	scheme := "socks4"
	if net.ParseIP(req.DestHost) == nil {
		scheme = "socks4a"
	}

	u := &url.URL{Scheme: scheme, Host: req.Proxy.address()}
	if req.Proxy.UserID != "" {
		u.User = url.User(req.Proxy.UserID)
	}

	d, err := wzsocks.NewDialer(u.String())
	if err != nil {
		return nil, fmt.Errorf("socks4 dialer: %w", err)
	}
	d.ProxyDial = forward.DialContext

	if dl := req.deadline(ctx); !dl.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, dl)
		defer cancel()
	}

	conn, err := d.DialContext(ctx, "tcp", req.destination())
	if err != nil {
		return nil, fmt.Errorf("socks4 connect: %w", err)
	}
	return conn, nil
}
