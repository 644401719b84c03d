package socks

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/kjall/socksagent/internal/testutil"
)

func TestDialSOCKS5(t *testing.T) {
	tests := []struct {
		name string
		user string
		pass string
	}{
		{name: "no_auth"},
		{name: "user_pass", user: "user", pass: "pass"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			echoLn := testutil.StartEchoTCPServer(t, ctx)
			defer echoLn.Close()

			upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
				_ = testutil.HandleSOCKS5Connect(ctx, c, tt.user, tt.pass)
			})

			host, port := addrOf(t, echoLn)
			conn, err := Dial(ctx, nil, Request{
				Proxy:    proxyFor(t, upLn, 5, tt.user, tt.pass),
				DestHost: host,
				DestPort: port,
				Timeout:  2 * time.Second,
			})
			if err != nil {
				t.Fatal(err)
			}
			defer conn.Close()

			testutil.AssertEcho(t, conn, conn, []byte("hello"))

			waitUp()
		})
	}
}

func TestDialSOCKS5Refused(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		_ = testutil.RefuseSOCKS5Connect(c)
	})

	_, err := Dial(ctx, nil, Request{
		Proxy:    proxyFor(t, upLn, 5, "", ""),
		DestHost: "127.0.0.1",
		DestPort: 1,
		Timeout:  2 * time.Second,
	})
	if err == nil {
		t.Fatal("expected error")
	}

	waitUp()
}

func TestDialSOCKS4LiteralAddress(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	defer echoLn.Close()

	reqCh := make(chan testutil.SOCKS4Request, 1)
	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		_ = testutil.HandleSOCKS4Connect(ctx, c, reqCh)
	})

	host, port := addrOf(t, echoLn)
	conn, err := Dial(ctx, nil, Request{
		Proxy:    proxyFor(t, upLn, 4, "uid", ""),
		DestHost: host,
		DestPort: port,
		Timeout:  2 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	req := <-reqCh
	if req.Host != host || req.Port != port {
		t.Errorf("proxy saw %s:%d, want %s:%d", req.Host, req.Port, host, port)
	}
	if req.UserID != "uid" {
		t.Errorf("proxy saw userID %q, want uid", req.UserID)
	}

	testutil.AssertEcho(t, conn, conn, []byte("socks4"))

	waitUp()
}

func TestDialSOCKS4aHostname(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	defer echoLn.Close()

	reqCh := make(chan testutil.SOCKS4Request, 1)
	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		_ = testutil.HandleSOCKS4Connect(ctx, c, reqCh)
	})

	// The test proxy resolves localhost itself; the client must pass the
	// hostname through untouched (4a framing).
	_, port := addrOf(t, echoLn)
	conn, err := Dial(ctx, nil, Request{
		Proxy:    proxyFor(t, upLn, 4, "", ""),
		DestHost: "localhost",
		DestPort: port,
		Timeout:  2 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	req := <-reqCh
	if req.Host != "localhost" {
		t.Errorf("proxy saw host %q, want localhost", req.Host)
	}

	testutil.AssertEcho(t, conn, conn, []byte("socks4a"))

	waitUp()
}

func TestDialUnsupportedVersion(t *testing.T) {
	t.Parallel()

	_, err := Dial(context.Background(), nil, Request{
		Proxy:    Proxy{Host: "127.0.0.1", Port: 1080, Version: 6},
		DestHost: "example.com",
		DestPort: 80,
	})
	if err == nil {
		t.Fatal("expected error for version 6")
	}
}

func TestRequestDeadline(t *testing.T) {
	t.Parallel()

	// No timeout, no context deadline.
	if dl := (Request{}).deadline(context.Background()); !dl.IsZero() {
		t.Errorf("deadline = %v, want zero", dl)
	}

	// Timeout only.
	dl := (Request{Timeout: time.Minute}).deadline(context.Background())
	if dl.IsZero() {
		t.Error("expected a deadline from Timeout")
	}

	// Earlier context deadline wins.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ctxDl, _ := ctx.Deadline()
	dl = (Request{Timeout: time.Minute}).deadline(ctx)
	if !dl.Equal(ctxDl) {
		t.Errorf("deadline = %v, want context deadline %v", dl, ctxDl)
	}
}

func proxyFor(t *testing.T, ln net.Listener, version int, user, pass string) Proxy {
	t.Helper()
	host, port := addrOf(t, ln)
	return Proxy{Host: host, Port: port, Version: version, UserID: user, Password: pass}
}

func addrOf(t *testing.T, ln net.Listener) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}
	return host, port
}
