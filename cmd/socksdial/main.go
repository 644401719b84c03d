package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/kjall/socksagent"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		proxy      = pflag.String("proxy", defaultProxy(), "SOCKS proxy URL: socks4://[userid@]host:port | socks4a://... | socks5://[user:pass@]host:port | socks5h://...")
		listen     = pflag.String("listen", "", "Local listen address; each accepted connection is forwarded to the destination through the proxy. Empty pipes stdin/stdout instead.")
		useTLS     = pflag.Bool("tls", false, "Perform a TLS handshake with the destination over the tunnel")
		serverName = pflag.String("servername", "", "TLS server name (defaults to the destination host)")
		timeout    = pflag.Duration("timeout", 10*time.Second, "Timeout for DNS lookup and SOCKS negotiation")
		verbose    = pflag.Bool("verbose", false, "Enable debug logging to stderr")
	)

	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	if pflag.NArg() != 1 {
		return errors.New("usage: socksdial [flags] host:port")
	}
	if *proxy == "" {
		return errors.New("no proxy configured (set --proxy or ALL_PROXY)")
	}

	host, portStr, err := net.SplitHostPort(pflag.Arg(0))
	if err != nil {
		return fmt.Errorf("invalid destination: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid destination port: %w", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	if *verbose {
		logger.SetOutput(os.Stderr)
		logger.SetLevel(logrus.DebugLevel)
	}

	agent, err := socksagent.New(*proxy, socksagent.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("invalid --proxy: %w", err)
	}

	req := socksagent.ConnectRequest{
		Host:           host,
		Port:           port,
		Timeout:        *timeout,
		SecureEndpoint: *useTLS,
		ServerName:     *serverName,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *listen != "" {
		return serveListener(ctx, agent, req, *listen, logger)
	}
	return pipeStdio(ctx, agent, req)
}

// pipeStdio establishes one tunneled connection and connects it to
// stdin/stdout, netcat style.
func pipeStdio(ctx context.Context, agent *socksagent.Agent, req socksagent.ConnectRequest) error {
	conn, err := agent.Connect(ctx, req)
	if err != nil {
		return err
	}

	var closeOnce sync.Once
	closeConn := func() {
		closeOnce.Do(func() {
			_ = conn.Close()
		})
	}
	defer closeConn()

	cancel := context.AfterFunc(ctx, closeConn)
	defer cancel()

	// Not waited on: a blocked stdin read can't be interrupted, and exiting
	// when the remote side closes must not hang on it.
	go func() {
		_, _ = io.Copy(conn, os.Stdin)
		closeConn()
	}()

	if _, err := io.Copy(os.Stdout, conn); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// serveListener accepts local connections on addr and forwards each through
// the agent to the configured destination.
func serveListener(ctx context.Context, agent *socksagent.Agent, req socksagent.ConnectRequest, addr string, logger logrus.FieldLogger) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	cancel := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer cancel()

	logger.WithFields(logrus.Fields{"listen": ln.Addr().String()}).Info("forwarding")

	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		go func() {
			defer c.Close()

			up, err := agent.Connect(ctx, req)
			if err != nil {
				logger.WithError(err).Warn("connect failed")
				return
			}
			defer up.Close()

			if err := copyBidirectional(ctx, c, up); err != nil && !errors.Is(err, net.ErrClosed) {
				logger.WithError(err).Debug("forward ended")
			}
		}()
	}
}

// copyBidirectional pipes bytes between left and right until either side
// closes or ctx is canceled.
func copyBidirectional(ctx context.Context, left, right net.Conn) error {
	g := &errgroup.Group{}

	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = left.Close()
			_ = right.Close()
		})
	}
	defer closeBoth()

	cancel := context.AfterFunc(ctx, closeBoth)
	defer cancel()

	g.Go(func() error {
		_, err := io.Copy(left, right)
		closeBoth()
		return err
	})

	g.Go(func() error {
		_, err := io.Copy(right, left)
		closeBoth()
		return err
	})

	return g.Wait()
}

func defaultProxy() string {
	if p := os.Getenv("ALL_PROXY"); p != "" {
		return p
	}
	if p := os.Getenv("all_proxy"); p != "" {
		return p
	}
	return ""
}
