package socksagent

import (
	"context"
	"crypto/tls"
	"io"
	"net"

	"github.com/sirupsen/logrus"
)

// Resolver resolves destination hostnames when the configured SOCKS variant
// requires client-side resolution. net.DefaultResolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// ContextDialer mirrors the net.Dialer interface. The agent uses it to reach
// the proxy itself.
type ContextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Agent tunnels outbound connections through one configured SOCKS proxy.
//
// All fields are fixed at construction, so a single Agent may serve
// arbitrarily many concurrent Connect calls without coordination.
type Agent struct {
	desc           Descriptor
	resolveLocally bool
	tlsConfig      *tls.Config

	resolver Resolver
	forward  ContextDialer
	logger   logrus.FieldLogger
}

// Option adjusts an Agent at construction time.
type Option func(*Agent)

// WithResolver replaces the resolver used for client-side destination
// lookups. The default is net.DefaultResolver.
func WithResolver(r Resolver) Option {
	return func(a *Agent) { a.resolver = r }
}

// WithForwardDialer replaces the dialer used to reach the proxy server.
// The default is a plain net.Dialer.
func WithForwardDialer(d ContextDialer) Option {
	return func(a *Agent) { a.forward = d }
}

// WithLogger injects a structured logger for per-connection debug events.
// The default discards all output.
func WithLogger(l logrus.FieldLogger) Option {
	return func(a *Agent) { a.logger = l }
}

// WithTLSConfig sets the static TLS parameters applied to every secure
// upgrade, equivalent to Config.TLSConfig for the URL form.
func WithTLSConfig(c *tls.Config) Option {
	return func(a *Agent) { a.tlsConfig = c }
}

// New constructs an Agent from a proxy URL.
//
// Supported schemes:
//   - socks4://[userid@]host:port (agent resolves destination hostnames)
//   - socks4a://[userid@]host:port (proxy resolves)
//   - socks5://[user:pass@]host:port (agent resolves)
//   - socks5h://[user:pass@]host:port, socks:// (proxy resolves)
//
// A missing port defaults to 1080.
func New(proxyURL string, opts ...Option) (*Agent, error) {
	cfg, err := configFromURL(proxyURL)
	if err != nil {
		return nil, err
	}
	return NewFromConfig(cfg, opts...)
}

// NewFromConfig constructs an Agent from a structured Config.
func NewFromConfig(cfg Config, opts ...Option) (*Agent, error) {
	desc, resolveLocally, err := parseConfig(cfg)
	if err != nil {
		return nil, err
	}

	a := &Agent{
		desc:           desc,
		resolveLocally: resolveLocally,
		tlsConfig:      cfg.TLSConfig,
		resolver:       net.DefaultResolver,
		forward:        &net.Dialer{},
		logger:         discardLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Descriptor returns the canonical proxy descriptor the agent was built with.
func (a *Agent) Descriptor() Descriptor { return a.desc }

// ResolvesLocally reports whether the agent resolves destination hostnames
// itself before handing them to the proxy.
func (a *Agent) ResolvesLocally() bool { return a.resolveLocally }

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
