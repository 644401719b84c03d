package socksagent

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kjall/socksagent/internal/socks"
)

// ConnectRequest carries the per-request parameters for one connection
// attempt. It is created fresh per attempt and discarded afterward.
type ConnectRequest struct {
	// Host and Port identify the destination. Host is required.
	Host string
	Port int

	// Timeout bounds the resolution and SOCKS handshake phases. Zero means
	// no bound beyond the caller's context. The TLS handshake is not covered;
	// it inherits only the caller's context.
	Timeout time.Duration

	// SecureEndpoint requests a TLS client handshake over the tunneled
	// stream once the SOCKS connect succeeds.
	SecureEndpoint bool

	// ServerName overrides the SNI value for the TLS handshake. Empty means
	// the original destination hostname.
	ServerName string

	// TLSConfig holds per-request TLS parameters. The agent's static TLS
	// options win on conflicting fields.
	TLSConfig *tls.Config
}

// Connect establishes a connection to the requested destination through the
// configured SOCKS proxy.
//
// The sequence is: validate the destination, resolve it locally when the
// SOCKS variant requires a literal address, delegate the handshake to the
// SOCKS client, and, for secure endpoints, run a TLS client handshake over
// the tunneled stream. Each attempt either returns a fully established
// connection (raw or TLS) or an error; no retries happen at this layer.
func (a *Agent) Connect(ctx context.Context, req ConnectRequest) (net.Conn, error) {
	if req.Host == "" {
		return nil, ErrMissingHost
	}

	tunnelCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		tunnelCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	// The pre-resolution hostname; SNI defaults to it even when the SOCKS
	// request carries a resolved IP.
	host := req.Host

	if a.resolveLocally {
		addrs, err := a.resolver.LookupIPAddr(tunnelCtx, host)
		if err != nil {
			return nil, &ResolveError{Host: host, Err: err}
		}
		if len(addrs) == 0 {
			return nil, &ResolveError{Host: host, Err: errors.New("no addresses found")}
		}
		host = addrs[0].IP.String()
		a.logger.WithFields(logrus.Fields{
			"host": req.Host,
			"addr": host,
		}).Debug("resolved destination locally")
	}

	conn, err := socks.Dial(tunnelCtx, a.forward, socks.Request{
		Proxy: socks.Proxy{
			Host:     a.desc.Host,
			Port:     a.desc.Port,
			Version:  a.desc.Version,
			UserID:   a.desc.creds.UserID(),
			Password: a.desc.creds.Password(),
		},
		DestHost: host,
		DestPort: req.Port,
		Timeout:  req.Timeout,
	})
	if err != nil {
		return nil, &TunnelError{
			Proxy: a.desc.String(),
			Dest:  net.JoinHostPort(host, strconv.Itoa(req.Port)),
			Err:   err,
		}
	}
	a.logger.WithFields(logrus.Fields{
		"proxy": a.desc.String(),
		"dest":  net.JoinHostPort(host, strconv.Itoa(req.Port)),
	}).Debug("socks tunnel established")

	if !req.SecureEndpoint {
		return conn, nil
	}

	tlsCfg := a.mergeTLSConfig(req)
	tlsConn := tls.Client(conn, tlsCfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = tlsConn.Close()
		return nil, &TLSError{ServerName: tlsCfg.ServerName, Err: err}
	}
	a.logger.WithFields(logrus.Fields{
		"servername": tlsCfg.ServerName,
	}).Debug("tls upgrade complete")

	return tlsConn, nil
}

// DialContext tunnels a plain TCP connection to address through the proxy.
// It has the shape expected by net/http.Transport.DialContext.
func (a *Agent) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return a.dial(ctx, network, address, false)
}

// DialTLSContext tunnels a connection to address and upgrades it to TLS with
// SNI taken from the address host. It has the shape expected by
// net/http.Transport.DialTLSContext.
func (a *Agent) DialTLSContext(ctx context.Context, network, address string) (net.Conn, error) {
	return a.dial(ctx, network, address, true)
}

func (a *Agent) dial(ctx context.Context, network, address string, secure bool) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, fmt.Errorf("socksagent: dial %s %s: unsupported network", network, address)
	}
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("socksagent: dial %s: %w", address, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("socksagent: dial %s: invalid port: %w", address, err)
	}
	return a.Connect(ctx, ConnectRequest{Host: host, Port: port, SecureEndpoint: secure})
}

// mergeTLSConfig combines per-request TLS parameters with the agent's static
// overlay. The request config is the base; set fields of the static overlay
// win. SNI is the explicit request ServerName when given, else the original
// destination hostname, unless the overlay pins its own ServerName.
func (a *Agent) mergeTLSConfig(req ConnectRequest) *tls.Config {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if req.TLSConfig != nil {
		cfg = req.TLSConfig.Clone()
	}

	serverName := req.ServerName
	if serverName == "" {
		serverName = req.Host
	}
	cfg.ServerName = serverName

	if a.tlsConfig != nil {
		overlayTLSConfig(cfg, a.tlsConfig)
	}
	return cfg
}

// overlayTLSConfig copies the set fields of src onto dst.
func overlayTLSConfig(dst, src *tls.Config) {
	if src.ServerName != "" {
		dst.ServerName = src.ServerName
	}
	if src.RootCAs != nil {
		dst.RootCAs = src.RootCAs
	}
	if len(src.Certificates) > 0 {
		dst.Certificates = src.Certificates
	}
	if src.GetClientCertificate != nil {
		dst.GetClientCertificate = src.GetClientCertificate
	}
	if src.InsecureSkipVerify {
		dst.InsecureSkipVerify = true
	}
	if src.MinVersion != 0 {
		dst.MinVersion = src.MinVersion
	}
	if src.MaxVersion != 0 {
		dst.MaxVersion = src.MaxVersion
	}
	if len(src.CipherSuites) > 0 {
		dst.CipherSuites = src.CipherSuites
	}
	if len(src.NextProtos) > 0 {
		dst.NextProtos = src.NextProtos
	}
	if src.VerifyPeerCertificate != nil {
		dst.VerifyPeerCertificate = src.VerifyPeerCertificate
	}
	if src.VerifyConnection != nil {
		dst.VerifyConnection = src.VerifyConnection
	}
	if src.Time != nil {
		dst.Time = src.Time
	}
	if src.KeyLogWriter != nil {
		dst.KeyLogWriter = src.KeyLogWriter
	}
	if src.ClientSessionCache != nil {
		dst.ClientSessionCache = src.ClientSessionCache
	}
	if src.SessionTicketsDisabled {
		dst.SessionTicketsDisabled = true
	}
	if src.Renegotiation != 0 {
		dst.Renegotiation = src.Renegotiation
	}
}
