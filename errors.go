package socksagent

import (
	"errors"
	"fmt"
)

// ErrMissingHost is returned by Connect when the request has no destination
// host. It is detected before any I/O is attempted.
var ErrMissingHost = errors.New("socksagent: missing destination host")

// ConfigError reports invalid proxy configuration. It is returned by New and
// NewFromConfig; construction aborts and is never retried.
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("socksagent: %s: %v", e.Reason, e.Err)
	}
	return "socksagent: " + e.Reason
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ResolveError reports a failure to resolve the destination hostname locally,
// when the configured SOCKS variant requires client-side resolution.
type ResolveError struct {
	Host string
	Err  error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("socksagent: resolve %s: %v", e.Host, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// TunnelError reports a failure to establish the SOCKS tunnel: the proxy was
// unreachable, rejected authentication, refused the connect, or the handshake
// timed out.
type TunnelError struct {
	Proxy string
	Dest  string
	Err   error
}

func (e *TunnelError) Error() string {
	return fmt.Sprintf("socksagent: tunnel to %s via %s: %v", e.Dest, e.Proxy, e.Err)
}

func (e *TunnelError) Unwrap() error { return e.Err }

// TLSError reports a failed TLS handshake over an already-established tunnel.
type TLSError struct {
	ServerName string
	Err        error
}

func (e *TLSError) Error() string {
	return fmt.Sprintf("socksagent: tls handshake with %s: %v", e.ServerName, e.Err)
}

func (e *TLSError) Unwrap() error { return e.Err }
