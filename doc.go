package socksagent

// Package socksagent establishes outbound TCP connections through a SOCKS
// proxy (versions 4, 4a, 5, and 5h), with optional TLS layered over the
// tunneled stream for secure endpoints.
//
// An Agent is constructed once from a proxy URL or a structured Config and is
// safe for concurrent use. Its DialContext and DialTLSContext methods have the
// shapes expected by net/http.Transport, so an Agent can be dropped into an
// HTTP(S) client as its connection-opening strategy.
//
// The SOCKS variant chosen determines who resolves destination hostnames:
// socks4 and socks5 expect a literal address in the connect request, so the
// Agent resolves locally first; socks4a, socks5h, and plain socks hand the
// hostname to the proxy to resolve.
