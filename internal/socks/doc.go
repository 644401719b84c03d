package socks

// Package socks is the client-side SOCKS delegate: given a proxy descriptor
// and a destination, it reaches the proxy, runs the version-specific
// negotiation (including userID/password auth when configured), and hands
// back the tunneled connection.
//
// Version 5 wraps the protocol types in github.com/txthinking/socks5 so the
// negotiation and CONNECT framing live in one place. Version 4/4a rides on
// github.com/wzshiming/socks. Only the CONNECT command is supported.
//
// Whether the destination is a literal address (socks4, socks5) or a hostname
// left for the proxy to resolve (socks4a, socks5h) is the caller's policy
// decision; this package sends whatever it is given.
