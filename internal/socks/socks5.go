package socks

import (
	"context"
	"fmt"
	"net"
	"time"

	txsocks5 "github.com/txthinking/socks5"
)

// dialSOCKS5 reaches the proxy through forward and negotiates a CONNECT to
// the request destination. A negotiation deadline is applied for the
// handshake and cleared before the tunneled connection is returned.
func dialSOCKS5(ctx context.Context, forward ContextDialer, req Request) (net.Conn, error) {
	conn, err := forward.DialContext(ctx, "tcp", req.Proxy.address())
	if err != nil {
		return nil, fmt.Errorf("dial proxy: %w", err)
	}

	if dl := req.deadline(ctx); !dl.IsZero() {
		_ = conn.SetDeadline(dl)
	}

	if err := negotiate(conn, req.Proxy); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := connect(conn, req.destination()); err != nil {
		_ = conn.Close()
		return nil, err
	}

	_ = conn.SetDeadline(time.Time{})
	return conn, nil
}

func negotiate(conn net.Conn, proxy Proxy) error {
	methods := []byte{txsocks5.MethodNone}
	if proxy.UserID != "" || proxy.Password != "" {
		methods = append(methods, txsocks5.MethodUsernamePassword)
	}

	if _, err := txsocks5.NewNegotiationRequest(methods).WriteTo(conn); err != nil {
		return fmt.Errorf("write negotiation: %w", err)
	}

	neg, err := txsocks5.NewNegotiationReplyFrom(conn)
	if err != nil {
		return fmt.Errorf("read negotiation: %w", err)
	}

	switch neg.Method {
	case txsocks5.MethodNone:
		return nil
	case txsocks5.MethodUsernamePassword:
		if proxy.UserID == "" && proxy.Password == "" {
			return fmt.Errorf("proxy requires username/password")
		}

		if _, err := txsocks5.NewUserPassNegotiationRequest([]byte(proxy.UserID), []byte(proxy.Password)).WriteTo(conn); err != nil {
			return fmt.Errorf("write userpass: %w", err)
		}
		rep, err := txsocks5.NewUserPassNegotiationReplyFrom(conn)
		if err != nil {
			return fmt.Errorf("read userpass: %w", err)
		}
		if rep.Status != txsocks5.UserPassStatusSuccess {
			return fmt.Errorf("auth failed")
		}
		return nil
	default:
		return fmt.Errorf("unsupported negotiation method: %d", neg.Method)
	}
}

func connect(conn net.Conn, address string) error {
	atyp, dstAddr, dstPort, err := txsocks5.ParseAddress(address)
	if err != nil {
		return fmt.Errorf("parse address: %w", err)
	}
	if atyp == txsocks5.ATYPDomain {
		dstAddr = dstAddr[1:]
	}

	if _, err := txsocks5.NewRequest(txsocks5.CmdConnect, atyp, dstAddr, dstPort).WriteTo(conn); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	rep, err := txsocks5.NewReplyFrom(conn)
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if rep.Rep != txsocks5.RepSuccess {
		return fmt.Errorf("connect refused: reply 0x%02x", rep.Rep)
	}
	return nil
}
