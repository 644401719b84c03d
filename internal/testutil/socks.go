package testutil

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strconv"

	txsocks5 "github.com/txthinking/socks5"
)

// HandleSOCKS5Connect serves one SOCKS5 CONNECT on c, requiring
// username/password auth when user or pass is non-empty, dialing the
// requested destination, and piping bytes both ways until either side closes.
func HandleSOCKS5Connect(ctx context.Context, c net.Conn, user, pass string) error {
	if _, err := txsocks5.NewNegotiationRequestFrom(c); err != nil {
		return err
	}

	if user == "" && pass == "" {
		if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodNone).WriteTo(c); err != nil {
			return err
		}
	} else {
		if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodUsernamePassword).WriteTo(c); err != nil {
			return err
		}

		urq, err := txsocks5.NewUserPassNegotiationRequestFrom(c)
		if err != nil {
			return err
		}
		if string(urq.Uname) != user || string(urq.Passwd) != pass {
			_, _ = txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusFailure).WriteTo(c)
			return nil
		}
		if _, err := txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusSuccess).WriteTo(c); err != nil {
			return err
		}
	}

	req, err := txsocks5.NewRequestFrom(c)
	if err != nil {
		return err
	}
	if req.Cmd != txsocks5.CmdConnect {
		_, _ = txsocks5.NewReply(txsocks5.RepCommandNotSupported, txsocks5.ATYPIPv4, []byte{0x00, 0x00, 0x00, 0x00}, []byte{0x00, 0x00}).WriteTo(c)
		return nil
	}

	d := net.Dialer{}
	dst, err := d.DialContext(ctx, "tcp", req.Address())
	if err != nil {
		_, _ = txsocks5.NewReply(txsocks5.RepHostUnreachable, txsocks5.ATYPIPv4, []byte{0x00, 0x00, 0x00, 0x00}, []byte{0x00, 0x00}).WriteTo(c)
		return nil
	}
	defer dst.Close()

	a, addr, port, err := txsocks5.ParseAddress(dst.LocalAddr().String())
	if err != nil {
		return err
	}
	if a == txsocks5.ATYPDomain {
		addr = addr[1:]
	}
	if _, err := txsocks5.NewReply(txsocks5.RepSuccess, a, addr, port).WriteTo(c); err != nil {
		return err
	}

	pipe(c, dst)
	return nil
}

// RefuseSOCKS5Connect serves one SOCKS5 CONNECT on c and replies
// connection-refused without dialing anything.
func RefuseSOCKS5Connect(c net.Conn) error {
	if _, err := txsocks5.NewNegotiationRequestFrom(c); err != nil {
		return err
	}
	if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodNone).WriteTo(c); err != nil {
		return err
	}
	req, err := txsocks5.NewRequestFrom(c)
	if err != nil {
		return err
	}
	if req.Cmd != txsocks5.CmdConnect {
		return nil
	}
	_, _ = txsocks5.NewReply(txsocks5.RepConnectionRefused, txsocks5.ATYPIPv4, []byte{0x00, 0x00, 0x00, 0x00}, []byte{0x00, 0x00}).WriteTo(c)
	return nil
}

// SOCKS4Request is a decoded SOCKS4/4a CONNECT request, recorded so tests can
// assert on what the client actually sent.
type SOCKS4Request struct {
	UserID string
	Host   string
	Port   int
}

// HandleSOCKS4Connect serves one SOCKS4 or SOCKS4a CONNECT on c, dials the
// requested destination, and pipes bytes both ways. The decoded request is
// sent on reqCh (if non-nil) before the reply is written.
//
// This is a scripted test double, not a SOCKS implementation; it understands
// just enough of the wire format to exercise the client.
func HandleSOCKS4Connect(ctx context.Context, c net.Conn, reqCh chan<- SOCKS4Request) error {
	br := bufio.NewReader(c)

	header := make([]byte, 8)
	if _, err := io.ReadFull(br, header); err != nil {
		return err
	}
	if header[0] != 0x04 || header[1] != 0x01 {
		return errors.New("not a socks4 connect")
	}
	port := int(binary.BigEndian.Uint16(header[2:4]))
	ip := net.IPv4(header[4], header[5], header[6], header[7])

	userID, err := readCString(br)
	if err != nil {
		return err
	}

	// 0.0.0.x with x nonzero marks a 4a request; the hostname follows.
	host := ip.String()
	if header[4] == 0 && header[5] == 0 && header[6] == 0 && header[7] != 0 {
		host, err = readCString(br)
		if err != nil {
			return err
		}
	}

	if reqCh != nil {
		reqCh <- SOCKS4Request{UserID: userID, Host: host, Port: port}
	}

	d := net.Dialer{}
	dst, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		_, _ = c.Write([]byte{0x00, 0x5b, 0, 0, 0, 0, 0, 0})
		return nil
	}
	defer dst.Close()

	if _, err := c.Write([]byte{0x00, 0x5a, 0, 0, 0, 0, 0, 0}); err != nil {
		return err
	}

	go func() {
		_, _ = io.Copy(dst, br)
		_ = dst.Close()
	}()
	_, _ = io.Copy(c, dst)
	return nil
}

func readCString(r *bufio.Reader) (string, error) {
	s, err := r.ReadString(0)
	if err != nil {
		return "", err
	}
	return s[:len(s)-1], nil
}

func pipe(c, dst net.Conn) {
	go func() {
		_, _ = io.Copy(dst, c)
		_ = dst.Close()
	}()
	_, _ = io.Copy(c, dst)
}
