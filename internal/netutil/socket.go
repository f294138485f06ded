// Package netutil provides the dialing and address-parsing helpers the
// engine's external transport collaborators (the coordinator that
// establishes a connection before handing it to the engine) use to turn
// a host/port/scheme triple into a net.Conn.
package netutil

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// AddrInfo describes a resolved address and port pair.
type AddrInfo struct {
	Addr string
	Port string
}

// ParseAddress splits "host:port" (including bracketed IPv6 literals)
// into its host and port components. A missing port is returned as "".
func ParseAddress(addr string) (host, port string, err error) {
	if strings.HasPrefix(addr, "[") {
		endBracket := strings.Index(addr, "]")
		if endBracket == -1 {
			return "", "", fmt.Errorf("invalid IPv6 address format: %s", addr)
		}
		host = addr[1:endBracket]
		if len(addr) > endBracket+1 && addr[endBracket+1] == ':' {
			port = addr[endBracket+2:]
		}
		return host, port, nil
	}

	lastColon := strings.LastIndex(addr, ":")
	if lastColon == -1 {
		return addr, "", nil
	}

	return addr[:lastColon], addr[lastColon+1:], nil
}

// TCPConnect dials a plain TCP connection with a bounded timeout.
func TCPConnect(addr string, timeout time.Duration) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("TCP connect to %s failed: %w", addr, err)
	}
	return conn, nil
}

// TLSConnect dials a TCP connection and performs a TLS handshake over it.
// A nil cfg dials with a tls.Config that sets only ServerName, taken
// from the host part of addr (system roots, SNI from the dialed host).
func TLSConnect(addr string, timeout time.Duration, cfg *tls.Config) (*tls.Conn, error) {
	plain, err := TCPConnect(addr, timeout)
	if err != nil {
		return nil, err
	}

	if cfg == nil {
		host, _, splitErr := ParseAddress(addr)
		if splitErr != nil {
			host = addr
		}
		cfg = &tls.Config{ServerName: host}
	}

	tlsConn := tls.Client(plain, cfg)
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		plain.Close()
		return nil, fmt.Errorf("TLS handshake with %s failed: %w", addr, err)
	}
	return tlsConn, nil
}

// GetRemoteAddr returns the remote address and port of a connection.
func GetRemoteAddr(conn net.Conn) *AddrInfo {
	addr := conn.RemoteAddr()
	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		return &AddrInfo{Addr: tcpAddr.IP.String(), Port: strconv.Itoa(tcpAddr.Port)}
	}
	return &AddrInfo{Addr: addr.String()}
}

// SetReadTimeout sets (or clears, for timeout <= 0) the read deadline.
func SetReadTimeout(conn net.Conn, timeout time.Duration) error {
	if timeout > 0 {
		return conn.SetReadDeadline(time.Now().Add(timeout))
	}
	return conn.SetReadDeadline(time.Time{})
}
