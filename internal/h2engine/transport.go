package h2engine

import (
	"crypto/tls"
	"io"
	"net"
	"time"

	"github.com/perbu/h2engine/internal/netutil"
)

// TransportKind names the transport variants the engine cares about.
// The only thing the engine's protocol logic depends on is whether the
// variant implies TLS, which fixes the ":scheme" pseudo-header.
type TransportKind int

const (
	TransportPlainTCP TransportKind = iota
	TransportTLS
	TransportTLSProxy
)

func (k TransportKind) isTLS() bool { return k == TransportTLS || k == TransportTLSProxy }

func (k TransportKind) scheme() string {
	if k.isTLS() {
		return "https"
	}
	return "http"
}

// Transport is the byte sink/source the engine owns exclusively. send
// must write exactly len(bytes) bytes; recv returns one opaque chunk
// per call, blocking until data arrives or the connection closes.
type Transport interface {
	Kind() TransportKind
	Send(bytes []byte) error
	Recv() ([]byte, error)
	Close() error
}

type connTransport struct {
	kind TransportKind
	conn net.Conn
}

// NewPlainTCPTransport dials addr over plain TCP.
func NewPlainTCPTransport(addr string, timeout time.Duration) (Transport, error) {
	conn, err := netutil.TCPConnect(addr, timeout)
	if err != nil {
		return nil, err
	}
	return &connTransport{kind: TransportPlainTCP, conn: conn}, nil
}

// NewTLSTransport dials addr and performs a TLS handshake, negotiating
// "h2" via ALPN. ALPN negotiation itself is out of this engine's
// scope (see spec Non-goals); the coordinator is expected to have
// already confirmed h2 was selected before handing the connection off.
func NewTLSTransport(addr string, timeout time.Duration, cfg *tls.Config) (Transport, error) {
	if cfg == nil {
		cfg = &tls.Config{}
	}
	clone := cfg.Clone()
	if len(clone.NextProtos) == 0 {
		clone.NextProtos = []string{"h2"}
	}
	conn, err := netutil.TLSConnect(addr, timeout, clone)
	if err != nil {
		return nil, err
	}
	return &connTransport{kind: TransportTLS, conn: conn}, nil
}

// NewTLSProxyTransport wraps an already-established CONNECT tunnel
// (proxy handshake happens upstream of this engine) in a TLS
// transport.
func NewTLSProxyTransport(tunnel net.Conn, cfg *tls.Config) (Transport, error) {
	if cfg == nil {
		cfg = &tls.Config{}
	}
	clone := cfg.Clone()
	if len(clone.NextProtos) == 0 {
		clone.NextProtos = []string{"h2"}
	}
	tlsConn := tls.Client(tunnel, clone)
	if err := tlsConn.Handshake(); err != nil {
		tunnel.Close()
		return nil, err
	}
	return &connTransport{kind: TransportTLSProxy, conn: tlsConn}, nil
}

func (t *connTransport) Kind() TransportKind { return t.kind }

func (t *connTransport) Send(bytes []byte) error {
	_, err := t.conn.Write(bytes)
	return err
}

func (t *connTransport) Recv() ([]byte, error) {
	buf := make([]byte, 16384)
	n, err := t.conn.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == nil {
		err = io.EOF
	}
	return nil, err
}

func (t *connTransport) Close() error { return t.conn.Close() }
