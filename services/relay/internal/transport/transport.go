package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"
)

// Mode selects the wire transport.
type Mode string

const (
	ModeUDP Mode = "udp"
	ModeTCP Mode = "tcp"
	ModeTLS Mode = "tls"
)

// ErrUnknownMode is returned by Dial for an unsupported mode.
var ErrUnknownMode = errors.New("unknown transport mode")

// Options configure Dial.
type Options struct {
	Mode Mode
	// Addr is the destination host:port.
	Addr string

	// CertPath is the client certificate for ModeTLS: PEM with the
	// certificate and an unencrypted key, or a PKCS#12 bundle.
	CertPath     string
	CertPassword string
	// CAPath enables server verification when set.
	CAPath string

	// DialTimeout bounds connection setup; zero means no timeout.
	DialTimeout time.Duration
}

// Sender delivers one CoT message at a time over a long-lived socket.
type Sender interface {
	Send(msg []byte) error
	Mode() Mode
	Close() error
}

// Dial opens the socket for opts.Mode. Stream modes connect (and handshake)
// here so that failures surface before any message is produced.
func Dial(ctx context.Context, opts Options) (Sender, error) {
	switch opts.Mode {
	case ModeUDP:
		return dialUDP(opts.Addr)
	case ModeTCP:
		d := &net.Dialer{Timeout: opts.DialTimeout}
		conn, err := d.DialContext(ctx, "tcp", opts.Addr)
		if err != nil {
			return nil, fmt.Errorf("connect tcp %s: %w", opts.Addr, err)
		}
		return &streamSender{conn: conn, mode: ModeTCP}, nil
	case ModeTLS:
		cfg, err := ClientTLSConfig(opts)
		if err != nil {
			return nil, err
		}
		d := &tls.Dialer{
			NetDialer: &net.Dialer{Timeout: opts.DialTimeout},
			Config:    cfg,
		}
		conn, err := d.DialContext(ctx, "tcp", opts.Addr)
		if err != nil {
			return nil, fmt.Errorf("connect tls %s: %w", opts.Addr, err)
		}
		return &streamSender{conn: conn, mode: ModeTLS}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, opts.Mode)
	}
}

// udpSender writes each message as one datagram on an unconnected socket.
type udpSender struct {
	conn *net.UDPConn
	dest *net.UDPAddr
}

func dialUDP(addr string) (*udpSender, error) {
	dest, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve udp %s: %w", addr, err)
	}
	network := "udp"
	if dest.IP.To4() != nil {
		network = "udp4"
	}
	conn, err := net.ListenUDP(network, nil)
	if err != nil {
		return nil, fmt.Errorf("open udp socket: %w", err)
	}
	return &udpSender{conn: conn, dest: dest}, nil
}

func (s *udpSender) Send(msg []byte) error {
	if _, err := s.conn.WriteToUDP(msg, s.dest); err != nil {
		return fmt.Errorf("udp send to %s: %w", s.dest, err)
	}
	return nil
}

func (s *udpSender) Mode() Mode   { return ModeUDP }
func (s *udpSender) Close() error { return s.conn.Close() }

// streamSender writes whole messages back to back with no framing.
type streamSender struct {
	conn net.Conn
	mode Mode
}

func (s *streamSender) Send(msg []byte) error {
	if _, err := s.conn.Write(msg); err != nil {
		return fmt.Errorf("%s send to %s: %w", s.mode, s.conn.RemoteAddr(), err)
	}
	return nil
}

func (s *streamSender) Mode() Mode   { return s.mode }
func (s *streamSender) Close() error { return s.conn.Close() }
