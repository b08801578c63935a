package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

var (
	// ErrTimeout is a per-read or per-write deadline expiry. The caller
	// decides whether to retry, resume, or abort.
	ErrTimeout = errors.New("transport timeout")
	// ErrClosed is a connection closed by the peer or locally.
	ErrClosed = errors.New("transport closed")
)

// Config holds transport settings.
type Config struct {
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// TLS enables TLS below the byte-stream abstraction when non-nil.
	TLS *tls.Config
}

// DefaultConfig returns the default transport configuration.
func DefaultConfig() *Config {
	return &Config{
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Conn is one PeSIT transport connection. Reads and writes each arm
// their own deadline from the Config.
type Conn struct {
	nc  net.Conn
	cfg *Config
}

// Dial opens a connection to addr (host:port).
func Dial(ctx context.Context, addr string, cfg *Config) (*Conn, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	d := net.Dialer{Timeout: cfg.DialTimeout}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	if cfg.TLS != nil {
		tc := tls.Client(nc, cfg.TLS)
		if err := tc.HandshakeContext(ctx); err != nil {
			nc.Close()
			return nil, fmt.Errorf("TLS handshake with %s: %w", addr, err)
		}
		nc = tc
	}
	return &Conn{nc: nc, cfg: cfg}, nil
}

// Read fills p from the connection, honoring the configured read
// timeout.
func (c *Conn) Read(p []byte) (int, error) {
	if c.cfg.ReadTimeout > 0 {
		if err := c.nc.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
			return 0, mapErr(err)
		}
	}
	n, err := c.nc.Read(p)
	if err != nil {
		return n, mapErr(err)
	}
	return n, nil
}

// Write sends p, honoring the configured write timeout.
func (c *Conn) Write(p []byte) (int, error) {
	if c.cfg.WriteTimeout > 0 {
		if err := c.nc.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
			return 0, mapErr(err)
		}
	}
	n, err := c.nc.Write(p)
	if err != nil {
		return n, mapErr(err)
	}
	return n, nil
}

// Close closes the connection.
func (c *Conn) Close() error { return c.nc.Close() }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

// mapErr folds I/O errors into the package taxonomy while keeping the
// cause in the message.
func mapErr(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return err
}

// ServerTLS builds a server-side TLS configuration from a PEM keypair.
func ServerTLS(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("loading keypair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// Listener accepts PeSIT transport connections.
type Listener struct {
	nl  net.Listener
	cfg *Config
}

// Listen binds addr (host:port).
func Listen(addr string, cfg *Config) (*Listener, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	var (
		nl  net.Listener
		err error
	)
	if cfg.TLS != nil {
		nl, err = tls.Listen("tcp", addr, cfg.TLS)
	} else {
		nl, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	return &Listener{nl: nl, cfg: cfg}, nil
}

// Accept waits for the next inbound connection.
func (l *Listener) Accept() (*Conn, error) {
	nc, err := l.nl.Accept()
	if err != nil {
		return nil, mapErr(err)
	}
	return &Conn{nc: nc, cfg: l.cfg}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.nl.Addr() }

// Close stops accepting.
func (l *Listener) Close() error { return l.nl.Close() }
