package session

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"hop.computer/nsh/common"
	"hop.computer/nsh/core"
	"hop.computer/nsh/keys"
)

// Config holds what every session of a process shares.
type Config struct {
	// Keys is the long-term identity of this side. Required.
	Keys *keys.NodeKeys

	// Proxy is the SOCKS5 server used for hosts that require it, and for
	// every host when ForceProxy is set. Defaults to 127.0.0.1:9050.
	Proxy      core.NetAddr
	ForceProxy bool

	// Timeout bounds dialing and the handshake. Defaults to
	// common.DefaultTimeout.
	Timeout time.Duration
}

// ProxyAddr returns the configured proxy, or the default one.
func (c *Config) ProxyAddr() core.NetAddr {
	if c.Proxy.Host == "" {
		return core.NetAddr{Host: "127.0.0.1", Port: common.DefaultSOCKS5Port}
	}
	if c.Proxy.Port == 0 {
		return core.NetAddr{Host: c.Proxy.Host, Port: common.DefaultSOCKS5Port}
	}
	return c.Proxy
}

// UsesProxy reports whether connections to addr go through the proxy.
func (c *Config) UsesProxy(addr core.NetAddr) bool {
	return c.ForceProxy || addr.RequiresProxy()
}

// Describe returns how remote is reached, for banners.
func (c *Config) Describe(remote core.NetAddr) string {
	if c.UsesProxy(remote) {
		return fmt.Sprintf("%s using proxy %s", remote, c.ProxyAddr())
	}
	return remote.String()
}

// HandshakeTimeout returns Timeout or its default.
func (c *Config) HandshakeTimeout() time.Duration {
	if c.Timeout <= 0 {
		return common.DefaultTimeout
	}
	return c.Timeout
}

// Session is a secure channel that has not been authenticated yet. A
// responder wraps an accepted connection. An initiator dials its remote host
// when the handshake starts.
type Session struct {
	cfg       Config
	initiator bool
	remote    core.RemoteHost

	m      sync.Mutex
	conn   net.Conn
	closed bool
}

// NewResponder wraps an accepted connection. Any peer identity is accepted.
func NewResponder(conn net.Conn, cfg Config) *Session {
	return &Session{cfg: cfg, conn: conn}
}

// NewInitiator prepares a session to remote. The responder must prove
// remote.ID.
func NewInitiator(remote core.RemoteHost, cfg Config) *Session {
	return &Session{cfg: cfg, initiator: true, remote: remote}
}

// Config returns the configuration of s.
func (s *Session) Config() *Config {
	return &s.cfg
}

// Initiator reports whether s dials out.
func (s *Session) Initiator() bool {
	return s.initiator
}

func (s *Session) String() string {
	if s.initiator {
		return s.remote.String()
	}
	s.m.Lock()
	defer s.m.Unlock()
	if s.conn == nil {
		return "responder"
	}
	return s.conn.RemoteAddr().String()
}

func (s *Session) connect(ctx context.Context) (net.Conn, error) {
	s.m.Lock()
	conn, closed := s.conn, s.closed
	s.m.Unlock()
	if closed {
		return nil, net.ErrClosed
	}
	if conn != nil {
		return conn, nil
	}
	conn, err := dial(ctx, s.remote.Addr, &s.cfg)
	if err != nil {
		return nil, err
	}
	s.m.Lock()
	defer s.m.Unlock()
	if s.closed {
		conn.Close()
		return nil, net.ErrClosed
	}
	s.conn = conn
	return conn, nil
}

// Handshake dials if needed and authenticates. It is bounded by ctx. On
// failure the underlying connection is closed.
func (s *Session) Handshake(ctx context.Context) (*Conn, error) {
	if s.cfg.Keys == nil {
		return nil, errors.New("session: no identity configured")
	}
	raw, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	if dl, ok := ctx.Deadline(); ok {
		raw.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() {
		raw.SetDeadline(time.Unix(1, 0))
	})

	var expected *keys.PublicKey
	if s.initiator {
		expected = &s.remote.ID
	}
	hs := newHandshakeState(s.cfg.Keys, s.initiator, expected)
	err = hs.run(raw)
	if !stop() && err == nil {
		err = ctx.Err()
	}
	if err != nil {
		raw.Close()
		return nil, errors.Wrapf(err, "handshake with %s failed", s)
	}
	raw.SetDeadline(time.Time{})
	logrus.Debugf("session: established with %s (%s)", raw.RemoteAddr(), hs.peer)
	return newConn(raw, hs), nil
}

// Close closes the underlying connection, if any. A session closed before it
// dialed never dials.
func (s *Session) Close() error {
	s.m.Lock()
	defer s.m.Unlock()
	s.closed = true
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Connect dials remote and completes the handshake.
func Connect(ctx context.Context, remote core.RemoteHost, cfg Config) (*Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout())
	defer cancel()
	return NewInitiator(remote, cfg).Handshake(ctx)
}
