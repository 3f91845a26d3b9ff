// Package tunnel pipes a local TCP connection through an established session.
package tunnel

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/jpillora/sizestr"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"hop.computer/nsh/core"
	"hop.computer/nsh/session"
)

// ErrAcceptTimeout is returned by Once when nobody connects in time.
var ErrAcceptTimeout = errors.New("no local connection to tunnel")

// Tunnel owns a local listener and a session.
type Tunnel struct {
	conn     *session.Conn
	listener *session.Listener
	log      *logrus.Entry
}

// New listens on local. On error the session is left open for the caller.
func New(conn *session.Conn, local core.NetAddr) (*Tunnel, error) {
	l, err := session.Bind(local.String())
	if err != nil {
		return nil, err
	}
	return &Tunnel{
		conn:     conn,
		listener: l,
		log: logrus.WithFields(logrus.Fields{
			"tunnel": l.Addr().String(),
			"remote": conn.RemoteAddr().String(),
		}),
	}, nil
}

// Addr is the local address of the tunnel.
func (t *Tunnel) Addr() net.Addr {
	return t.listener.Addr()
}

// Session returns the session, e.g. to disconnect it.
func (t *Tunnel) Session() *session.Conn {
	return t.conn
}

// Close stops listening.
func (t *Tunnel) Close() error {
	return t.listener.Close()
}

func (t *Tunnel) accept(timeout time.Duration) (net.Conn, error) {
	defer t.listener.Close()
	if tl, ok := t.listener.Listener.(*net.TCPListener); ok {
		tl.SetDeadline(time.Now().Add(timeout))
	}
	c, err := t.listener.Accept()
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return nil, ErrAcceptTimeout
	}
	return c, err
}

// Once accepts a single local connection within timeout and pipes it both
// ways until either side closes or ctx is done. It returns the bytes sent to
// and received from the remote.
func (t *Tunnel) Once(ctx context.Context, timeout time.Duration) (sent, received int64, err error) {
	local, err := t.accept(timeout)
	if err != nil {
		return 0, 0, err
	}
	t.log.Infof("tunneling %s", local.RemoteAddr())

	var once sync.Once
	closeBoth := func() {
		once.Do(func() {
			local.Close()
			t.conn.Close()
		})
	}
	stop := context.AfterFunc(ctx, closeBoth)
	defer stop()

	var g errgroup.Group
	g.Go(func() error {
		defer closeBoth()
		n, err := io.Copy(t.conn, local)
		sent = n
		return ignoreClosed(err)
	})
	g.Go(func() error {
		defer closeBoth()
		n, err := io.Copy(local, t.conn)
		received = n
		return ignoreClosed(err)
	})
	err = g.Wait()
	t.log.Infof("done (sent %s received %s)", sizestr.ToString(sent), sizestr.ToString(received))
	if err == nil {
		err = ctx.Err()
	}
	return sent, received, err
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
