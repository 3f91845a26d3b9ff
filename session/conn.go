package session

import (
	"net"
	"sync"
	"time"

	"hop.computer/nsh/keys"
)

// Conn is an established session. Send and Recv may be used concurrently with
// each other, and Conn is also an io.ReadWriter over the message stream.
type Conn struct {
	conn net.Conn
	peer keys.PublicKey

	wm   sync.Mutex
	send *cipherState

	rm      sync.Mutex
	recv    *cipherState
	pending []byte
}

func newConn(conn net.Conn, hs *handshakeState) *Conn {
	return &Conn{
		conn: conn,
		peer: hs.peer,
		send: hs.send,
		recv: hs.recv,
	}
}

// Peer returns the authenticated identity of the other side.
func (c *Conn) Peer() keys.PublicKey {
	return c.peer
}

// Send writes p as one message. Messages longer than MaxPlaintextSize are
// split over several frames. Empty messages are not sent.
func (c *Conn) Send(p []byte) error {
	c.wm.Lock()
	defer c.wm.Unlock()
	for len(p) > 0 {
		n := len(p)
		if n > MaxPlaintextSize {
			n = MaxPlaintextSize
		}
		if err := c.send.writeFrame(c.conn, p[:n]); err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// Recv returns the payload of the next frame. It returns io.EOF once the peer
// has closed the connection.
func (c *Conn) Recv() ([]byte, error) {
	c.rm.Lock()
	defer c.rm.Unlock()
	if len(c.pending) > 0 {
		p := c.pending
		c.pending = nil
		return p, nil
	}
	for {
		p, err := c.recv.readFrame(c.conn)
		if err != nil {
			return nil, err
		}
		if len(p) > 0 {
			return p, nil
		}
	}
}

// Read implements io.Reader over received payloads.
func (c *Conn) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	p, err := c.Recv()
	if err != nil {
		return 0, err
	}
	n := copy(b, p)
	if n < len(p) {
		c.rm.Lock()
		c.pending = p[n:]
		c.rm.Unlock()
	}
	return n, nil
}

// Write implements io.Writer with Send.
func (c *Conn) Write(b []byte) (int, error) {
	if err := c.Send(b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// SetDeadline sets the read and write deadlines of the underlying connection.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// SetReadDeadline sets the read deadline of the underlying connection.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline of the underlying connection.
func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// LocalAddr returns the local network address.
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}
