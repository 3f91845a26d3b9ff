package session

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"hop.computer/nsh/reactor"
)

// Transport drives a Session on behalf of the reactor. Serve performs the
// handshake, then reports each received frame. Writes are queued to a writer
// goroutine so they never block the reactor loop.
type Transport struct {
	id   reactor.ID
	sess *Session
	log  *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc

	m       sync.Mutex
	cond    *sync.Cond
	conn    *Conn
	queue   [][]byte
	closing bool // Close was called, drain and stop
	stopped bool // the connection is gone, drop everything
}

var _ reactor.Transport = &Transport{}

// NewTransport wraps s. The session must have an identity configured.
func NewTransport(s *Session) (*Transport, error) {
	if s == nil {
		return nil, errors.New("session: nil session")
	}
	if s.cfg.Keys == nil {
		s.Close()
		return nil, errors.New("session: no identity configured")
	}
	t := &Transport{
		id:   reactor.NextID(),
		sess: s,
	}
	t.cond = sync.NewCond(&t.m)
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.log = logrus.WithFields(logrus.Fields{
		"transport": t.id,
		"remote":    s.String(),
	})
	return t, nil
}

// ID implements reactor.Transport.
func (t *Transport) ID() reactor.ID {
	return t.id
}

func (t *Transport) String() string {
	return "session " + t.id.String() + " " + t.sess.String()
}

// Serve implements reactor.Transport.
func (t *Transport) Serve(emit func(reactor.SessionEvent)) {
	ctx, cancel := context.WithTimeout(t.ctx, t.sess.cfg.HandshakeTimeout())
	conn, err := t.sess.Handshake(ctx)
	cancel()
	if err != nil {
		t.log.Infof("handshake failed: %s", err)
		t.stop()
		emit(reactor.Terminated{Err: err})
		return
	}

	t.m.Lock()
	if t.closing {
		t.m.Unlock()
		conn.Close()
		emit(reactor.Terminated{Err: net.ErrClosed})
		return
	}
	t.conn = conn
	t.m.Unlock()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		t.writeLoop(conn)
	}()

	emit(reactor.Established{Peer: conn.Peer()})
	for {
		data, err := conn.Recv()
		if err == nil {
			emit(reactor.Data(data))
			continue
		}
		t.stop()
		// The peer may have stopped reading; a blocked Send must not hold up
		// Terminated.
		conn.SetWriteDeadline(time.Now())
		<-writerDone
		conn.Close()
		t.m.Lock()
		closing := t.closing
		t.m.Unlock()
		if errors.Is(err, io.EOF) || closing {
			err = nil
		}
		emit(reactor.Terminated{Err: err})
		return
	}
}

func (t *Transport) stop() {
	t.m.Lock()
	t.stopped = true
	t.queue = nil
	t.cond.Broadcast()
	t.m.Unlock()
}

func (t *Transport) writeLoop(conn *Conn) {
	for {
		t.m.Lock()
		for len(t.queue) == 0 && !t.closing && !t.stopped {
			t.cond.Wait()
		}
		if t.stopped || len(t.queue) == 0 {
			t.m.Unlock()
			// Closing with everything flushed; unblock the reader.
			conn.Close()
			return
		}
		batch := t.queue
		t.queue = nil
		t.m.Unlock()

		for _, b := range batch {
			if err := conn.Send(b); err != nil {
				t.log.Debugf("write failed: %s", err)
				t.stop()
				conn.Close()
				return
			}
		}
	}
}

// Write implements reactor.Transport. It returns ErrNotReady until the
// handshake has completed.
func (t *Transport) Write(data []byte) error {
	t.m.Lock()
	defer t.m.Unlock()
	if t.closing || t.stopped {
		return net.ErrClosed
	}
	if t.conn == nil {
		return ErrNotReady
	}
	t.queue = append(t.queue, append([]byte(nil), data...))
	t.cond.Broadcast()
	return nil
}

// Close implements reactor.Transport. Queued writes are flushed, bounded by
// the handshake timeout, before the connection is closed.
func (t *Transport) Close() error {
	t.m.Lock()
	if t.closing {
		t.m.Unlock()
		return nil
	}
	t.closing = true
	conn, stopped := t.conn, t.stopped
	t.cond.Broadcast()
	t.m.Unlock()

	t.cancel()
	if conn == nil {
		return t.sess.Close()
	}
	if !stopped {
		conn.SetWriteDeadline(time.Now().Add(t.sess.cfg.HandshakeTimeout()))
	}
	return nil
}
