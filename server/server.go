// Package server is the nsh daemon multiplexer. It turns listener and
// transport events from the reactor into actions, buffers output for
// connections that cannot be written yet, and leaves the decisions about
// what to run to a Delegate.
package server

import (
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"hop.computer/nsh/keys"
	"hop.computer/nsh/reactor"
	"hop.computer/nsh/session"
)

// Delegate decides what to do on behalf of authenticated peers.
type Delegate interface {
	// Accept wraps an inbound connection in an unauthenticated session.
	Accept(conn net.Conn) *session.Session
	// NewClient is called once the handshake on id has completed.
	NewClient(id reactor.ID, peer keys.PublicKey) []reactor.Action
	// Input is called with every message received on id.
	Input(id reactor.ID, data []byte) []reactor.Action
}

// Disconnector is implemented by delegates that want to hear about
// connections going away. It is called at most once per connection.
type Disconnector interface {
	Disconnected(id reactor.ID, err error) []reactor.Action
}

// Server implements reactor.Handler. All methods run on the reactor loop.
type Server struct {
	delegate Delegate
	listener reactor.Listener
	log      *logrus.Entry

	actions []reactor.Action
	outbox  map[reactor.ID][][]byte
	live    map[reactor.ID]bool
	peers   map[reactor.ID]keys.PublicKey
}

var _ reactor.Handler = &Server{}

// New binds listen and queues its registration.
func New(listen string, d Delegate) (*Server, error) {
	l, err := session.Bind(listen)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to listen on %s", listen)
	}
	return NewWithListener(l, d), nil
}

// NewWithListener uses an already bound listener.
func NewWithListener(l reactor.Listener, d Delegate) *Server {
	s := &Server{
		delegate: d,
		listener: l,
		log:      logrus.WithField("muxer", l.Addr().String()),
		outbox:   make(map[reactor.ID][][]byte),
		live:     make(map[reactor.ID]bool),
		peers:    make(map[reactor.ID]keys.PublicKey),
	}
	s.log.Infof("listening at %s", l.Addr())
	s.push(reactor.RegisterListener{Listener: l})
	return s
}

// Addr is the address the server listens on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Peer returns the identity authenticated on id, if any.
func (s *Server) Peer(id reactor.ID) (keys.PublicKey, bool) {
	p, ok := s.peers[id]
	return p, ok
}

// Buffered returns the number of messages waiting in the outbox of id.
func (s *Server) Buffered(id reactor.ID) int {
	return len(s.outbox[id])
}

// Stats returns the number of live connections and of connections with
// buffered output.
func (s *Server) Stats() (live, buffering int) {
	return len(s.live), len(s.outbox)
}

func (s *Server) push(actions ...reactor.Action) {
	for _, a := range actions {
		if r, ok := a.(reactor.RegisterTransport); ok {
			s.live[r.Transport.ID()] = true
		}
		s.actions = append(s.actions, a)
	}
}

// Next implements reactor.Handler. A Send to a connection that is still
// buffering joins the back of its outbox, so output is never reordered.
func (s *Server) Next() (reactor.Action, bool) {
	for len(s.actions) > 0 {
		a := s.actions[0]
		s.actions[0] = nil
		s.actions = s.actions[1:]
		if snd, ok := a.(reactor.Send); ok && len(s.outbox[snd.ID]) > 0 {
			s.outbox[snd.ID] = append(s.outbox[snd.ID], snd.Data)
			continue
		}
		return a, true
	}
	return nil, false
}

// Tick implements reactor.Handler.
func (s *Server) Tick(now time.Time) {
	s.log.Tracef("tick %s", now.Format(time.RFC3339Nano))
}

// HandleTimer implements reactor.Handler.
func (s *Server) HandleTimer() {
	live, buffering := s.Stats()
	s.log.Debugf("timer: %d live, %d buffering", live, buffering)
}

// HandleListenerEvent implements reactor.Handler.
func (s *Server) HandleListenerEvent(id reactor.ID, ev reactor.ListenerEvent, now time.Time) {
	switch ev := ev.(type) {
	case reactor.Accepted:
		s.log.Infof("accepted %s on %s", ev.Conn.RemoteAddr(), ev.Conn.LocalAddr())
		t, err := session.NewTransport(s.delegate.Accept(ev.Conn))
		if err != nil {
			s.log.Errorf("unable to start session with %s: %s", ev.Conn.RemoteAddr(), err)
			ev.Conn.Close()
			return
		}
		s.push(reactor.RegisterTransport{Transport: t})
	case reactor.Failure:
		s.log.Warnf("listener %s: %s", id, ev.Err)
	}
}

// HandleTransportEvent implements reactor.Handler.
func (s *Server) HandleTransportEvent(id reactor.ID, ev reactor.SessionEvent, now time.Time) {
	switch ev := ev.(type) {
	case reactor.Established:
		s.log.Infof("%s established with %s", id, ev.Peer)
		s.peers[id] = ev.Peer
		s.push(s.delegate.NewClient(id, ev.Peer)...)
		s.flush(id)
	case reactor.Data:
		s.log.Tracef("%s: %d bytes", id, len(ev))
		s.push(s.delegate.Input(id, ev)...)
	case reactor.Terminated:
		if ev.Err != nil {
			s.log.Infof("%s terminated: %s", id, ev.Err)
		} else {
			s.log.Infof("%s terminated", id)
		}
		if s.live[id] {
			s.push(reactor.UnregisterTransport{ID: id})
		}
		s.teardown(id, ev.Err)
	}
}

func (s *Server) flush(id reactor.ID) {
	pending := s.outbox[id]
	delete(s.outbox, id)
	for _, data := range pending {
		s.push(reactor.Send{ID: id, Data: data})
	}
}

// teardown forgets everything about id. Only the first call per connection
// reaches the delegate.
func (s *Server) teardown(id reactor.ID, err error) {
	delete(s.outbox, id)
	delete(s.peers, id)
	if !s.live[id] {
		return
	}
	delete(s.live, id)
	if d, ok := s.delegate.(Disconnector); ok {
		s.push(d.Disconnected(id, err)...)
	}
}

// HandleError implements reactor.Handler.
func (s *Server) HandleError(err *reactor.Error) {
	switch err.Kind {
	case reactor.TransportDisconnect:
		s.log.Warnf("%s", err)
		s.teardown(err.ID, err.Err)
		if err.Transport != nil {
			err.Transport.Close()
		}
	case reactor.WriteLogicError:
		if !s.live[err.ID] {
			s.log.Debugf("dropping write to dead %s", err.ID)
			return
		}
		s.log.Debugf("%s not ready, buffering %d bytes", err.ID, len(err.Data))
		s.outbox[err.ID] = append(s.outbox[err.ID], err.Data)
	case reactor.ListenerUnknown, reactor.TransportUnknown, reactor.Poll:
		s.log.Errorf("%s", err)
	case reactor.ListenerDisconnect, reactor.ListenerPollError:
		s.log.Errorf("%s", err)
		s.push(reactor.UnregisterListener{ID: err.ID})
	case reactor.WriteFailure, reactor.TransportPollError:
		s.log.Errorf("%s", err)
		s.push(reactor.UnregisterTransport{ID: err.ID})
	default:
		s.log.Errorf("unclassified reactor error: %s", err)
	}
}

// HandoverListener implements reactor.Handler. The daemon cannot run without
// its listener.
func (s *Server) HandoverListener(l reactor.Listener) {
	l.Close()
	s.log.Panicf("listener %s at %s was handed back", l.ID(), l.Addr())
}

// HandoverTransport implements reactor.Handler.
func (s *Server) HandoverTransport(t reactor.Transport) {
	s.log.Infof("%s disconnected", t)
	s.teardown(t.ID(), nil)
	t.Close()
}
