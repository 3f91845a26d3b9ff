package session

import (
	"context"
	"net"

	"hop.computer/nsh/reactor"
)

// Listener is a TCP listener registered with the reactor.
type Listener struct {
	net.Listener
	id reactor.ID
}

var _ reactor.Listener = &Listener{}

// Bind listens on addr (host:port).
func Bind(addr string) (*Listener, error) {
	lc := net.ListenConfig{Control: control}
	l, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{Listener: l, id: reactor.NextID()}, nil
}

// ID implements reactor.Listener.
func (l *Listener) ID() reactor.ID {
	return l.id
}
