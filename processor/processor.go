// Package processor is the daemon's Delegate. It reads one command from every
// authenticated client and either runs it locally or forwards it to the named
// hop, relaying bytes between the client and whatever serves the command.
package processor

import (
	"fmt"
	"net"

	"github.com/sirupsen/logrus"

	"hop.computer/nsh/command"
	"hop.computer/nsh/keys"
	"hop.computer/nsh/reactor"
	"hop.computer/nsh/server"
	"hop.computer/nsh/session"
	"hop.computer/nsh/shell"
)

// Processor implements server.Delegate and server.Disconnector. It is only
// used from the reactor loop.
type Processor struct {
	cfg session.Config
	log *logrus.Entry

	// Clients that have authenticated but not sent their command yet.
	awaiting map[reactor.ID]keys.PublicKey

	// relays links the two legs of every running command, in both
	// directions.
	relays map[reactor.ID]reactor.ID
}

var (
	_ server.Delegate     = &Processor{}
	_ server.Disconnector = &Processor{}
)

// New returns a processor that authenticates as cfg.Keys and dials hops with
// cfg.
func New(cfg session.Config) *Processor {
	return &Processor{
		cfg:      cfg,
		log:      logrus.WithField("processor", cfg.Keys.ID().String()),
		awaiting: make(map[reactor.ID]keys.PublicKey),
		relays:   make(map[reactor.ID]reactor.ID),
	}
}

// Accept implements server.Delegate. Any client identity is accepted.
func (p *Processor) Accept(conn net.Conn) *session.Session {
	return session.NewResponder(conn, p.cfg)
}

// NewClient implements server.Delegate.
func (p *Processor) NewClient(id reactor.ID, peer keys.PublicKey) []reactor.Action {
	if other, ok := p.relays[id]; ok {
		p.log.Debugf("relay leg %s for %s is up", id, other)
		return nil
	}
	p.log.Infof("client %s authenticated as %s", id, peer)
	p.awaiting[id] = peer
	return nil
}

// Input implements server.Delegate.
func (p *Processor) Input(id reactor.ID, data []byte) []reactor.Action {
	if other, ok := p.relays[id]; ok {
		return []reactor.Action{reactor.Send{ID: other, Data: data}}
	}
	if _, ok := p.awaiting[id]; !ok {
		p.log.Warnf("dropping %d bytes from unknown %s", len(data), id)
		return nil
	}
	delete(p.awaiting, id)

	// The command must match exactly; no whitespace is stripped.
	cmd, err := command.Parse(string(data))
	if err != nil {
		p.log.Warnf("client %s: %s", id, err)
		return []reactor.Action{
			reactor.Send{ID: id, Data: []byte(fmt.Sprintf("error: %s\n", err))},
			reactor.UnregisterTransport{ID: id},
		}
	}
	p.log.Infof("client %s: %s", id, cmd)
	if !cmd.IsForward() {
		proc := shell.New(cmd.Local, p.cfg.Keys.ID())
		p.link(id, proc.ID())
		return []reactor.Action{reactor.RegisterTransport{Transport: proc}}
	}

	hop, err := session.NewTransport(session.NewInitiator(*cmd.Hop, p.cfg))
	if err != nil {
		p.log.Errorf("client %s: unable to reach %s: %s", id, cmd.Hop, err)
		return []reactor.Action{reactor.UnregisterTransport{ID: id}}
	}
	p.link(id, hop.ID())
	// The hop is not writable before its handshake; the server holds the
	// command until then.
	return []reactor.Action{
		reactor.RegisterTransport{Transport: hop},
		reactor.Send{ID: hop.ID(), Data: []byte(cmd.Local.String())},
	}
}

func (p *Processor) link(a, b reactor.ID) {
	p.relays[a] = b
	p.relays[b] = a
}

// Disconnected implements server.Disconnector. Either leg going away takes
// the other one down.
func (p *Processor) Disconnected(id reactor.ID, err error) []reactor.Action {
	delete(p.awaiting, id)
	other, ok := p.relays[id]
	if !ok {
		return nil
	}
	delete(p.relays, id)
	delete(p.relays, other)
	p.log.Debugf("%s gone (%v), disconnecting %s", id, err, other)
	return []reactor.Action{reactor.UnregisterTransport{ID: other}}
}

// Relays returns the number of linked legs.
func (p *Processor) Relays() int {
	return len(p.relays)
}
