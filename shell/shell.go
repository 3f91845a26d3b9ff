// Package shell runs local commands as reactor transports, so their output
// can be relayed like any other connection.
package shell

import (
	"errors"
	"io"
	"net"
	"os"
	"os/exec"
	"sync"

	"github.com/sirupsen/logrus"

	"hop.computer/nsh/command"
	"hop.computer/nsh/keys"
	"hop.computer/nsh/reactor"
)

// Shell is the interpreter commands are run with.
var Shell = "/bin/sh"

// Process is a running (or not yet started) local command.
type Process struct {
	id   reactor.ID
	cmd  command.LocalCommand
	self keys.PublicKey
	log  *logrus.Entry

	m      sync.Mutex
	proc   *exec.Cmd
	closed bool
}

var _ reactor.Transport = &Process{}

// New prepares lc. The process starts when the reactor serves it. self is
// reported as the peer identity on Established.
func New(lc command.LocalCommand, self keys.PublicKey) *Process {
	id := reactor.NextID()
	return &Process{
		id:   id,
		cmd:  lc,
		self: self,
		log:  logrus.WithFields(logrus.Fields{"process": id, "command": lc}),
	}
}

// ID implements reactor.Transport.
func (p *Process) ID() reactor.ID {
	return p.id
}

func (p *Process) String() string {
	return "process " + p.id.String() + " " + p.cmd.String()
}

// Command returns the command p runs.
func (p *Process) Command() command.LocalCommand {
	return p.cmd
}

func (p *Process) start() (io.ReadCloser, error) {
	p.m.Lock()
	defer p.m.Unlock()
	if p.closed {
		return nil, net.ErrClosed
	}
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	c := exec.Command(Shell, "-c", p.cmd.String())
	c.Stdout = w
	c.Stderr = w
	if err := c.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, err
	}
	// The child holds its own copy.
	w.Close()
	p.proc = c
	p.log.Debugf("started pid %d", c.Process.Pid)
	return r, nil
}

// Serve implements reactor.Transport. stdout and stderr are interleaved as
// Data events; the exit status becomes the Terminated error.
func (p *Process) Serve(emit func(reactor.SessionEvent)) {
	out, err := p.start()
	if err != nil {
		p.log.Errorf("unable to start: %s", err)
		emit(reactor.Terminated{Err: err})
		return
	}
	emit(reactor.Established{Peer: p.self})

	buf := make([]byte, 4096)
	for {
		n, rerr := out.Read(buf)
		if n > 0 {
			emit(reactor.Data(append([]byte(nil), buf[:n]...)))
		}
		if rerr != nil {
			if !errors.Is(rerr, io.EOF) {
				p.log.Warnf("reading output: %s", rerr)
			}
			break
		}
	}
	out.Close()
	err = p.proc.Wait()
	p.log.Debugf("exited: %v", err)
	emit(reactor.Terminated{Err: err})
}

// Write implements reactor.Transport. Commands take no input, so data is
// discarded.
func (p *Process) Write(data []byte) error {
	p.log.Tracef("discarding %d bytes of input", len(data))
	return nil
}

// Close implements reactor.Transport. A running process is killed.
func (p *Process) Close() error {
	p.m.Lock()
	defer p.m.Unlock()
	p.closed = true
	if p.proc == nil || p.proc.Process == nil {
		return nil
	}
	if err := p.proc.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
