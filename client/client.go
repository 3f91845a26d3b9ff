// Package client connects to an nsh daemon, runs one command and collects
// its output.
package client

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/jpillora/sizestr"
	"github.com/sirupsen/logrus"

	"hop.computer/nsh/command"
	"hop.computer/nsh/core"
	"hop.computer/nsh/keys"
	"hop.computer/nsh/session"
)

// Client is an established session with a daemon.
type Client struct {
	conn    *session.Conn
	host    core.RemoteHost
	timeout time.Duration
	log     *logrus.Entry
}

// Connect dials host and authenticates. The daemon must prove host.ID.
func Connect(ctx context.Context, host core.RemoteHost, cfg session.Config) (*Client, error) {
	conn, err := session.Connect(ctx, host, cfg)
	if err != nil {
		return nil, err
	}
	return &Client{
		conn:    conn,
		host:    host,
		timeout: cfg.HandshakeTimeout(),
		log:     logrus.WithField("client", host.Addr.String()),
	}, nil
}

// Peer returns the authenticated identity of the daemon.
func (c *Client) Peer() keys.PublicKey {
	return c.conn.Peer()
}

// Exec sends cmd. The output is read from the returned Printout.
func (c *Client) Exec(cmd command.Command) (*Printout, error) {
	c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	if err := c.conn.Send([]byte(cmd.String())); err != nil {
		return nil, err
	}
	c.conn.SetWriteDeadline(time.Time{})
	c.log.Debugf("sent %s", cmd)
	return &Printout{client: c}, nil
}

// Disconnect closes the session.
func (c *Client) Disconnect() error {
	return c.conn.Close()
}

// Printout iterates over the output of a command. The daemon disconnects once
// the command is done. Every read waits at most the connection timeout.
//
//	for p.Next() {
//		os.Stdout.Write(p.Batch())
//	}
//	if err := p.Err(); err != nil { ... }
type Printout struct {
	client *Client
	batch  []byte
	err    error
	done   bool
	total  int64
}

// Next reads the next batch. It returns false at the end of the output or on
// error.
func (p *Printout) Next() bool {
	if p.done {
		return false
	}
	c := p.client
	c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	data, err := c.conn.Recv()
	if err != nil {
		p.done = true
		p.batch = nil
		if !errors.Is(err, io.EOF) {
			p.err = err
		}
		return false
	}
	p.batch = data
	p.total += int64(len(data))
	return true
}

// Batch returns the batch read by the last call to Next.
func (p *Printout) Batch() []byte {
	return p.batch
}

// Err returns the error that ended the output, if it did not end normally.
func (p *Printout) Err() error {
	return p.err
}

// WriteTo copies the remaining output to w.
func (p *Printout) WriteTo(w io.Writer) (int64, error) {
	var n int64
	for p.Next() {
		m, err := w.Write(p.batch)
		n += int64(m)
		if err != nil {
			return n, err
		}
	}
	return n, p.err
}

// Complete returns the client once the output has been consumed.
func (p *Printout) Complete() *Client {
	p.client.log.Debugf("received %s", sizestr.ToString(p.total))
	return p.client
}
