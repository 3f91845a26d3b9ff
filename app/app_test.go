package app

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
	"gotest.tools/assert"
	"gotest.tools/assert/cmp"

	"hop.computer/nsh/command"
	"hop.computer/nsh/config"
	"hop.computer/nsh/core"
	"hop.computer/nsh/keys"
	"hop.computer/nsh/session"
)

func testConfig(mode config.Mode) *config.Config {
	k := keys.GenerateNodeKeys()
	return &config.Config{
		Mode:    mode,
		Keys:    k,
		Local:   core.NetAddr{Host: "127.0.0.1", Port: 0},
		Session: session.Config{Keys: k, Timeout: 5 * time.Second},
	}
}

// daemon starts a daemon and returns its address.
func daemon(t *testing.T, ctx context.Context) (*config.Config, core.NetAddr, <-chan error) {
	t.Helper()
	cfg := testConfig(config.ModeListen)
	ready := make(chan string, 1)
	a := &App{Stdout: io.Discard, Stderr: io.Discard, ready: ready}
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, cfg) }()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("daemon failed: %s", err)
	}
	na, err := core.ParseNetAddr(addr, 0)
	assert.NilError(t, err)
	return cfg, na, done
}

func TestConnectWithBanners(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx, cancel := context.WithCancel(context.Background())
	d, addr, done := daemon(t, ctx)

	cfg := testConfig(config.ModeConnect)
	cfg.Remote = core.RemoteHost{ID: d.Keys.ID(), Addr: addr}
	cfg.Command = command.Execute(command.Echo)
	var stdout, stderr bytes.Buffer
	a := &App{Stdout: &stdout, Stderr: &stderr, Banners: true}
	assert.NilError(t, a.Run(context.Background(), cfg))

	assert.Check(t, cmp.Equal(stdout.String(), "\n"))
	want := "Using identity " + cfg.Keys.ID().String() + "\n" +
		"Connecting to " + addr.String() + " ...\n" +
		"Remote output >>>\n" +
		"<<< done\n"
	assert.Check(t, cmp.Equal(stderr.String(), want))

	cancel()
	assert.NilError(t, <-done)
}

func TestConnectQuiet(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx, cancel := context.WithCancel(context.Background())
	d, addr, done := daemon(t, ctx)

	cfg := testConfig(config.ModeConnect)
	cfg.Remote = core.RemoteHost{ID: d.Keys.ID(), Addr: addr}
	cfg.Command = command.Execute(command.Date)
	var stdout, stderr bytes.Buffer
	assert.NilError(t, New(&stdout, &stderr).Run(context.Background(), cfg))
	assert.Check(t, cmp.Contains(stdout.String(), time.Now().Format("2006")))
	assert.Check(t, cmp.Equal(stderr.String(), ""))

	cancel()
	assert.NilError(t, <-done)
}

func TestConnectRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NilError(t, err)
	addr, err := core.ParseNetAddr(l.Addr().String(), 0)
	assert.NilError(t, err)
	l.Close()

	cfg := testConfig(config.ModeConnect)
	cfg.Remote = core.RemoteHost{ID: keys.GenerateNodeKeys().ID(), Addr: addr}
	cfg.Command = command.Execute(command.Date)
	err = New(io.Discard, io.Discard).Run(context.Background(), cfg)
	assert.Check(t, err != nil)
}

func TestListenBindError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NilError(t, err)
	defer l.Close()
	addr, err := core.ParseNetAddr(l.Addr().String(), 0)
	assert.NilError(t, err)

	cfg := testConfig(config.ModeListen)
	cfg.Local = addr
	err = New(io.Discard, io.Discard).Run(context.Background(), cfg)
	assert.Check(t, cmp.ErrorContains(err, "unable to listen"))
}

func TestIdentityNotice(t *testing.T) {
	cfg := testConfig(config.ModeListen)
	cfg.IdentityCreated = true
	cfg.IdentityPath = "/tmp/nsh/id"
	cfg.Local = core.NetAddr{Host: "256.0.0.1", Port: 1}
	var stderr bytes.Buffer
	New(io.Discard, &stderr).Run(context.Background(), cfg)
	assert.Check(t, strings.HasPrefix(stderr.String(), "Identity file not found; created new identity in '/tmp/nsh/id'\n"))
}

func TestTunnel(t *testing.T) {
	defer goleak.VerifyNone(t)

	// The remote end is a plain session responder that echoes.
	server := session.Config{Keys: keys.GenerateNodeKeys()}
	l, err := session.Bind("127.0.0.1:0")
	assert.NilError(t, err)
	remoteAddr, err := core.ParseNetAddr(l.Addr().String(), 0)
	assert.NilError(t, err)
	go func() {
		defer l.Close()
		raw, err := l.Accept()
		if err != nil {
			return
		}
		c, err := session.NewResponder(raw, server).Handshake(context.Background())
		if err != nil {
			return
		}
		defer c.Close()
		io.Copy(c, c)
	}()

	cfg := testConfig(config.ModeTunnel)
	cfg.Remote = core.RemoteHost{ID: server.Keys.ID(), Addr: remoteAddr}
	ready := make(chan string, 1)
	var stderr bytes.Buffer
	a := &App{Stdout: io.Discard, Stderr: &stderr, Banners: true, ready: ready}
	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background(), cfg) }()

	local := <-ready
	c, err := net.Dial("tcp", local)
	assert.NilError(t, err)
	_, err = c.Write([]byte("knock"))
	assert.NilError(t, err)
	buf := make([]byte, 5)
	_, err = io.ReadFull(c, buf)
	assert.NilError(t, err)
	assert.Check(t, cmp.Equal(string(buf), "knock"))
	c.Close()

	assert.NilError(t, <-done)
	assert.Check(t, cmp.Contains(stderr.String(), "Tunneling to "+cfg.Remote.String()+" from 127.0.0.1:0..."))
}
